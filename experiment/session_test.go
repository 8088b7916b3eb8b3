package experiment

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	now := time.Now()
	s := newSessionStore(10, func() time.Time { return now })

	_, ok := s.get("s-1", "exp-1")
	assert.False(t, ok)

	s.put(&Assignment{ID: "a-1", SessionID: "s-1", ExperimentID: "exp-1"})
	s.put(&Assignment{ID: "a-2", SessionID: "s-1", ExperimentID: "exp-2"})

	assert.Equal(t, 1, s.len(), "one session, two assignments")

	a, ok := s.get("s-1", "exp-1")
	require.True(t, ok)
	assert.Equal(t, "a-1", a.ID)

	a, ok = s.get("s-1", "exp-2")
	require.True(t, ok)
	assert.Equal(t, "a-2", a.ID)

	s.clear("s-1")
	assert.Equal(t, 0, s.len())

	_, ok = s.get("s-1", "exp-1")
	assert.False(t, ok)
}

func TestSessionStore_evictsOldest(t *testing.T) {
	now := time.Now()
	s := newSessionStore(3, func() time.Time { return now })

	for i := 0; i < 6; i++ {
		now = now.Add(time.Second)

		s.put(&Assignment{ID: "a-" + strconv.Itoa(i), SessionID: "s-" + strconv.Itoa(i), ExperimentID: "exp-1"})
	}

	assert.Equal(t, 3, s.len())

	for i := 0; i < 3; i++ {
		_, ok := s.get("s-"+strconv.Itoa(i), "exp-1")
		assert.False(t, ok, "least recently seen session evicted")
	}

	for i := 3; i < 6; i++ {
		_, ok := s.get("s-"+strconv.Itoa(i), "exp-1")
		assert.True(t, ok)
	}
}

func TestSessionStore_clearUnknown(t *testing.T) {
	s := newSessionStore(10, time.Now)

	s.clear("missing")
	assert.Equal(t, 0, s.len())
}
