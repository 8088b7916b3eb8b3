package telemetry_test

import (
	"context"
	"testing"

	"github.com/kianwoon/promptops-sub000/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestNoOp(t *testing.T) {
	telemetry.NoOp{}.Track(context.Background(), "event", map[string]interface{}{"k": "v"})
}

func TestRecorder(t *testing.T) {
	rec := &telemetry.Recorder{}
	ctx := context.Background()

	rec.Track(ctx, "a", map[string]interface{}{"n": 1})
	rec.Track(ctx, "a", nil)
	rec.Track(ctx, "b", nil)

	assert.Equal(t, 2, rec.Count("a"))
	assert.Equal(t, 1, rec.Count("b"))
	assert.Equal(t, 0, rec.Count("c"))
	assert.Len(t, rec.Events(), 3)
}
