package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry is a tagged cache entry envelope.
//
// An entry is live while now-WrittenAt does not exceed TTL; dead entries are
// never served and are purged opportunistically on read.
type Entry[T any] struct {
	Data      T             `json:"data"`
	WrittenAt time.Time     `json:"-"`
	TTL       time.Duration `json:"-"`
}

// Live reports whether the entry has not expired at a given moment.
func (e Entry[T]) Live(now time.Time) bool {
	return now.Sub(e.WrittenAt) <= e.TTL
}

// envelope is the JSON wire form of an entry in the external store.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	WrittenAt int64           `json:"writtenAt"` // Unix milliseconds.
	TTLMs     int64           `json:"ttlMs"`
}

func (e envelope) live(now time.Time) bool {
	return now.UnixMilli()-e.WrittenAt <= e.TTLMs
}

// HashKey digests a logical key for use as a lookup key in both store tiers.
//
// Neither tier ever observes a plaintext key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}
