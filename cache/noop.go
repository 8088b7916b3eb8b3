package cache

import (
	"context"
	"time"
)

// NoOpRemote is a RemoteStore stub.
type NoOpRemote struct{}

var _ RemoteStore = NoOpRemote{}

// Get does not find anything.
func (NoOpRemote) Get(ctx context.Context, key string) (string, error) {
	return "", ErrNotFound
}

// Set discards value.
func (NoOpRemote) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

// Delete removes nothing.
func (NoOpRemote) Delete(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// Exists finds nothing.
func (NoOpRemote) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// Keys lists nothing.
func (NoOpRemote) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

// Flush does nothing.
func (NoOpRemote) Flush(ctx context.Context) error {
	return nil
}

// Ping succeeds.
func (NoOpRemote) Ping(ctx context.Context) error {
	return nil
}
