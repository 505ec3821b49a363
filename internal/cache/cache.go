// Package cache defines the backend consumed by compiled cache blocks and
// ships an in-memory LRU implementation with per-entry TTL.
package cache

import (
	"context"
	"time"
)

// Backend stores rendered fragments for cache blocks.
//
// A ttl of zero asks the backend to apply its own default.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Prefixed namespaces every key of an underlying backend.
type Prefixed struct {
	Backend Backend
	Prefix  string
}

// Get implements Backend.
func (p Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Backend.Get(ctx, p.Prefix+key)
}

// Set implements Backend.
func (p Prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.Backend.Set(ctx, p.Prefix+key, value, ttl)
}
