// Package cache provides the read-through event cache used by the event
// service.
//
// Values are stored as JSON under string keys with a TTL. A miss is reported
// as (false, nil), never as an error, so callers can fall back to the
// database without inspecting error types.
//
// Two implementations exist:
//   - Nop: used when no Redis address is configured. Every Get misses.
//   - Redis: go-redis/v9 client.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the minimal key/value contract the services rely on.
type Cache interface {
	// Get loads key into dest. found is false on a miss.
	Get(ctx context.Context, key string, dest any) (found bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// EventKey is the cache key for a single event read model.
func EventKey(id int64) string {
	return fmt.Sprintf("event:%d", id)
}

// Nop satisfies Cache without storing anything.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error { return nil }
func (Nop) Close() error { return nil }
