// Package lock serializes work on a key across goroutines, or across
// processes when backed by Redis.
package lock

import (
	"context"
	"errors"
)

// ErrTimeout is returned when a key stays held past the wait bound.
var ErrTimeout = errors.New("lock: wait timed out")

// Locker acquires an exclusive hold on key. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
