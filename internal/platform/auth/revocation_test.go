package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemoryRevocations_RevokeAndCheck(t *testing.T) {
	store := NewMemoryRevocations()
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := store.IsRevoked(ctx, "jti-1"); !ok {
		t.Error("expected jti-1 revoked")
	}
	if ok, _ := store.IsRevoked(ctx, "jti-2"); ok {
		t.Error("unknown jti must not be revoked")
	}
}

func TestMemoryRevocations_Cleanup(t *testing.T) {
	store := NewMemoryRevocations()
	ctx := context.Background()
	start := time.Now()
	store.now = func() time.Time { return start }

	store.Revoke(ctx, "short", start.Add(time.Minute))
	store.Revoke(ctx, "long", start.Add(time.Hour))

	store.now = func() time.Time { return start.Add(2 * time.Minute) }
	if ok, _ := store.IsRevoked(ctx, "short"); ok {
		t.Error("expired entry should no longer count")
	}
	if n := store.Cleanup(); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", store.Len())
	}
}

func TestMemoryRevocations_CleanupLoopStops(t *testing.T) {
	store := NewMemoryRevocations()
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		store.CleanupLoop(done, time.Millisecond)
		close(finished)
	}()
	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestRedisRevocations(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	store := NewRedisRevocations(client)
	ctx := context.Background()
	jti := uuid.NewString()

	if err := store.Revoke(ctx, jti, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, err := store.IsRevoked(ctx, jti); err != nil || !ok {
		t.Errorf("expected revoked, got %v, %v", ok, err)
	}
	if err := store.Revoke(ctx, "past", time.Now().Add(-time.Minute)); err != nil {
		t.Errorf("revoking an expired token should be a no-op: %v", err)
	}
	if ok, _ := store.IsRevoked(ctx, "past"); ok {
		t.Error("expired token should not be stored")
	}
}
