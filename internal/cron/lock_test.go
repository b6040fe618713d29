package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeStore is an in-memory redisStore.
type fakeStore struct {
	values map[string]string
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestLockAcquireAndRelease(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	lock, err := NewRedisLock(store, "cm:lock:sweeper", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, exists := store.values["cm:lock:sweeper"]; exists {
		t.Fatal("lock key still present after release")
	}
}

func TestLockContention(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	first, _ := NewRedisLock(store, "cm:lock:sweeper", time.Minute)
	second, _ := NewRedisLock(store, "cm:lock:sweeper", time.Minute)
	ctx := context.Background()

	if ok, _ := first.Acquire(ctx); !ok {
		t.Fatal("first acquire should win")
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second acquire should lose while the lock is held")
	}
}

func TestReleaseDoesNotStealForeignLock(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	lock, _ := NewRedisLock(store, "cm:lock:sweeper", time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// The lock expired and another replica took it over.
	store.values["cm:lock:sweeper"] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["cm:lock:sweeper"] != "someone-else" {
		t.Fatal("release removed a lock it no longer owned")
	}
}

func TestReleaseToleratesExpiredKey(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	lock, _ := NewRedisLock(store, "cm:lock:sweeper", time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	delete(store.values, "cm:lock:sweeper")

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}

func TestReleaseWithoutAcquireIsNoOp(t *testing.T) {
	t.Parallel()
	lock, _ := NewRedisLock(newFakeStore(), "cm:lock:sweeper", time.Minute)

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquirePropagatesStoreError(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.setErr = errors.New("redis down")
	lock, _ := NewRedisLock(store, "cm:lock:sweeper", time.Minute)

	ok, err := lock.Acquire(context.Background())
	if ok || err == nil {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
}
