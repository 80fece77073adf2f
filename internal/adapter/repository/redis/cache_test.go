package redis

import (
	"context"
	"testing"
	"time"
)

func TestCacheSetAndGet(t *testing.T) {
	client, mr := newTestRedis(t)

	cache := NewCache(client)
	ctx := context.Background()

	if err := cache.Set(ctx, "settlement:chain_confirmed:abc", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := cache.Get(ctx, "settlement:chain_confirmed:abc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "1" {
		t.Fatalf("expected 1, got %q", val)
	}

	if !mr.Exists("satledger:cache:settlement:chain_confirmed:abc") {
		t.Fatalf("expected prefixed key in redis, keys: %v", mr.Keys())
	}
}

func TestCacheMissIsNotAnError(t *testing.T) {
	client, _ := newTestRedis(t)

	val, err := NewCache(client).Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("expected no error on miss, got %v", err)
	}
	if val != nil {
		t.Fatalf("expected nil value on miss, got %q", val)
	}
}

func TestCacheExpires(t *testing.T) {
	client, mr := newTestRedis(t)

	cache := NewCache(client)
	ctx := context.Background()

	if err := cache.Set(ctx, "rate:USD", []byte("50000"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	val, err := cache.Get(ctx, "rate:USD")
	if err != nil || val != nil {
		t.Fatalf("expected expired key to miss, got %q err=%v", val, err)
	}
}

func TestCacheSetNX(t *testing.T) {
	client, _ := newTestRedis(t)

	cache := NewCache(client)
	ctx := context.Background()

	set, err := cache.SetNX(ctx, "key", []byte("first"), time.Minute)
	if err != nil || !set {
		t.Fatalf("expected first SetNX to succeed, got set=%v err=%v", set, err)
	}

	set, err = cache.SetNX(ctx, "key", []byte("second"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if set {
		t.Fatalf("expected second SetNX to fail because key exists")
	}
}

func TestCacheDelete(t *testing.T) {
	client, _ := newTestRedis(t)

	cache := NewCache(client)
	ctx := context.Background()

	if err := cache.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := cache.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	val, err := cache.Get(ctx, "key")
	if err != nil || val != nil {
		t.Fatalf("expected deleted key to miss, got %q err=%v", val, err)
	}
}
