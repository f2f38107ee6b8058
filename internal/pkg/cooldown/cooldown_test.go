package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, s
}

func TestGate_FirstCallAllowed(t *testing.T) {
	rdb, _ := newMiniRedis(t)
	gate := NewGate(rdb, time.Minute)

	ok, _, err := gate.Allow(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected first call to be allowed")
	}
}

func TestGate_SecondCallBlockedWithRetryAfter(t *testing.T) {
	rdb, _ := newMiniRedis(t)
	gate := NewGate(rdb, time.Minute)

	if ok, _, err := gate.Allow(context.Background(), "a@x.com"); err != nil || !ok {
		t.Fatalf("first allow: ok=%v err=%v", ok, err)
	}

	ok, remain, err := gate.Allow(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("second allow: %v", err)
	}
	if ok {
		t.Fatalf("expected second call to be blocked")
	}
	if remain <= 0 || remain > time.Minute {
		t.Fatalf("unexpected retry_after: %v", remain)
	}
}

func TestGate_DifferentEmailsIndependent(t *testing.T) {
	rdb, _ := newMiniRedis(t)
	gate := NewGate(rdb, time.Minute)

	if ok, _, _ := gate.Allow(context.Background(), "a@x.com"); !ok {
		t.Fatalf("expected a@x.com allowed")
	}
	if ok, _, _ := gate.Allow(context.Background(), "b@x.com"); !ok {
		t.Fatalf("expected b@x.com allowed")
	}
}

func TestGate_AllowedAfterExpiry(t *testing.T) {
	rdb, s := newMiniRedis(t)
	gate := NewGate(rdb, time.Minute)

	if ok, _, _ := gate.Allow(context.Background(), "a@x.com"); !ok {
		t.Fatalf("expected first call allowed")
	}
	s.FastForward(time.Minute + time.Second)
	if ok, _, _ := gate.Allow(context.Background(), "a@x.com"); !ok {
		t.Fatalf("expected call after expiry allowed")
	}
}

func TestGate_ClearReleasesWindow(t *testing.T) {
	rdb, _ := newMiniRedis(t)
	gate := NewGate(rdb, time.Minute)

	if ok, _, _ := gate.Allow(context.Background(), "a@x.com"); !ok {
		t.Fatalf("expected first call allowed")
	}
	if err := gate.Clear(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _, _ := gate.Allow(context.Background(), "a@x.com"); !ok {
		t.Fatalf("expected call after clear allowed")
	}
}

func TestGate_NilGateAlwaysAllows(t *testing.T) {
	var gate *Gate
	ok, _, err := gate.Allow(context.Background(), "a@x.com")
	if err != nil || !ok {
		t.Fatalf("nil gate should allow: ok=%v err=%v", ok, err)
	}
}
