package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTTL(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := m.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("get=%q,%v", got, err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep=%d want 1", n)
	}
	if m.Len() != 0 {
		t.Fatalf("entries left after sweep")
	}
}

func TestMemoryZeroValue(t *testing.T) {
	var m Memory
	ctx := context.Background()
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get on empty store: %v", err)
	}
	if err := m.Clear(ctx, "k"); err != nil {
		t.Fatalf("clear on empty store: %v", err)
	}
	if err := m.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set(ctx, "forever", []byte("w"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := m.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("get=%q,%v", got, err)
	}
	if n := m.Sweep(); n != 0 {
		t.Fatalf("Sweep=%d want 0", n)
	}
	if m.Len() != 2 {
		t.Fatalf("Len=%d want 2", m.Len())
	}
}

func TestScopedIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := ForVisitor(m, "a")
	b := ForVisitor(m, "b")
	a.Set(ctx, "pdb_list_query-1", []byte("x"), 0)
	if _, err := b.Get(ctx, "pdb_list_query-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("visitor b sees a's key")
	}
	if got := GetOr(ctx, b, "pdb_list_query-1", []byte("def")); string(got) != "def" {
		t.Fatalf("GetOr=%q", got)
	}
	a.Clear(ctx, "pdb_list_query-1")
	if _, err := a.Get(ctx, "pdb_list_query-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("clear failed")
	}
}

func TestRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	r := &Redis{Client: redis.NewClient(&redis.Options{Addr: s.Addr()}), Prefix: "t:"}
	ctx := context.Background()
	if err := r.Set(ctx, "k", []byte("state"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := r.Get(ctx, "k")
	if err != nil || string(got) != "state" {
		t.Fatalf("get=%q,%v", got, err)
	}
	s.FastForward(2 * time.Minute)
	if _, err := r.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
	r.Set(ctx, "k2", []byte("x"), 0)
	if err := r.Clear(ctx, "k2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Exists("t:k2") {
		t.Fatalf("key not deleted")
	}
}
