// Package session provides the visitor scoped key/value store used to carry
// list query state across paginated requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no live value.
var ErrNotFound = errors.New("session: key not found")

// Store is a server side session backend. A ttl of zero means the value does
// not expire. Concurrent writers to the same key race; the last write wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

// GetOr returns the value stored under key or def when it is missing.
func GetOr(ctx context.Context, s Store, key string, def []byte) []byte {
	if s == nil {
		return def
	}
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// NewID returns a fresh visitor session identifier.
func NewID() string { return uuid.NewString() }

// Scoped prefixes every key with a visitor id.
type Scoped struct {
	Store   Store
	Visitor string
}

// ForVisitor returns s restricted to the keys of one visitor.
func ForVisitor(s Store, visitor string) *Scoped {
	return &Scoped{Store: s, Visitor: visitor}
}

func (s *Scoped) key(k string) string { return s.Visitor + ":" + k }

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.Store == nil {
		return nil, ErrNotFound
	}
	return s.Store.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Set(ctx, s.key(key), val, ttl)
}

func (s *Scoped) Clear(ctx context.Context, key string) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Clear(ctx, s.key(key))
}
