package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores session values in redis under Prefix.
type Redis struct {
	Client *redis.Client
	Prefix string
}

// NewRedis connects to the redis server addressed by url.
func NewRedis(url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "pdb:session:"
	}
	return &Redis{Client: redis.NewClient(opt), Prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, r.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, r.Prefix+key, val, ttl).Err()
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.Prefix+key).Err()
}
