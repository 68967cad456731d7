package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisSink.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Channel string `yaml:"channel"`
	// Stream also appends every event to a capped stream that consumers
	// can replay after being offline.
	Stream    string `yaml:"stream"`
	StreamLen int64  `yaml:"stream_len"`
}

const (
	// DefaultChannel is the pub/sub channel used when none is configured.
	DefaultChannel = "pdb:records"
	// DefaultStreamLen caps the replay stream.
	DefaultStreamLen = 10000
)

// RedisSink publishes record events on a pub/sub channel and optionally
// appends them to a stream.
type RedisSink struct {
	Client    *redis.Client
	Channel   string
	Stream    string
	StreamLen int64
}

// NewRedisSink returns a RedisSink based on config, or nil when disabled.
func NewRedisSink(c RedisConfig) (*RedisSink, error) {
	if !c.Enabled || c.DSN == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(c.DSN)
	if err != nil {
		return nil, err
	}
	s := &RedisSink{Client: redis.NewClient(opt), Channel: c.Channel, Stream: c.Stream, StreamLen: c.StreamLen}
	if s.Channel == "" {
		s.Channel = DefaultChannel
	}
	if s.StreamLen <= 0 {
		s.StreamLen = DefaultStreamLen
	}
	return s, nil
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	if s == nil || s.Client == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, s.Channel, data)
		if s.Stream != "" {
			p.XAdd(ctx, &redis.XAddArgs{
				Stream: s.Stream,
				MaxLen: s.StreamLen,
				Values: map[string]any{
					"name":      e.Name,
					"record_id": strconv.FormatInt(e.Record, 10),
					"event":     string(data),
				},
			})
		}
		return nil
	})
	return err
}
