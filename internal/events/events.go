// Package events delivers record lifecycle notifications to external sinks.
package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faciam-dev/gpdb/internal/logger"
)

// Event is a record notification payload. Record is the participant id the
// event concerns; sinks partition and route on it.
type Event struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Record int64     `json:"record_id,omitempty"`
	Time   time.Time `json:"time"`
	Data   any       `json:"data,omitempty"`
}

// Sink publishes events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// DLQ stores events no sink attempt could deliver.
type DLQ interface {
	Store(ctx context.Context, e Event, attempts int, lastErr string) error
}

// Config provides dispatcher settings.
type Config struct {
	Sinks struct {
		Webhook WebhookConfig `yaml:"webhook"`
		Redis   RedisConfig   `yaml:"redis"`
		Kafka   KafkaConfig   `yaml:"kafka"`
	} `yaml:"sinks"`
	Retry RetryConfig `yaml:"retry"`
	// Only limits delivery to events whose name starts with one of the
	// prefixes. Empty delivers everything.
	Only []string `yaml:"only"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Dispatcher broadcasts events to every sink with retries.
type Dispatcher struct {
	sinks        []Sink
	maxAttempts  int
	initialDelay time.Duration
	only         []string
	dlq          DLQ
	wg           sync.WaitGroup
	Logger       *slog.Logger
}

// NewDispatcher creates a dispatcher. Nil sinks are ignored.
func NewDispatcher(cfg Config, dlq DLQ, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{maxAttempts: 3, initialDelay: time.Second, only: cfg.Only, dlq: dlq}
	if cfg.Retry.MaxAttempts > 0 {
		d.maxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		d.initialDelay = cfg.Retry.InitialDelay
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// FromConfig builds the sinks enabled in cfg and returns their dispatcher.
func FromConfig(cfg Config, dlq DLQ) (*Dispatcher, error) {
	var sinks []Sink
	if wh := NewWebhookSink(cfg.Sinks.Webhook); wh != nil {
		sinks = append(sinks, wh)
	}
	rs, err := NewRedisSink(cfg.Sinks.Redis)
	if err != nil {
		return nil, err
	}
	if rs != nil {
		sinks = append(sinks, rs)
	}
	ks, err := NewKafkaSink(cfg.Sinks.Kafka)
	if err != nil {
		return nil, err
	}
	if ks != nil {
		sinks = append(sinks, ks)
	}
	return NewDispatcher(cfg, dlq, sinks...), nil
}

// Sinks returns the number of configured sinks.
func (d *Dispatcher) Sinks() int {
	if d == nil {
		return 0
	}
	return len(d.sinks)
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logger.L
}

func (d *Dispatcher) wanted(name string) bool {
	if len(d.only) == 0 {
		return true
	}
	for _, p := range d.only {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Dispatch sends the event to all sinks asynchronously. Delivery outlives
// the cancellation of ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if d == nil || !d.wanted(e.Name) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			d.retrySend(ctx, s, e)
		}(s)
	}
}

// Wait blocks until every pending delivery finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func (d *Dispatcher) retrySend(ctx context.Context, s Sink, e Event) {
	delay := d.initialDelay
	var err error
	for i := 1; i <= d.maxAttempts; i++ {
		if err = s.Emit(ctx, e); err == nil {
			return
		}
		if i < d.maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	d.log().Warn("event delivery failed", "event", e.Name, "id", e.ID, "err", err)
	if d.dlq != nil {
		if err := d.dlq.Store(ctx, e, d.maxAttempts, err.Error()); err != nil {
			d.log().Error("store failed event", "event", e.Name, "err", err)
		}
	}
}
