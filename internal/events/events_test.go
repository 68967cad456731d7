package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/faciam-dev/goquent/orm/driver"
	"github.com/redis/go-redis/v9"
)

type failSink struct {
	mu    sync.Mutex
	count int
}

func (f *failSink) Emit(ctx context.Context, e Event) error {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return errors.New("fail")
}

type memDLQ struct {
	mu     sync.Mutex
	stored []Event
}

func (m *memDLQ) Store(ctx context.Context, e Event, attempts int, lastErr string) error {
	m.mu.Lock()
	m.stored = append(m.stored, e)
	m.mu.Unlock()
	return nil
}

func TestRetryThenDeadLetter(t *testing.T) {
	s := &failSink{}
	q := &memDLQ{}
	d := NewDispatcher(Config{Retry: RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}}, q, s)
	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Event{Name: "record.created"})
	cancel()
	d.Wait()
	if s.count != 2 {
		t.Fatalf("attempts=%d", s.count)
	}
	if len(q.stored) != 1 || q.stored[0].Name != "record.created" {
		t.Fatalf("dlq=%v", q.stored)
	}
}

func TestOnlyFiltersEvents(t *testing.T) {
	s := &failSink{}
	cfg := Config{Only: []string{"record.deleted"}, Retry: RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}}
	d := NewDispatcher(cfg, nil, s, nil)
	if d.Sinks() != 1 {
		t.Fatalf("nil sink kept")
	}
	d.Dispatch(context.Background(), Event{Name: "record.created"})
	d.Wait()
	if s.count != 0 {
		t.Fatalf("filtered event delivered")
	}
	d.Dispatch(context.Background(), Event{Name: "record.deleted"})
	d.Wait()
	if s.count != 1 {
		t.Fatalf("attempts=%d", s.count)
	}
}

func TestWebhookSignature(t *testing.T) {
	var got http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		got = r.Header.Clone()
	}))
	defer srv.Close()
	wh := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL, Secret: "s"})
	wh.now = func() time.Time { return time.Unix(1700000000, 0) }
	e := Event{ID: "d1", Name: "record.updated", Record: 3, Data: map[string]any{"fields": []string{"city"}}}
	if err := wh.Emit(context.Background(), e); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got.Get(TimestampHeader) != "1700000000" {
		t.Fatalf("timestamp=%q", got.Get(TimestampHeader))
	}
	if sig := got.Get(SignatureHeader); sig != "sha256="+Sign("s", 1700000000, body) {
		t.Fatalf("signature %q does not match body", sig)
	}
	if got.Get(EventHeader) != "record.updated" || got.Get(DeliveryHeader) != "d1" || got.Get(RecordHeader) != "3" {
		t.Fatalf("headers=%v", got)
	}
}

func TestWebhookStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	wh := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL})
	if err := wh.Emit(context.Background(), Event{Name: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if NewWebhookSink(WebhookConfig{Endpoint: srv.URL}) != nil {
		t.Fatalf("disabled sink should be nil")
	}
}

func TestRedisSinkPublishes(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()
	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	sub := cli.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rs, err := NewRedisSink(RedisConfig{Enabled: true, DSN: "redis://" + s.Addr(), Stream: "pdb:records:log"})
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := rs.Emit(ctx, Event{ID: "e1", Name: "record.created", Record: 7}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if e.ID != "e1" || e.Record != 7 {
			t.Fatalf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no message")
	}
	entries, err := cli.XRange(ctx, "pdb:records:log", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 || entries[0].Values["record_id"] != "7" || entries[0].Values["name"] != "record.created" {
		t.Fatalf("stream=%v", entries)
	}
}

func TestKafkaSinkKeysByRecord(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	prod.ExpectInputAndSucceed()
	ks := &KafkaSink{Producer: prod, Topic: DefaultTopic}
	e := Event{ID: "e2", Name: "record.deleted", Record: 42}
	msg, err := ks.Message(e)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if key, _ := msg.Key.Encode(); string(key) != "42" {
		t.Fatalf("key=%q", key)
	}
	if string(msg.Headers[0].Value) != "record.deleted" || string(msg.Headers[1].Value) != "e2" {
		t.Fatalf("headers=%v", msg.Headers)
	}
	if err := ks.Emit(context.Background(), e); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := ks.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	m, _ := ks.Message(Event{Name: "fields.changed"})
	if key, _ := m.Key.Encode(); string(key) != "fields.changed" {
		t.Fatalf("event without record keyed %q", key)
	}
}

func TestSQLDLQ(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("INSERT INTO .*pdb_events_failed").WillReturnResult(sqlmock.NewResult(1, 1))
	q := &SQLDLQ{DB: db, Dialect: driver.MySQLDialect{}}
	if err := q.Store(context.Background(), Event{ID: "e9", Name: "record.created", Record: 5}, 3, "boom"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := (&SQLDLQ{TablePrefix: "x_"}).Table(); got != "x_events_failed" {
		t.Fatalf("table=%s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
