package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/IBM/sarama"
)

// KafkaConfig configures KafkaSink.
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// DefaultTopic receives record events when no topic is configured.
const DefaultTopic = "pdb.records"

// KafkaSink publishes record events to Kafka. Messages are keyed by record
// id so the events of one participant stay on one partition, in order.
type KafkaSink struct {
	Producer sarama.AsyncProducer
	Topic    string
}

// NewKafkaSink creates a KafkaSink from config, or nil when disabled.
func NewKafkaSink(c KafkaConfig) (*KafkaSink, error) {
	if !c.Enabled || len(c.Brokers) == 0 {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = "gpdb"
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Return.Errors = true
	prod, err := sarama.NewAsyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, err
	}
	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{Producer: prod, Topic: topic}, nil
}

// Message builds the producer message for e. Events without a record are
// keyed by name.
func (s *KafkaSink) Message(e Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	key := e.Name
	if e.Record > 0 {
		key = strconv.FormatInt(e.Record, 10)
	}
	return &sarama.ProducerMessage{
		Topic: s.Topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(e.Name)},
			{Key: []byte("event_id"), Value: []byte(e.ID)},
		},
		Timestamp: e.Time,
	}, nil
}

func (s *KafkaSink) Emit(ctx context.Context, e Event) error {
	if s == nil || s.Producer == nil {
		return nil
	}
	msg, err := s.Message(e)
	if err != nil {
		return err
	}
	select {
	case s.Producer.Input() <- msg:
		return nil
	case perr := <-s.Producer.Errors():
		return perr.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the producer down.
func (s *KafkaSink) Close() error {
	if s == nil || s.Producer == nil {
		return nil
	}
	return s.Producer.Close()
}
