// AngelaMos | 2026
// publisher.go

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/promptstudio/api/internal/config"
)

const (
	PaymentSubmitted = "manual_payment.submitted"
	PaymentApproved  = "manual_payment.approved"
	PaymentRejected  = "manual_payment.rejected"
)

const (
	writeTimeout = 10 * time.Second
	pingTimeout  = 3 * time.Second
)

// Event is the envelope written to the topic. Key is the partition key and
// is not serialized.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
	topic   string
	logger  *slog.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka publisher initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &KafkaPublisher{
		writer:  writer,
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		logger:  logger,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", event.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		"type", event.Type,
		"key", event.Key,
		"topic", p.topic,
	)
	return nil
}

// Ping succeeds when any configured broker accepts a connection.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("ping kafka: no brokers")
	}

	dialer := &kafka.Dialer{Timeout: pingTimeout}

	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close() //nolint:errcheck // probe connection
		return nil
	}

	return fmt.Errorf("ping kafka: %w", lastErr)
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Nop drops every event. It is used when kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Emit publishes without failing the caller; lifecycle events are best
// effort and a broker outage must not block payment review.
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			"type", event.Type,
			"key", event.Key,
			"error", err,
		)
	}
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = Nop{}
)
