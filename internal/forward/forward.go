// Package forward publishes alert and event notifications to Kafka.
//
// Stream callbacks run on the engine goroutine, so the Forwarder only
// encodes and enqueues there. Run drains the queue on its own goroutine and
// performs the broker writes. When the queue is full new messages are
// dropped and logged rather than blocking the engine.
package forward

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/pubsub"
)

// DefaultQueueSize bounds the messages waiting for the broker.
const DefaultQueueSize = 256

// Header keys set on every message.
const (
	HeaderType   = "meltshop-type"
	HeaderDigest = "meltshop-digest"
)

// Message types.
const (
	TypeAlertCreated      = "alert.created"
	TypeAlertAcknowledged = "alert.acknowledged"
	TypeEventCreated      = "event.created"
)

// Writer is the subset of *kafka.Writer the forwarder needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder observes forwarding results. *metrics.Metrics satisfies it.
type Recorder interface {
	Forwarded(ok bool)
}

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}

// Forwarder encodes notifications and hands them to a Writer.
type Forwarder struct {
	writer   Writer
	recorder Recorder
	queue    chan kafka.Message
}

// Option configures New.
type Option func(*Forwarder)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.queue = make(chan kafka.Message, n)
		}
	}
}

// WithRecorder reports every write result to r.
func WithRecorder(r Recorder) Option {
	return func(f *Forwarder) { f.recorder = r }
}

// New creates a forwarder writing to w.
func New(w Writer, opts ...Option) *Forwarder {
	f := &Forwarder{writer: w, queue: make(chan kafka.Message, DefaultQueueSize)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach subscribes the forwarder to the alert and event logs.
func (f *Forwarder) Attach(alerts *alert.Log, events *eventlog.Log) []*pubsub.Subscription {
	return []*pubsub.Subscription{
		alerts.Stream(func(n alert.Notification) {
			typ := TypeAlertCreated
			if n.Type == alert.NotifyAcknowledged {
				typ = TypeAlertAcknowledged
			}
			f.enqueue(typ, ir.DomainAlert, n.Record.Subject, AlertPayload(n.Record))
		}),
		events.Stream(func(n eventlog.Notification) {
			machine, _ := n.Record.StringProperty("machine")
			f.enqueue(TypeEventCreated, ir.DomainEvent, machine, n.Record)
		}),
	}
}

func (f *Forwarder) enqueue(typ, domain, key string, payload any) {
	msg, err := Encode(typ, domain, key, payload)
	if err != nil {
		slog.Warn("forward encode failed", "type", typ, "error", err)
		f.record(false)
		return
	}
	select {
	case f.queue <- msg:
	default:
		slog.Warn("forward queue full, dropping", "type", typ, "key", key)
		f.record(false)
	}
}

func (f *Forwarder) record(ok bool) {
	if f.recorder != nil {
		f.recorder.Forwarded(ok)
	}
}

// Pending returns the number of queued messages.
func (f *Forwarder) Pending() int { return len(f.queue) }

// Run writes queued messages until ctx ends, then closes the writer.
// Write failures are logged and the message is dropped.
func (f *Forwarder) Run(ctx context.Context) error {
	defer func() {
		if err := f.writer.Close(); err != nil {
			slog.Warn("forward writer close failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-f.queue:
			if err := f.writer.WriteMessages(ctx, msg); err != nil {
				slog.Warn("forward write failed", "key", string(msg.Key), "error", err)
				f.record(false)
				continue
			}
			f.record(true)
		}
	}
}

// Encode builds the Kafka message for one notification. The value is the
// canonical JSON of payload and the digest header is its domain-separated
// SHA-256, so consumers can drop redeliveries.
func Encode(typ, domain, key string, payload any) (kafka.Message, error) {
	value, err := ir.MarshalCanonical(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	digest, err := ir.Digest(domain, payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderType, Value: []byte(typ)},
			{Key: HeaderDigest, Value: []byte(digest)},
		},
	}, nil
}

// AlertPayload is the canonical form of an alert.
func AlertPayload(a alert.Alert) map[string]any {
	return map[string]any{
		"id":        a.ID,
		"message":   a.Message,
		"timestamp": a.Timestamp,
		"subject":   a.Subject,
		"status":    a.Status.String(),
		"source":    a.Source,
	}
}
