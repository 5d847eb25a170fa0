// Package events publishes order and payment lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/pkg/httpmiddleware"
)

// Message headers that tie an event back to the request that caused it.
const (
	HeaderRequestID = "request-id"
	HeaderTraceID   = "trace-id"
)

// Topics written by the storefront.
const (
	TopicOrderCreated         = "order-created"
	TopicOrderStatusUpdated   = "order-status-updated"
	TopicPaymentStatusUpdated = "payment-status-updated"
)

// Topics lists every topic the Publisher writes to.
var Topics = []string{TopicOrderCreated, TopicOrderStatusUpdated, TopicPaymentStatusUpdated}

// Writer is the subset of *kafka.Writer the Publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultBatchTimeout bounds how long a synchronous write waits for its
// batch to fill.
const DefaultBatchTimeout = 10 * time.Millisecond

// Config selects the brokers to publish to. A zero BatchTimeout means
// DefaultBatchTimeout.
type Config struct {
	Brokers      []string
	ClientID     string
	BatchTimeout time.Duration
}

var (
	_ order.Notifier   = (*Publisher)(nil)
	_ payment.Notifier = (*Publisher)(nil)
)

// Publisher encodes lifecycle events and writes them to one writer per topic.
type Publisher struct {
	writers map[string]Writer
	now     func() time.Time
}

// NewKafkaPublisher creates a Publisher with a kafka.Writer per topic.
func NewKafkaPublisher(cfg Config) *Publisher {
	transport := &kafka.Transport{ClientID: cfg.ClientID}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	writers := make(map[string]Writer, len(Topics))
	for _, topic := range Topics {
		writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           batchTimeout,
			AllowAutoTopicCreation: true,
			Transport:              transport,
		}
	}
	return NewPublisher(writers)
}

// NewPublisher creates a Publisher over the given per-topic writers.
func NewPublisher(writers map[string]Writer) *Publisher {
	return &Publisher{writers: writers, now: time.Now}
}

// OrderCreated publishes a newly placed order.
func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, TopicOrderCreated, o.Number, encodeOrderCreated(o, p.now()))
}

// OrderStatusChanged publishes an order status transition.
func (p *Publisher) OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	return p.publish(ctx, TopicOrderStatusUpdated, o.Number, encodeOrderStatus(o, from, p.now()))
}

// PaymentStatusChanged publishes a payment status transition.
func (p *Publisher) PaymentStatusChanged(ctx context.Context, pay *payment.Payment, from payment.Status) error {
	return p.publish(ctx, TopicPaymentStatusUpdated, pay.PaymentID, encodePaymentStatus(pay, from, p.now()))
}

func (p *Publisher) publish(ctx context.Context, topic, key string, value []byte) error {
	w, ok := p.writers[topic]
	if !ok {
		return errors.Errorf("no writer for topic %q", topic)
	}
	err := w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: correlationHeaders(ctx),
		Time:    p.now(),
	})
	if err != nil {
		return errors.Wrapf(err, "write %s", topic)
	}
	return nil
}

func correlationHeaders(ctx context.Context) []kafka.Header {
	var hs []kafka.Header
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		hs = append(hs, kafka.Header{Key: HeaderRequestID, Value: []byte(id)})
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		hs = append(hs, kafka.Header{Key: HeaderTraceID, Value: []byte(sc.TraceID().String())})
	}
	return hs
}

// Close flushes and closes every writer.
func (p *Publisher) Close() error {
	var first error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s writer", topic)
		}
	}
	return first
}

// BrokerCheck returns a readiness check that dials the first reachable
// broker.
func BrokerCheck(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		if lastErr == nil {
			return errors.New("no kafka brokers configured")
		}
		return errors.Wrap(lastErr, "dial kafka")
	}
}

var (
	_ order.Notifier   = Nop{}
	_ payment.Notifier = Nop{}
)

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) OrderCreated(context.Context, *order.Order) error { return nil }

func (Nop) OrderStatusChanged(context.Context, *order.Order, order.Status) error { return nil }

func (Nop) PaymentStatusChanged(context.Context, *payment.Payment, payment.Status) error {
	return nil
}
