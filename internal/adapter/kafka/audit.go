// Package kafka publishes observability events to an audit topic,
// fire-and-forget.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sewagewatch/cso-live-service/internal/observability"
)

const (
	emitBuffer   = 256
	produceLimit = 5 * time.Second
)

// AuditSink buffers events on a bounded channel and drains them to Kafka
// in the background. Emit never blocks: when the buffer is full or the
// broker is failing, events are dropped and counted.
type AuditSink struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
	ch      chan observability.Event
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAuditSink creates the producer and starts its drain loop.
func NewAuditSink(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *AuditSink {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	s := &AuditSink{
		writer:  w,
		logger:  logger,
		metrics: metrics,
		ch:      make(chan observability.Event, emitBuffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit queues an event for publication. Never blocks the request path,
// and never panics: events arriving during or after shutdown are dropped
// and counted like any other overflow.
func (s *AuditSink) Emit(e observability.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.metrics.AuditDropped.Inc()
		return
	}
	select {
	case s.ch <- e:
	default:
		s.metrics.AuditDropped.Inc()
	}
}

// Close stops accepting events, drains the buffer, and closes the
// producer. Safe to call more than once.
func (s *AuditSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}

func (s *AuditSink) run() {
	defer close(s.done)
	for e := range s.ch {
		msg, err := serializeEvent(e)
		if err != nil {
			s.metrics.AuditDropped.Inc()
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), produceLimit)
		err = s.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			s.metrics.AuditDropped.Inc()
			s.logger.Debug("audit event dropped", "kind", e.Kind(), "error", err)
		}
	}
}

// envelope is the wire shape of an audit record.
type envelope struct {
	Kind  string              `json:"kind"`
	At    time.Time           `json:"at"`
	Event observability.Event `json:"event"`
}

func serializeEvent(e observability.Event) (kafkago.Message, error) {
	data, err := json.Marshal(envelope{Kind: e.Kind(), At: time.Now().UTC(), Event: e})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize audit event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.Kind()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(e.Kind())},
		},
	}, nil
}
