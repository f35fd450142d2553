package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink mirrors dispatched events onto a Kafka topic so external
// consumers (reporting, SLA monitors) see the same stream the in-process
// handlers do. Publishing is best-effort; broker failures are logged and
// dropped.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaSink builds a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
	}
}

// Attach subscribes the sink to every event type on the dispatcher.
func (s *KafkaSink) Attach(dispatcher Dispatcher) {
	types := []EventType{
		EventTicketCreated,
		EventTicketIngested,
		EventTicketStatusChanged,
		EventTicketPriorityChanged,
		EventTicketTaken,
		EventTicketReassigned,
		EventTicketMessageAdded,
	}
	for _, t := range types {
		dispatcher.Subscribe(t, s.handle)
	}
}

func (s *KafkaSink) handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("kafka sink: marshal event", zap.Error(err))
		return nil
	}
	// Keyed by ticket id so per-ticket ordering survives partitioning.
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TicketID, 10)),
		Value: payload,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("kafka sink: write event",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
