package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"settlement-svc/circuitbreaker"
	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func InitProducer(brokers []string, logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers))
	return producer, nil
}

// SettlementPublisher publishes settlement events keyed by payment id, so
// all events of one payment land on the same partition in order.
type SettlementPublisher struct {
	producer sarama.SyncProducer
	topic    string
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

var _ settlement.Publisher = (*SettlementPublisher)(nil)

func NewSettlementPublisher(producer sarama.SyncProducer, topic string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *SettlementPublisher {
	return &SettlementPublisher{producer: producer, topic: topic, breaker: breaker, logger: logger}
}

func (p *SettlementPublisher) PublishSettlement(ctx context.Context, event models.SettlementEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PaymentID),
		Value: sarama.ByteEncoder(eventJSON),
	}

	// Inject trace context into Kafka message headers
	carrier := make(saramaHeaderCarrierProducer, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = []sarama.RecordHeader(carrier)

	var (
		partition int32
		offset    int64
	)
	send := func(context.Context) error {
		var err error
		partition, offset, err = p.producer.SendMessage(msg)
		return err
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	traceID := ""
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}
	p.logger.Info("Settlement event published",
		zap.String("trace_id", traceID),
		zap.String("topic", p.topic),
		zap.String("event_type", event.EventType),
		zap.String("payment_id", event.PaymentID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}
