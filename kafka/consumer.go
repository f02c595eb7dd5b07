package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-svc/settlement"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Header names carried by replayed webhook messages.
const (
	HeaderSignature = "x-razorpay-signature"
	HeaderEventID   = "x-razorpay-event-id"
)

// retryBackoff is the base delay between attempts; attempt n waits n × retryBackoff.
var retryBackoff = time.Second

// Processor applies one webhook delivery.
type Processor interface {
	Process(ctx context.Context, d settlement.Delivery) (settlement.Outcome, error)
}

func InitConsumer(brokers []string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartReplayConsumer feeds raw webhook bodies from topic through processor
// until ctx is cancelled. Message value is the exact body the gateway signed.
func StartReplayConsumer(ctx context.Context, consumer sarama.Consumer, topic string, processor Processor, logger *zap.Logger) error {
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Kafka replay consumer started", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Kafka replay consumer stopped", zap.String("topic", topic))
			return nil
		case message, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}
			if err := handleMessageWithRetry(ctx, message, processor, logger, 3); err != nil {
				logger.Error("Failed to replay webhook after retries",
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-partitionConsumer.Errors():
			if !ok {
				return nil
			}
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage, processor Processor, logger *zap.Logger, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := handleMessage(ctx, message, processor, logger)
		if err == nil {
			return nil
		}
		if errors.Is(err, settlement.ErrAuthentication) || errors.Is(err, settlement.ErrValidation) {
			return err
		}
		lastErr = err
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * retryBackoff
			logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func handleMessage(ctx context.Context, message *sarama.ConsumerMessage, processor Processor, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := otel.Tracer("settlement-service").Start(ctx, "ReplayWebhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.topic", message.Topic),
		attribute.Int64("messaging.offset", message.Offset),
	)

	outcome, err := processor.Process(ctx, settlement.Delivery{
		Body:      message.Value,
		Signature: carrier.Get(HeaderSignature),
		EventID:   carrier.Get(HeaderEventID),
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	traceID := ""
	if span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}
	logger.Info("Replayed webhook",
		zap.String("trace_id", traceID),
		zap.Int64("offset", message.Offset),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
