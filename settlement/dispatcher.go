package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"settlement-svc/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Delivery is one inbound webhook call.
type Delivery struct {
	Body      []byte
	Signature string
	// EventID is the gateway's delivery id; the signature is used when absent.
	EventID string
}

func (d Delivery) key() string {
	if d.EventID != "" {
		return d.EventID
	}
	return "sig:" + d.Signature
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// EventLog is the webhook audit trail.
type EventLog interface {
	// BeginEvent records a delivery and reports whether an earlier delivery
	// with the same id was already processed.
	BeginEvent(ctx context.Context, ev models.WebhookEvent) (alreadyProcessed bool, err error)
	FinishEvent(ctx context.Context, eventID string, status models.WebhookEventStatus, errMsg string) error
}

// DeliveryObserver receives one call per delivery.
type DeliveryObserver interface {
	WebhookHandled(eventType string, outcome Outcome)
}

type Dispatcher struct {
	verifier *Verifier
	handler  Handler
	events   EventLog
	observer DeliveryObserver
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(verifier *Verifier, handler Handler, events EventLog, observer DeliveryObserver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		verifier: verifier,
		handler:  handler,
		events:   events,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Process authenticates, classifies and applies one delivery synchronously.
// A nil error means the delivery may be acknowledged.
func (d *Dispatcher) Process(ctx context.Context, delivery Delivery) (Outcome, error) {
	ctx, span := otel.Tracer("settlement-service").Start(ctx, "DispatchWebhook")
	defer span.End()
	traceID := traceIDOf(span)

	if err := d.verifier.Verify(delivery.Body, delivery.Signature); err != nil {
		span.RecordError(err)
		d.logger.Warn("Rejected webhook", zap.String("trace_id", traceID), zap.Error(err))
		d.observe("unknown", OutcomeRejected)
		return OutcomeRejected, err
	}

	event, err := ParseEvent(delivery.Body)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("Invalid webhook payload",
			zap.String("trace_id", traceID),
			zap.Strings("payload_keys", payloadShape(delivery.Body)),
			zap.Int("payload_bytes", len(delivery.Body)),
			zap.Error(err),
		)
		d.observe("unknown", OutcomeRejected)
		return OutcomeRejected, err
	}

	eventType := event.Type()
	eventID := delivery.key()
	span.SetAttributes(attribute.String("event.type", eventType), attribute.String("event.id", eventID))

	processed, err := d.events.BeginEvent(ctx, models.WebhookEvent{
		EventID:    eventID,
		EventType:  eventType,
		Signature:  delivery.Signature,
		Payload:    delivery.Body,
		Status:     models.WebhookEventReceived,
		ReceivedAt: d.now(),
	})
	if err != nil {
		err = persistenceError("record webhook event", err)
		span.RecordError(err)
		d.logger.Error("Failed to record webhook event", zap.String("trace_id", traceID), zap.String("event_type", eventType), zap.Error(err))
		d.observe(eventType, OutcomeFailed)
		return OutcomeFailed, err
	}
	if processed {
		d.logger.Info("Duplicate webhook delivery", zap.String("trace_id", traceID), zap.String("event_id", eventID), zap.String("event_type", eventType))
		d.observe(eventType, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	err = event.dispatch(ctx, d.handler)
	switch {
	case errors.Is(err, errIgnored):
		d.logger.Info("Ignoring unhandled webhook event", zap.String("trace_id", traceID), zap.String("event_type", eventType))
		d.finish(ctx, eventID, models.WebhookEventIgnored, "", traceID)
		d.observe(eventType, OutcomeIgnored)
		return OutcomeIgnored, nil
	case err != nil:
		span.RecordError(err)
		d.logger.Error("Failed to apply webhook event", zap.String("trace_id", traceID), zap.String("event_type", eventType), zap.Error(err))
		d.finish(ctx, eventID, models.WebhookEventFailed, err.Error(), traceID)
		d.observe(eventType, OutcomeFailed)
		return OutcomeFailed, err
	}

	d.finish(ctx, eventID, models.WebhookEventProcessed, "", traceID)
	d.observe(eventType, OutcomeProcessed)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) finish(ctx context.Context, eventID string, status models.WebhookEventStatus, errMsg, traceID string) {
	if err := d.events.FinishEvent(ctx, eventID, status, errMsg); err != nil {
		d.logger.Warn("Failed to update webhook event", zap.String("trace_id", traceID), zap.String("event_id", eventID), zap.Error(err))
	}
}

func (d *Dispatcher) observe(eventType string, outcome Outcome) {
	if d.observer != nil {
		d.observer.WebhookHandled(eventType, outcome)
	}
}

// payloadShape lists the top-level keys of a JSON object for diagnostics.
func payloadShape(body []byte) []string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil
	}
	keys := make([]string, 0, len(top))
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
