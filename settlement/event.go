package settlement

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

var validate = validator.New()

// Handler applies recognised gateway events. Every Event variant except
// UnknownEvent maps to exactly one method.
type Handler interface {
	PaymentCaptured(ctx context.Context, ev PaymentCaptured) error
	PaymentFailed(ctx context.Context, ev PaymentFailed) error
	RefundProcessed(ctx context.Context, ev RefundProcessed) error
}

// Event is the closed set of gateway events this service understands.
type Event interface {
	Type() string
	dispatch(ctx context.Context, h Handler) error
}

type PaymentEntity struct {
	ID               string `json:"id" validate:"required"`
	OrderID          string `json:"order_id" validate:"required"`
	Amount           int64  `json:"amount" validate:"gte=0"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type RefundEntity struct {
	ID        string `json:"id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

type PaymentCaptured struct {
	Payment PaymentEntity
	Raw     []byte
}

type PaymentFailed struct {
	Payment PaymentEntity
	Raw     []byte
}

type RefundProcessed struct {
	Refund RefundEntity
	Raw    []byte
}

// UnknownEvent is any event type this service intentionally ignores.
type UnknownEvent struct {
	Name string
}

var errIgnored = errors.New("event type not handled")

func (PaymentCaptured) Type() string { return EventPaymentCaptured }
func (PaymentFailed) Type() string   { return EventPaymentFailed }
func (RefundProcessed) Type() string { return EventRefundProcessed }
func (e UnknownEvent) Type() string  { return e.Name }

func (e PaymentCaptured) dispatch(ctx context.Context, h Handler) error {
	return h.PaymentCaptured(ctx, e)
}

func (e PaymentFailed) dispatch(ctx context.Context, h Handler) error {
	return h.PaymentFailed(ctx, e)
}

func (e RefundProcessed) dispatch(ctx context.Context, h Handler) error {
	return h.RefundProcessed(ctx, e)
}

func (UnknownEvent) dispatch(context.Context, Handler) error {
	return errIgnored
}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity json.RawMessage `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity json.RawMessage `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// ParseEvent decodes a verified webhook body into an Event.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, validationError("malformed payload: %v", err)
	}
	if env.Event == "" {
		return nil, validationError("missing event type")
	}

	switch env.Event {
	case EventPaymentCaptured, EventPaymentFailed:
		if env.Payload.Payment == nil || len(env.Payload.Payment.Entity) == 0 {
			return nil, validationError("%s: missing payment entity", env.Event)
		}
		var entity PaymentEntity
		if err := decodeEntity(env.Payload.Payment.Entity, &entity); err != nil {
			return nil, validationError("%s: %v", env.Event, err)
		}
		if env.Event == EventPaymentCaptured {
			return PaymentCaptured{Payment: entity, Raw: body}, nil
		}
		return PaymentFailed{Payment: entity, Raw: body}, nil
	case EventRefundProcessed:
		if env.Payload.Refund == nil || len(env.Payload.Refund.Entity) == 0 {
			return nil, validationError("%s: missing refund entity", env.Event)
		}
		var entity RefundEntity
		if err := decodeEntity(env.Payload.Refund.Entity, &entity); err != nil {
			return nil, validationError("%s: %v", env.Event, err)
		}
		return RefundProcessed{Refund: entity, Raw: body}, nil
	}
	return UnknownEvent{Name: env.Event}, nil
}

func decodeEntity(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
