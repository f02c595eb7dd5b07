package settlement

import (
	"context"
	"errors"
	"time"

	"settlement-svc/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store runs settlement work inside a single storage transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the storage surface used while applying one event. Methods return
// errors wrapping ErrNotFound when a required row is missing.
type Tx interface {
	// ClaimCapture marks the payment completed if it is still created or
	// failed. claimed is false when the payment was already captured.
	ClaimCapture(ctx context.Context, gatewayOrderID string, upd models.CaptureUpdate) (payment *models.Payment, claimed bool, err error)
	// FailPayment marks a created payment failed. applied is false when the
	// payment had already moved on.
	FailPayment(ctx context.Context, gatewayOrderID string, upd models.FailureUpdate) (payment *models.Payment, applied bool, err error)
	LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)

	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	GetVenue(ctx context.Context, venueID string) (*models.Venue, error)
	ResolveUsers(ctx context.Context, ids []string) (map[string]bool, error)

	InsertBookings(ctx context.Context, bookings []models.Booking) error
	InsertPayout(ctx context.Context, payout models.Payout) (inserted bool, err error)
	IncrementSummary(ctx context.Context, payout models.Payout) error
	RecordSettlement(ctx context.Context, paymentID string, breakdown models.AmountBreakdown, platformRemainder int64) error
	SetMatchPayment(ctx context.Context, matchID string, status models.MatchPaymentStatus, paymentID string) error

	RecordRefund(ctx context.Context, refund models.Refund) (inserted bool, err error)
	UpdatePaymentRefund(ctx context.Context, paymentID string, state RefundState, at time.Time) error
	ListBookings(ctx context.Context, paymentID string) ([]models.Booking, error)
	CancelBookings(ctx context.Context, shares []models.BookingRefund, at time.Time) error
}

// Publisher announces settled, failed and refunded payments downstream.
type Publisher interface {
	PublishSettlement(ctx context.Context, event models.SettlementEvent) error
}

// SummaryCache is invalidated for every recipient whose summary changed.
type SummaryCache interface {
	Invalidate(ctx context.Context, recipientIDs []string)
}

// Observer receives settlement metrics.
type Observer interface {
	PaymentSettled(outcome string)
	PayoutCreated(role models.RecipientRole, amount int64)
	StaffRemainder(amount int64)
	RefundApplied(status models.RefundStatus)
}

type EngineConfig struct {
	Location      *time.Location
	Apportionment Apportionment
	Publisher     Publisher
	Cache         SummaryCache
	Observer      Observer
	Now           func() time.Time
}

// Engine applies gateway events to payments, bookings and payouts.
type Engine struct {
	store  Store
	calc   *Calculator
	cfg    EngineConfig
	logger *zap.Logger
}

var _ Handler = (*Engine)(nil)

func NewEngine(store Store, calc *Calculator, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Apportionment == "" {
		cfg.Apportionment = ApportionProportional
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{store: store, calc: calc, cfg: cfg, logger: logger}
}

type captureResult struct {
	payment   *models.Payment
	duplicate bool
	payouts   []models.Payout
}

// PaymentCaptured settles a captured payment. All writes share one
// transaction; a second delivery finds the payment already claimed and
// writes nothing.
func (e *Engine) PaymentCaptured(ctx context.Context, ev PaymentCaptured) error {
	ctx, span := otel.Tracer("settlement-service").Start(ctx, "SettleCapture")
	defer span.End()
	traceID := traceIDOf(span)
	span.SetAttributes(
		attribute.String("payment.order_id", ev.Payment.OrderID),
		attribute.String("payment.gateway_id", ev.Payment.ID),
	)

	now := e.cfg.Now()
	period := PeriodFor(now, e.cfg.Location)
	var res captureResult

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		payment, claimed, err := tx.ClaimCapture(ctx, ev.Payment.OrderID, models.CaptureUpdate{
			GatewayPaymentID: ev.Payment.ID,
			PaymentMethod:    ev.Payment.Method,
			Payload:          ev.Raw,
			CompletedAt:      now,
		})
		if err != nil {
			return persistenceError("claim payment", err)
		}
		if payment == nil {
			return notFoundError("payment for order", ev.Payment.OrderID)
		}
		res.payment = payment
		if !claimed {
			res.duplicate = true
			return nil
		}

		if ev.Payment.Amount != payment.Amount {
			e.logger.Warn("Captured amount differs from payment amount",
				zap.String("trace_id", traceID),
				zap.String("payment_id", payment.ID),
				zap.Int64("captured", ev.Payment.Amount),
				zap.Int64("expected", payment.Amount),
			)
		}
		if gross := payment.Breakdown.GrossTotal(); gross > payment.Amount {
			return validationError("breakdown total %d exceeds payment amount %d", gross, payment.Amount)
		}

		match, err := tx.GetMatch(ctx, payment.MatchID)
		if err != nil {
			return persistenceError("load match", err)
		}
		venue, err := tx.GetVenue(ctx, match.VenueID)
		if err != nil && !isNotFound(err) {
			return persistenceError("load venue", err)
		}

		split, err := e.calc.Split(payment.Breakdown, len(match.StaffRecipients()))
		if err != nil {
			return err
		}
		if payment.Breakdown.Staff.Gross > 0 && split.Staff == nil {
			e.logger.Warn("Staff amount without staff recipients",
				zap.String("trace_id", traceID),
				zap.String("payment_id", payment.ID),
				zap.Int64("staff_gross", payment.Breakdown.Staff.Gross),
			)
		}

		bookings := BuildBookings(payment, match, venue, split, now)
		if err := tx.InsertBookings(ctx, bookings); err != nil {
			return persistenceError("insert bookings", err)
		}

		resolved, err := tx.ResolveUsers(ctx, PayoutCandidates(match, split))
		if err != nil {
			return persistenceError("resolve payout recipients", err)
		}
		payouts, skipped := BuildPayouts(payment, match, venue, split, resolved, period, now)
		for _, s := range skipped {
			e.logger.Warn("Skipping payout",
				zap.String("trace_id", traceID),
				zap.String("payment_id", payment.ID),
				zap.String("role", string(s.Role)),
				zap.String("recipient_id", s.RecipientID),
				zap.String("reason", s.Reason),
			)
		}
		for _, p := range payouts {
			inserted, err := tx.InsertPayout(ctx, p)
			if err != nil {
				return persistenceError("insert payout", err)
			}
			if !inserted {
				continue
			}
			if err := tx.IncrementSummary(ctx, p); err != nil {
				return persistenceError("increment payout summary", err)
			}
			res.payouts = append(res.payouts, p)
		}

		if split.StaffRemainder.Gross > 0 {
			e.logger.Info("Staff split remainder retained by platform",
				zap.String("trace_id", traceID),
				zap.String("payment_id", payment.ID),
				zap.Int64("gross_remainder", split.StaffRemainder.Gross),
				zap.Int64("commission_remainder", split.StaffRemainder.Commission),
				zap.Int("staff_count", split.StaffCount),
			)
		}
		if err := tx.RecordSettlement(ctx, payment.ID, split.Apply(payment.Breakdown), split.StaffRemainder.Gross); err != nil {
			return persistenceError("record settlement", err)
		}
		if err := tx.SetMatchPayment(ctx, match.ID, models.MatchPaymentPaid, payment.ID); err != nil {
			return persistenceError("mark match paid", err)
		}
		payment.PlatformRemainder = split.StaffRemainder.Gross
		return nil
	})
	if err != nil {
		span.RecordError(err)
		e.settled("error")
		return err
	}

	if res.duplicate {
		e.logger.Info("Payment already captured",
			zap.String("trace_id", traceID),
			zap.String("payment_id", res.payment.ID),
			zap.String("order_id", ev.Payment.OrderID),
		)
		e.settled("duplicate")
		return nil
	}

	e.logger.Info("Payment settled",
		zap.String("trace_id", traceID),
		zap.String("payment_id", res.payment.ID),
		zap.String("order_id", ev.Payment.OrderID),
		zap.Int("payouts", len(res.payouts)),
	)
	e.settled("settled")

	recipients := make([]string, 0, len(res.payouts))
	refs := make([]models.PayoutRef, 0, len(res.payouts))
	for _, p := range res.payouts {
		recipients = append(recipients, p.RecipientID)
		refs = append(refs, models.PayoutRef{RecipientID: p.RecipientID, RecipientRole: p.RecipientRole, Amount: p.Amount})
		if e.cfg.Observer != nil {
			e.cfg.Observer.PayoutCreated(p.RecipientRole, p.Amount)
		}
	}
	if e.cfg.Observer != nil && res.payment.PlatformRemainder > 0 {
		e.cfg.Observer.StaffRemainder(res.payment.PlatformRemainder)
	}
	if e.cfg.Cache != nil && len(recipients) > 0 {
		e.cfg.Cache.Invalidate(ctx, recipients)
	}
	e.publish(ctx, traceID, models.SettlementEvent{
		EventType:        models.EventPaymentSettled,
		PaymentID:        res.payment.ID,
		GatewayOrderID:   ev.Payment.OrderID,
		GatewayPaymentID: ev.Payment.ID,
		MatchID:          res.payment.MatchID,
		Amount:           res.payment.Amount,
		Payouts:          refs,
		OccurredAt:       now,
	})
	return nil
}

// PaymentFailed records a failed attempt. Only a created payment moves to
// failed; a payment that already settled is left alone.
func (e *Engine) PaymentFailed(ctx context.Context, ev PaymentFailed) error {
	ctx, span := otel.Tracer("settlement-service").Start(ctx, "RecordPaymentFailure")
	defer span.End()
	traceID := traceIDOf(span)
	span.SetAttributes(attribute.String("payment.order_id", ev.Payment.OrderID))

	now := e.cfg.Now()
	var (
		payment *models.Payment
		applied bool
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		payment, applied, err = tx.FailPayment(ctx, ev.Payment.OrderID, models.FailureUpdate{
			GatewayPaymentID: ev.Payment.ID,
			Code:             ev.Payment.ErrorCode,
			Description:      ev.Payment.ErrorDescription,
			Payload:          ev.Raw,
			FailedAt:         now,
		})
		if err != nil {
			return persistenceError("mark payment failed", err)
		}
		if payment == nil {
			return notFoundError("payment for order", ev.Payment.OrderID)
		}
		if !applied || payment.MatchID == "" {
			return nil
		}
		if err := tx.SetMatchPayment(ctx, payment.MatchID, models.MatchPaymentFailed, ""); err != nil {
			return persistenceError("mark match payment failed", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !applied {
		e.logger.Info("Ignoring failure for payment no longer pending",
			zap.String("trace_id", traceID),
			zap.String("payment_id", payment.ID),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}

	e.logger.Info("Payment failed",
		zap.String("trace_id", traceID),
		zap.String("payment_id", payment.ID),
		zap.String("error_code", ev.Payment.ErrorCode),
	)
	e.publish(ctx, traceID, models.SettlementEvent{
		EventType:        models.EventPaymentFailed,
		PaymentID:        payment.ID,
		GatewayOrderID:   ev.Payment.OrderID,
		GatewayPaymentID: ev.Payment.ID,
		MatchID:          payment.MatchID,
		Amount:           payment.Amount,
		OccurredAt:       now,
	})
	return nil
}

// RefundProcessed applies one refund to its payment and cancels the
// payment's bookings. Each gateway refund id is applied at most once.
func (e *Engine) RefundProcessed(ctx context.Context, ev RefundProcessed) error {
	ctx, span := otel.Tracer("settlement-service").Start(ctx, "ApplyRefund")
	defer span.End()
	traceID := traceIDOf(span)
	span.SetAttributes(
		attribute.String("refund.id", ev.Refund.ID),
		attribute.String("payment.gateway_id", ev.Refund.PaymentID),
		attribute.Int64("refund.amount", ev.Refund.Amount),
	)

	now := e.cfg.Now()
	var (
		payment   *models.Payment
		state     RefundState
		applied   int64
		duplicate bool
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		payment, err = tx.LockPaymentByGatewayID(ctx, ev.Refund.PaymentID)
		if err != nil {
			return persistenceError("load payment", err)
		}
		if !payment.Settled() {
			return notFoundError("captured payment", ev.Refund.PaymentID)
		}

		inserted, err := tx.RecordRefund(ctx, models.Refund{
			ID:          ev.Refund.ID,
			PaymentID:   payment.ID,
			Amount:      ev.Refund.Amount,
			Status:      ev.Refund.Status,
			ProcessedAt: now,
		})
		if err != nil {
			return persistenceError("record refund", err)
		}
		if !inserted {
			duplicate = true
			return nil
		}

		prev := RefundState{Refunded: payment.RefundedAmount, Status: payment.RefundStatus}
		state, applied = ApplyRefund(prev, ev.Refund.Amount, payment.Amount)
		if applied < ev.Refund.Amount {
			e.logger.Warn("Refund exceeds remaining payment amount",
				zap.String("trace_id", traceID),
				zap.String("payment_id", payment.ID),
				zap.Int64("refund", ev.Refund.Amount),
				zap.Int64("applied", applied),
			)
		}
		if err := tx.UpdatePaymentRefund(ctx, payment.ID, state, now); err != nil {
			return persistenceError("update payment refund", err)
		}

		bookings, err := tx.ListBookings(ctx, payment.ID)
		if err != nil {
			return persistenceError("list bookings", err)
		}
		if err := tx.CancelBookings(ctx, Apportion(e.cfg.Apportionment, bookings, applied), now); err != nil {
			return persistenceError("cancel bookings", err)
		}

		if state.Status == models.RefundStatusFull && payment.MatchID != "" {
			if err := tx.SetMatchPayment(ctx, payment.MatchID, models.MatchPaymentRefunded, payment.ID); err != nil {
				return persistenceError("mark match refunded", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if duplicate {
		e.logger.Info("Refund already applied",
			zap.String("trace_id", traceID),
			zap.String("refund_id", ev.Refund.ID),
			zap.String("payment_id", payment.ID),
		)
		return nil
	}

	e.logger.Info("Refund applied",
		zap.String("trace_id", traceID),
		zap.String("refund_id", ev.Refund.ID),
		zap.String("payment_id", payment.ID),
		zap.Int64("refunded_amount", state.Refunded),
		zap.String("refund_status", string(state.Status)),
	)
	if e.cfg.Observer != nil {
		e.cfg.Observer.RefundApplied(state.Status)
	}
	e.publish(ctx, traceID, models.SettlementEvent{
		EventType:        models.EventPaymentRefunded,
		PaymentID:        payment.ID,
		GatewayOrderID:   payment.GatewayOrderID,
		GatewayPaymentID: ev.Refund.PaymentID,
		MatchID:          payment.MatchID,
		Amount:           payment.Amount,
		RefundedAmount:   state.Refunded,
		RefundStatus:     state.Status,
		OccurredAt:       now,
	})
	return nil
}

// publish logs and drops publisher failures.
func (e *Engine) publish(ctx context.Context, traceID string, event models.SettlementEvent) {
	if e.cfg.Publisher == nil {
		return
	}
	if err := e.cfg.Publisher.PublishSettlement(ctx, event); err != nil {
		e.logger.Error("Failed to publish settlement event",
			zap.String("trace_id", traceID),
			zap.String("event_type", event.EventType),
			zap.String("payment_id", event.PaymentID),
			zap.Error(err),
		)
	}
}

func (e *Engine) settled(outcome string) {
	if e.cfg.Observer != nil {
		e.cfg.Observer.PaymentSettled(outcome)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func traceIDOf(span trace.Span) string {
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
