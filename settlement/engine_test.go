package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"settlement-svc/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SettlementEvent
	err    error
}

func (p *recordingPublisher) PublishSettlement(ctx context.Context, ev models.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	payouts   map[models.RecipientRole]int64
	remainder int64
	refunds   []models.RefundStatus
}

func (o *recordingObserver) PaymentSettled(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) PayoutCreated(role models.RecipientRole, amount int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.payouts == nil {
		o.payouts = map[models.RecipientRole]int64{}
	}
	o.payouts[role] += amount
}

func (o *recordingObserver) StaffRemainder(amount int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remainder += amount
}

func (o *recordingObserver) RefundApplied(status models.RefundStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refunds = append(o.refunds, status)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(ctx context.Context, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
}

type engineFixture struct {
	store     *memStore
	engine    *Engine
	publisher *recordingPublisher
	observer  *recordingObserver
	cache     *recordingCache
}

// newEngineFixture seeds the ₹10,000 match: venue ₹6,000, official ₹2,500
// and a ₹1,500 staff pool shared by two staff members.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := newMemStore()
	store.state.payments["order_1"] = models.Payment{
		ID:             "pay-int-1",
		GatewayOrderID: "order_1",
		MatchID:        "match-1",
		Amount:         1000000,
		Status:         models.PaymentStatusCreated,
		RefundStatus:   models.RefundStatusNone,
		Breakdown: models.AmountBreakdown{
			Venue:    models.CategoryAmount{Gross: 600000},
			Official: models.CategoryAmount{Gross: 250000},
			Staff:    models.CategoryAmount{Gross: 150000},
		},
	}
	store.state.matches["match-1"] = models.Match{
		ID:            "match-1",
		VenueID:       "venue-1",
		OfficialID:    "ref-1",
		StaffIDs:      []string{"staff-1", "staff-2"},
		MatchDate:     time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		MatchTime:     "18:00",
		PaymentStatus: models.MatchPaymentUnpaid,
	}
	store.state.venues["venue-1"] = models.Venue{ID: "venue-1", Name: "Kaloor Stadium", OwnerID: "owner-1"}
	for _, id := range []string{"owner-1", "ref-1", "staff-1", "staff-2"} {
		store.state.users[id] = true
	}

	calc, err := NewCalculator(nil)
	if err != nil {
		t.Fatalf("Failed to create calculator: %v", err)
	}
	f := &engineFixture{
		store:     store,
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
		cache:     &recordingCache{},
	}
	f.engine = NewEngine(store, calc, EngineConfig{
		Location:  time.UTC,
		Publisher: f.publisher,
		Cache:     f.cache,
		Observer:  f.observer,
		Now:       func() time.Time { return testNow },
	}, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	return f
}

func captured(orderID string) PaymentCaptured {
	return PaymentCaptured{
		Payment: PaymentEntity{ID: "pay_gw_1", OrderID: orderID, Amount: 1000000, Method: "upi"},
		Raw:     []byte(`{"event":"payment.captured"}`),
	}
}

func refunded(refundID string, amount int64) RefundProcessed {
	return RefundProcessed{
		Refund: RefundEntity{ID: refundID, PaymentID: "pay_gw_1", Amount: amount, Status: "processed"},
		Raw:    []byte(`{"event":"refund.processed"}`),
	}
}

func TestEngine_PaymentCaptured(t *testing.T) {
	f := newEngineFixture(t)

	if err := f.engine.PaymentCaptured(context.Background(), captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	state := f.store.state
	payment := state.payments["order_1"]
	if payment.Status != models.PaymentStatusCompleted {
		t.Errorf("Expected payment completed, got %s", payment.Status)
	}
	if payment.GatewayPaymentID != "pay_gw_1" || payment.PaymentMethod != "upi" {
		t.Errorf("Expected gateway fields to be recorded, got %q/%q", payment.GatewayPaymentID, payment.PaymentMethod)
	}
	if payment.Breakdown.Venue.Net != 540000 || payment.Breakdown.Staff.Commission != 15000 {
		t.Errorf("Expected settled breakdown, got %+v", payment.Breakdown)
	}

	if len(state.bookings) != 4 {
		t.Fatalf("Expected 4 bookings, got %d", len(state.bookings))
	}
	wantBookings := map[string]int64{"venue-1": 540000, "ref-1": 225000, "staff-1": 67500, "staff-2": 67500}
	for _, b := range state.bookings {
		if b.NetAmount != wantBookings[b.RecipientID] {
			t.Errorf("booking %s: expected net %d, got %d", b.RecipientID, wantBookings[b.RecipientID], b.NetAmount)
		}
		if b.Status != models.BookingStatusConfirmed {
			t.Errorf("booking %s: expected confirmed, got %s", b.RecipientID, b.Status)
		}
	}

	wantPayouts := map[string]int64{"owner-1": 540000, "ref-1": 225000, "staff-1": 67500, "staff-2": 67500}
	if len(state.payouts) != 4 {
		t.Fatalf("Expected 4 payouts, got %d", len(state.payouts))
	}
	for _, p := range state.payouts {
		if p.Amount != wantPayouts[p.RecipientID] {
			t.Errorf("payout %s: expected %d, got %d", p.RecipientID, wantPayouts[p.RecipientID], p.Amount)
		}
		if p.Status != models.PayoutStatusPending {
			t.Errorf("payout %s: expected pending, got %s", p.RecipientID, p.Status)
		}
		if p.PeriodStart.Format(dateLayout) != "2026-10-01" || p.PeriodEnd.Format(dateLayout) != "2026-10-31" {
			t.Errorf("payout %s: unexpected period %v..%v", p.RecipientID, p.PeriodStart, p.PeriodEnd)
		}
	}

	if len(state.summaries) != 4 {
		t.Fatalf("Expected 4 summaries, got %d", len(state.summaries))
	}
	for id, amount := range wantPayouts {
		sum := state.summaries[summaryKey{recipient: id, start: "2026-10-01"}]
		if sum.TotalPendingAmount != amount || sum.TotalPendingCount != 1 {
			t.Errorf("summary %s: expected %d/1, got %d/%d", id, amount, sum.TotalPendingAmount, sum.TotalPendingCount)
		}
	}

	match := state.matches["match-1"]
	if match.PaymentStatus != models.MatchPaymentPaid || match.PaymentID != "pay-int-1" {
		t.Errorf("Expected match paid by pay-int-1, got %s/%s", match.PaymentStatus, match.PaymentID)
	}

	if len(f.publisher.events) != 1 || f.publisher.events[0].EventType != models.EventPaymentSettled {
		t.Fatalf("Expected one settled event, got %+v", f.publisher.events)
	}
	if len(f.publisher.events[0].Payouts) != 4 {
		t.Errorf("Expected 4 payout refs, got %d", len(f.publisher.events[0].Payouts))
	}
	if len(f.cache.invalidated) != 4 {
		t.Errorf("Expected 4 cache invalidations, got %d", len(f.cache.invalidated))
	}
	if f.observer.payouts[models.RoleStaff] != 135000 {
		t.Errorf("Expected staff payouts of 135000, got %d", f.observer.payouts[models.RoleStaff])
	}
}

func TestEngine_PaymentCaptured_Duplicate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.PaymentCaptured(ctx, captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	before := f.store.state.clone()

	if err := f.engine.PaymentCaptured(ctx, captured("order_1")); err != nil {
		t.Fatalf("Expected duplicate capture to succeed, got %v", err)
	}

	if len(f.store.state.bookings) != len(before.bookings) {
		t.Errorf("Expected no new bookings, got %d", len(f.store.state.bookings)-len(before.bookings))
	}
	if len(f.store.state.payouts) != len(before.payouts) {
		t.Errorf("Expected no new payouts")
	}
	for k, sum := range f.store.state.summaries {
		if sum.TotalPendingAmount != before.summaries[k].TotalPendingAmount {
			t.Errorf("summary %s changed on duplicate: %d -> %d", k.recipient, before.summaries[k].TotalPendingAmount, sum.TotalPendingAmount)
		}
	}
	if len(f.publisher.events) != 1 {
		t.Errorf("Expected one published event, got %d", len(f.publisher.events))
	}
	if got := f.observer.outcomes; len(got) != 2 || got[1] != "duplicate" {
		t.Errorf("Expected settled then duplicate, got %v", got)
	}
}

func TestEngine_PaymentCaptured_ConcurrentDeliveries(t *testing.T) {
	f := newEngineFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.engine.PaymentCaptured(context.Background(), captured("order_1"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if len(f.store.state.payouts) != 4 {
		t.Errorf("Expected 4 payouts, got %d", len(f.store.state.payouts))
	}
	sum := f.store.state.summaries[summaryKey{recipient: "owner-1", start: "2026-10-01"}]
	if sum.TotalPendingAmount != 540000 || sum.TotalPendingCount != 1 {
		t.Errorf("Expected venue owner summary 540000/1, got %d/%d", sum.TotalPendingAmount, sum.TotalPendingCount)
	}
	if len(f.publisher.events) != 1 {
		t.Errorf("Expected one published event, got %d", len(f.publisher.events))
	}
}

func TestEngine_PaymentCaptured_UnknownOrder(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.PaymentCaptured(context.Background(), captured("order_missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("Expected nothing published, got %d", len(f.publisher.events))
	}
}

func TestEngine_PaymentCaptured_BreakdownExceedsAmount(t *testing.T) {
	f := newEngineFixture(t)
	p := f.store.state.payments["order_1"]
	p.Amount = 900000
	f.store.state.payments["order_1"] = p

	err := f.engine.PaymentCaptured(context.Background(), captured("order_1"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if got := f.store.state.payments["order_1"].Status; got != models.PaymentStatusCreated {
		t.Errorf("Expected claim to roll back, got status %s", got)
	}
}

func TestEngine_PaymentCaptured_RollsBackOnStorageFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.store.failOn = "IncrementSummary"

	err := f.engine.PaymentCaptured(context.Background(), captured("order_1"))
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errBoom) {
		t.Fatalf("Expected wrapped persistence error, got %v", err)
	}

	state := f.store.state
	if state.payments["order_1"].Status != models.PaymentStatusCreated {
		t.Errorf("Expected payment to remain created, got %s", state.payments["order_1"].Status)
	}
	if len(state.bookings) != 0 || len(state.payouts) != 0 || len(state.summaries) != 0 {
		t.Errorf("Expected no writes, got %d bookings, %d payouts, %d summaries", len(state.bookings), len(state.payouts), len(state.summaries))
	}

	// The gateway retries once storage recovers.
	f.store.failOn = ""
	if err := f.engine.PaymentCaptured(context.Background(), captured("order_1")); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(f.store.state.payouts) != 4 {
		t.Errorf("Expected 4 payouts after retry, got %d", len(f.store.state.payouts))
	}
}

func TestEngine_PaymentCaptured_UnresolvedRecipient(t *testing.T) {
	f := newEngineFixture(t)
	delete(f.store.state.users, "staff-2")

	if err := f.engine.PaymentCaptured(context.Background(), captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(f.store.state.bookings) != 4 {
		t.Errorf("Expected 4 bookings, got %d", len(f.store.state.bookings))
	}
	if len(f.store.state.payouts) != 3 {
		t.Errorf("Expected 3 payouts, got %d", len(f.store.state.payouts))
	}
	if _, ok := f.store.state.summaries[summaryKey{recipient: "staff-2", start: "2026-10-01"}]; ok {
		t.Error("Expected no summary for unresolved staff member")
	}
}

func TestEngine_PaymentCaptured_StaffRemainder(t *testing.T) {
	f := newEngineFixture(t)
	p := f.store.state.payments["order_1"]
	p.Amount = 1000001
	p.Breakdown.Staff.Gross = 150001
	f.store.state.payments["order_1"] = p

	if err := f.engine.PaymentCaptured(context.Background(), captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := f.store.state.payments["order_1"].PlatformRemainder; got != 1 {
		t.Errorf("Expected platform remainder 1, got %d", got)
	}
	if f.observer.remainder != 1 {
		t.Errorf("Expected remainder metric 1, got %d", f.observer.remainder)
	}
}

func TestEngine_PaymentFailed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	failure := PaymentFailed{Payment: PaymentEntity{ID: "pay_gw_0", OrderID: "order_1", ErrorCode: "BAD_REQUEST_ERROR"}}

	if err := f.engine.PaymentFailed(ctx, failure); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := f.store.state.payments["order_1"].Status; got != models.PaymentStatusFailed {
		t.Errorf("Expected failed, got %s", got)
	}
	if got := f.store.state.matches["match-1"].PaymentStatus; got != models.MatchPaymentFailed {
		t.Errorf("Expected match failed, got %s", got)
	}

	// A retried payment can still be captured after a failed attempt.
	if err := f.engine.PaymentCaptured(ctx, captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := f.engine.PaymentFailed(ctx, failure); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := f.store.state.payments["order_1"].Status; got != models.PaymentStatusCompleted {
		t.Errorf("Expected late failure to leave payment completed, got %s", got)
	}
	if got := f.store.state.matches["match-1"].PaymentStatus; got != models.MatchPaymentPaid {
		t.Errorf("Expected match to stay paid, got %s", got)
	}

	types := make([]string, 0, len(f.publisher.events))
	for _, ev := range f.publisher.events {
		types = append(types, ev.EventType)
	}
	if len(types) != 2 || types[0] != models.EventPaymentFailed || types[1] != models.EventPaymentSettled {
		t.Errorf("Unexpected published events %v", types)
	}
}

func TestEngine_PaymentFailed_UnknownOrder(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.PaymentFailed(context.Background(), PaymentFailed{Payment: PaymentEntity{ID: "x", OrderID: "nope"}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestEngine_RefundProcessed_PartialThenFull(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	if err := f.engine.PaymentCaptured(ctx, captured("order_1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	summariesBefore := f.store.state.clone().summaries

	if err := f.engine.RefundProcessed(ctx, refunded("rfnd_1", 400000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	payment := f.store.state.payments["order_1"]
	if payment.RefundStatus != models.RefundStatusPartial || payment.RefundedAmount != 400000 {
		t.Errorf("Expected partial 400000, got %s %d", payment.RefundStatus, payment.RefundedAmount)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected payment refunded, got %s", payment.Status)
	}
	if got := f.store.state.matches["match-1"].PaymentStatus; got != models.MatchPaymentPaid {
		t.Errorf("Expected match to stay paid on partial refund, got %s", got)
	}

	wantShare := map[string]int64{"venue-1": 240000, "ref-1": 100000, "staff-1": 30000, "staff-2": 30000}
	for _, b := range f.store.state.bookings {
		if b.Status != models.BookingStatusCancelled || !b.RefundProcessed {
			t.Errorf("booking %s: expected cancelled and refund processed", b.RecipientID)
		}
		if b.RefundAmount != wantShare[b.RecipientID] {
			t.Errorf("booking %s: expected refund %d, got %d", b.RecipientID, wantShare[b.RecipientID], b.RefundAmount)
		}
	}

	// Redelivery of the same refund changes nothing.
	if err := f.engine.RefundProcessed(ctx, refunded("rfnd_1", 400000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := f.store.state.payments["order_1"].RefundedAmount; got != 400000 {
		t.Errorf("Expected refund to apply once, got %d", got)
	}

	if err := f.engine.RefundProcessed(ctx, refunded("rfnd_2", 600000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	payment = f.store.state.payments["order_1"]
	if payment.RefundStatus != models.RefundStatusFull || payment.RefundedAmount != 1000000 {
		t.Errorf("Expected full 1000000, got %s %d", payment.RefundStatus, payment.RefundedAmount)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected payment refunded, got %s", payment.Status)
	}
	if got := f.store.state.matches["match-1"].PaymentStatus; got != models.MatchPaymentRefunded {
		t.Errorf("Expected match refunded, got %s", got)
	}

	for k, sum := range f.store.state.summaries {
		if sum.TotalPendingAmount != summariesBefore[k].TotalPendingAmount {
			t.Errorf("Expected refunds to leave summary %s untouched", k.recipient)
		}
	}
	if got := f.observer.refunds; len(got) != 2 || got[1] != models.RefundStatusFull {
		t.Errorf("Expected partial then full refund metrics, got %v", got)
	}
	last := f.publisher.events[len(f.publisher.events)-1]
	if last.EventType != models.EventPaymentRefunded || last.RefundedAmount != 1000000 {
		t.Errorf("Unexpected last event %+v", last)
	}
}

func TestEngine_RefundProcessed_BeforeCapture(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.RefundProcessed(context.Background(), refunded("rfnd_1", 1000))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if len(f.store.state.refunds) != 0 {
		t.Errorf("Expected refund not to be recorded")
	}
}

func TestEngine_PublishFailureDoesNotFailSettlement(t *testing.T) {
	f := newEngineFixture(t)
	f.publisher.err = errBoom

	if err := f.engine.PaymentCaptured(context.Background(), captured("order_1")); err != nil {
		t.Fatalf("Expected publish failure to be logged only, got %v", err)
	}
	if len(f.store.state.payouts) != 4 {
		t.Errorf("Expected payouts to be committed, got %d", len(f.store.state.payouts))
	}
}
