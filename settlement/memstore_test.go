package settlement

import (
	"context"
	"sync"
	"time"

	"settlement-svc/models"
)

type summaryKey struct {
	recipient string
	start     string
}

type memState struct {
	payments  map[string]models.Payment // by gateway order id
	matches   map[string]models.Match
	venues    map[string]models.Venue
	users     map[string]bool
	bookings  []models.Booking
	payouts   map[string]models.Payout // by payment/role/recipient
	summaries map[summaryKey]models.PayoutPeriodSummary
	refunds   map[string]models.Refund
}

func (s memState) clone() memState {
	c := memState{
		payments:  make(map[string]models.Payment, len(s.payments)),
		matches:   make(map[string]models.Match, len(s.matches)),
		venues:    s.venues,
		users:     s.users,
		bookings:  append([]models.Booking(nil), s.bookings...),
		payouts:   make(map[string]models.Payout, len(s.payouts)),
		summaries: make(map[summaryKey]models.PayoutPeriodSummary, len(s.summaries)),
		refunds:   make(map[string]models.Refund, len(s.refunds)),
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.summaries {
		c.summaries[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	return c
}

// memStore serializes transactions and restores the previous state on error.
type memStore struct {
	mu    sync.Mutex
	state memState
	// failOn makes the named Tx method return errBoom.
	failOn string
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		payments:  map[string]models.Payment{},
		matches:   map[string]models.Match{},
		venues:    map[string]models.Venue{},
		users:     map[string]bool{},
		payouts:   map[string]models.Payout{},
		summaries: map[summaryKey]models.PayoutPeriodSummary{},
		refunds:   map[string]models.Refund{},
	}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(&memTx{store: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) s() *memState { return &t.store.state }

func (t *memTx) fail(method string) error {
	if t.store.failOn == method {
		return errBoom
	}
	return nil
}

func (t *memTx) ClaimCapture(ctx context.Context, orderID string, upd models.CaptureUpdate) (*models.Payment, bool, error) {
	if err := t.fail("ClaimCapture"); err != nil {
		return nil, false, err
	}
	p, ok := t.s().payments[orderID]
	if !ok {
		return nil, false, nil
	}
	if p.Status != models.PaymentStatusCreated && p.Status != models.PaymentStatusFailed {
		return &p, false, nil
	}
	p.Status = models.PaymentStatusCompleted
	p.GatewayPaymentID = upd.GatewayPaymentID
	p.PaymentMethod = upd.PaymentMethod
	at := upd.CompletedAt
	p.CompletedAt = &at
	t.s().payments[orderID] = p
	return &p, true, nil
}

func (t *memTx) FailPayment(ctx context.Context, orderID string, upd models.FailureUpdate) (*models.Payment, bool, error) {
	p, ok := t.s().payments[orderID]
	if !ok {
		return nil, false, nil
	}
	if p.Status != models.PaymentStatusCreated {
		return &p, false, nil
	}
	p.Status = models.PaymentStatusFailed
	p.FailureCode = upd.Code
	p.FailureDescription = upd.Description
	at := upd.FailedAt
	p.FailedAt = &at
	t.s().payments[orderID] = p
	return &p, true, nil
}

func (t *memTx) LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	for _, p := range t.s().payments {
		if p.GatewayPaymentID == gatewayPaymentID {
			return &p, nil
		}
	}
	return nil, notFoundError("payment", gatewayPaymentID)
}

func (t *memTx) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	m, ok := t.s().matches[matchID]
	if !ok {
		return nil, notFoundError("match", matchID)
	}
	return &m, nil
}

func (t *memTx) GetVenue(ctx context.Context, venueID string) (*models.Venue, error) {
	v, ok := t.s().venues[venueID]
	if !ok {
		return nil, notFoundError("venue", venueID)
	}
	return &v, nil
}

func (t *memTx) ResolveUsers(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t.s().users[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (t *memTx) InsertBookings(ctx context.Context, bookings []models.Booking) error {
	if err := t.fail("InsertBookings"); err != nil {
		return err
	}
	for _, b := range bookings {
		dup := false
		for _, existing := range t.s().bookings {
			if existing.PaymentID == b.PaymentID && existing.Category == b.Category && existing.RecipientID == b.RecipientID {
				dup = true
				break
			}
		}
		if !dup {
			t.s().bookings = append(t.s().bookings, b)
		}
	}
	return nil
}

func payoutKey(p models.Payout) string {
	return p.PaymentID + "/" + string(p.RecipientRole) + "/" + p.RecipientID
}

func (t *memTx) InsertPayout(ctx context.Context, p models.Payout) (bool, error) {
	if _, ok := t.s().payouts[payoutKey(p)]; ok {
		return false, nil
	}
	t.s().payouts[payoutKey(p)] = p
	return true, nil
}

func (t *memTx) IncrementSummary(ctx context.Context, p models.Payout) error {
	if err := t.fail("IncrementSummary"); err != nil {
		return err
	}
	key := summaryKey{recipient: p.RecipientID, start: p.PeriodStart.Format(dateLayout)}
	sum := t.s().summaries[key]
	sum.RecipientID = p.RecipientID
	sum.RecipientRole = p.RecipientRole
	sum.PeriodStart = p.PeriodStart
	sum.PeriodEnd = p.PeriodEnd
	sum.TotalPendingAmount += p.Amount
	sum.TotalPendingCount++
	sum.LastUpdated = p.CreatedAt
	t.s().summaries[key] = sum
	return nil
}

func (t *memTx) paymentByID(id string) (string, models.Payment) {
	for k, p := range t.s().payments {
		if p.ID == id {
			return k, p
		}
	}
	return "", models.Payment{}
}

func (t *memTx) RecordSettlement(ctx context.Context, paymentID string, breakdown models.AmountBreakdown, remainder int64) error {
	k, p := t.paymentByID(paymentID)
	p.Breakdown = breakdown
	p.PlatformRemainder = remainder
	t.s().payments[k] = p
	return nil
}

func (t *memTx) SetMatchPayment(ctx context.Context, matchID string, status models.MatchPaymentStatus, paymentID string) error {
	m, ok := t.s().matches[matchID]
	if !ok {
		return nil
	}
	if m.PaymentStatus == models.MatchPaymentPaid && status == models.MatchPaymentFailed {
		return nil
	}
	m.PaymentStatus = status
	if paymentID != "" {
		m.PaymentID = paymentID
	}
	t.s().matches[matchID] = m
	return nil
}

func (t *memTx) RecordRefund(ctx context.Context, r models.Refund) (bool, error) {
	if _, ok := t.s().refunds[r.ID]; ok {
		return false, nil
	}
	t.s().refunds[r.ID] = r
	return true, nil
}

func (t *memTx) UpdatePaymentRefund(ctx context.Context, paymentID string, state RefundState, at time.Time) error {
	k, p := t.paymentByID(paymentID)
	p.RefundedAmount = state.Refunded
	p.RefundStatus = state.Status
	p.Status = models.PaymentStatusRefunded
	p.RefundedAt = &at
	t.s().payments[k] = p
	return nil
}

func (t *memTx) ListBookings(ctx context.Context, paymentID string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range t.s().bookings {
		if b.PaymentID == paymentID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) CancelBookings(ctx context.Context, shares []models.BookingRefund, at time.Time) error {
	for _, share := range shares {
		for i := range t.s().bookings {
			b := &t.s().bookings[i]
			if b.ID != share.BookingID {
				continue
			}
			b.Status = models.BookingStatusCancelled
			b.RefundAmount += share.Amount
			b.RefundProcessed = true
			cancelled := at
			b.CancelledAt = &cancelled
		}
	}
	return nil
}
