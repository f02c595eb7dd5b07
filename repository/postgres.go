package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

const paymentColumns = `id, gateway_order_id, COALESCE(gateway_payment_id, ''), COALESCE(match_id, ''),
	amount, status, COALESCE(payment_method, ''), amount_breakdown, refund_status,
	refunded_amount, platform_remainder`

// PostgresStore implements settlement.Store on a *sql.DB.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ settlement.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// WithinTx runs fn in a transaction, committing only if fn returns nil.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", settlement.ErrPersistence, err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", settlement.ErrPersistence, err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.GatewayOrderID, &p.GatewayPaymentID, &p.MatchID,
		&p.Amount, &p.Status, &p.PaymentMethod, &p.Breakdown, &p.RefundStatus,
		&p.RefundedAmount, &p.PlatformRemainder)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) paymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE gateway_order_id = $1", orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}

func (t *pgTx) ClaimCapture(ctx context.Context, orderID string, upd models.CaptureUpdate) (*models.Payment, bool, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx, `
		UPDATE payments
		SET status = 'completed', gateway_payment_id = $2, payment_method = $3, webhook_payload = $4,
			completed_at = $5, failure_code = NULL, failure_description = NULL, updated_at = $5
		WHERE gateway_order_id = $1 AND status IN ('created', 'failed')
		RETURNING `+paymentColumns,
		orderID, upd.GatewayPaymentID, upd.PaymentMethod, string(upd.Payload), upd.CompletedAt,
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim payment: %w", err)
	}
	p, err = t.paymentByOrderID(ctx, orderID)
	return p, false, err
}

func (t *pgTx) FailPayment(ctx context.Context, orderID string, upd models.FailureUpdate) (*models.Payment, bool, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx, `
		UPDATE payments
		SET status = 'failed', gateway_payment_id = $2, failure_code = $3, failure_description = $4,
			webhook_payload = $5, failed_at = $6, updated_at = $6
		WHERE gateway_order_id = $1 AND status = 'created'
		RETURNING `+paymentColumns,
		orderID, upd.GatewayPaymentID, upd.Code, upd.Description, string(upd.Payload), upd.FailedAt,
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	p, err = t.paymentByOrderID(ctx, orderID)
	return p, false, err
}

func (t *pgTx) LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE gateway_payment_id = $1 FOR UPDATE", gatewayPaymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %q", settlement.ErrNotFound, gatewayPaymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return p, nil
}

func (t *pgTx) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, venue_id, COALESCE(official_id, ''), staff_ids, match_date, COALESCE(match_time, ''),
			payment_status, COALESCE(payment_id, '')
		FROM matches WHERE id = $1`, matchID,
	).Scan(&m.ID, &m.VenueID, &m.OfficialID, pq.Array(&m.StaffIDs), &m.MatchDate, &m.MatchTime,
		&m.PaymentStatus, &m.PaymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: match %q", settlement.ErrNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	return &m, nil
}

func (t *pgTx) GetVenue(ctx context.Context, venueID string) (*models.Venue, error) {
	var v models.Venue
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, name, COALESCE(owner_id, '') FROM venues WHERE id = $1", venueID,
	).Scan(&v.ID, &v.Name, &v.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: venue %q", settlement.ErrNotFound, venueID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load venue: %w", err)
	}
	return &v, nil
}

func (t *pgTx) ResolveUsers(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := t.tx.QueryContext(ctx, "SELECT id FROM users WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

// InsertBookings writes every booking in one statement.
func (t *pgTx) InsertBookings(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	const cols = 11
	values := make([]string, 0, len(bookings))
	args := make([]interface{}, 0, len(bookings)*cols)
	for i, b := range bookings {
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*cols+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args, b.ID, b.PaymentID, b.MatchID, b.Category, b.RecipientID,
			b.GrossAmount, b.Commission, b.NetAmount, b.Status, string(b.Details), b.ConfirmedAt)
	}
	query := `INSERT INTO bookings (id, payment_id, match_id, category, recipient_id,
		gross_amount, commission, net_amount, status, details, confirmed_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (payment_id, category, recipient_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert bookings: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayout(ctx context.Context, p models.Payout) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payouts (id, recipient_id, recipient_role, payment_id, match_id, amount, status,
			period_start, period_end, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id, recipient_id, recipient_role) DO NOTHING
		RETURNING id`,
		p.ID, p.RecipientID, p.RecipientRole, p.PaymentID, p.MatchID, p.Amount, p.Status,
		p.PeriodStart.Format(dateLayout), p.PeriodEnd.Format(dateLayout), p.Note, p.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert payout: %w", err)
	}
	return true, nil
}

// IncrementSummary adds one payout to its recipient's period summary.
func (t *pgTx) IncrementSummary(ctx context.Context, p models.Payout) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payout_period_summaries (recipient_id, recipient_role, period_start, period_end,
			total_pending_amount, total_pending_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (recipient_id, period_start, period_end) DO UPDATE
		SET total_pending_amount = payout_period_summaries.total_pending_amount + EXCLUDED.total_pending_amount,
			total_pending_count = payout_period_summaries.total_pending_count + EXCLUDED.total_pending_count,
			last_updated = EXCLUDED.last_updated`,
		p.RecipientID, p.RecipientRole, p.PeriodStart.Format(dateLayout), p.PeriodEnd.Format(dateLayout),
		p.Amount, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to increment payout summary: %w", err)
	}
	return nil
}

func (t *pgTx) RecordSettlement(ctx context.Context, paymentID string, breakdown models.AmountBreakdown, remainder int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE payments SET amount_breakdown = $2, platform_remainder = $3, updated_at = now() WHERE id = $1",
		paymentID, breakdown, remainder,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	return nil
}

// SetMatchPayment updates a match's payment flag. A paid match is never
// downgraded to failed.
func (t *pgTx) SetMatchPayment(ctx context.Context, matchID string, status models.MatchPaymentStatus, paymentID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE matches
		SET payment_status = $2, payment_id = COALESCE(NULLIF($3, ''), payment_id)
		WHERE id = $1 AND NOT (payment_status = 'paid' AND $2 = 'failed')`,
		matchID, status, paymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update match payment status: %w", err)
	}
	return nil
}

func (t *pgTx) RecordRefund(ctx context.Context, r models.Refund) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO refunds (id, payment_id, amount, status, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`,
		r.ID, r.PaymentID, r.Amount, r.Status, r.ProcessedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record refund: %w", err)
	}
	return true, nil
}

func (t *pgTx) UpdatePaymentRefund(ctx context.Context, paymentID string, state settlement.RefundState, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'refunded', refunded_amount = $2, refund_status = $3, refunded_at = $4, updated_at = $4
		WHERE id = $1`,
		paymentID, state.Refunded, state.Status, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment refund: %w", err)
	}
	return nil
}

func (t *pgTx) ListBookings(ctx context.Context, paymentID string) ([]models.Booking, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, payment_id, match_id, category, recipient_id, gross_amount, commission, net_amount,
			status, confirmed_at, refund_amount
		FROM bookings WHERE payment_id = $1 ORDER BY category, recipient_id`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.PaymentID, &b.MatchID, &b.Category, &b.RecipientID,
			&b.GrossAmount, &b.Commission, &b.NetAmount, &b.Status, &b.ConfirmedAt, &b.RefundAmount); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CancelBookings cancels the listed bookings and adds each refund share.
func (t *pgTx) CancelBookings(ctx context.Context, shares []models.BookingRefund, at time.Time) error {
	if len(shares) == 0 {
		return nil
	}
	ids := make([]string, len(shares))
	amounts := make([]int64, len(shares))
	for i, s := range shares {
		ids[i] = s.BookingID
		amounts[i] = s.Amount
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE bookings AS b
		SET status = 'cancelled', cancelled_at = COALESCE(b.cancelled_at, $3),
			refund_amount = b.refund_amount + r.amount, refund_processed = true
		FROM unnest($1::text[], $2::bigint[]) AS r(id, amount)
		WHERE b.id = r.id`,
		pq.Array(ids), pq.Array(amounts), at,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel bookings: %w", err)
	}
	return nil
}
