package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settlement-svc/models"
	"settlement-svc/settlement"
)

const summaryColumns = `recipient_id, recipient_role, period_start, period_end,
	total_pending_amount, total_pending_count, last_updated`

func scanSummary(row rowScanner) (models.PayoutPeriodSummary, error) {
	var s models.PayoutPeriodSummary
	err := row.Scan(&s.RecipientID, &s.RecipientRole, &s.PeriodStart, &s.PeriodEnd,
		&s.TotalPendingAmount, &s.TotalPendingCount, &s.LastUpdated)
	return s, err
}

// ListSummaries returns a recipient's most recent period summaries, newest first.
func (s *PostgresStore) ListSummaries(ctx context.Context, recipientID string, limit int) ([]models.PayoutPeriodSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryColumns+" FROM payout_period_summaries WHERE recipient_id = $1 ORDER BY period_start DESC LIMIT $2",
		recipientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout summaries: %w", err)
	}
	defer rows.Close()

	summaries := []models.PayoutPeriodSummary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// GetSummary returns the summary for one period, or nil if the recipient has none.
func (s *PostgresStore) GetSummary(ctx context.Context, recipientID string, period settlement.Period) (*models.PayoutPeriodSummary, error) {
	summary, err := scanSummary(s.db.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM payout_period_summaries WHERE recipient_id = $1 AND period_start = $2 AND period_end = $3",
		recipientID, period.StartDate(), period.EndDate(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payout summary: %w", err)
	}
	return &summary, nil
}

// PaymentForQuote returns the payment amount and match start used for a refund quote.
func (s *PostgresStore) PaymentForQuote(ctx context.Context, paymentID string) (*models.Payment, *models.Match, error) {
	var (
		p models.Payment
		m models.Match
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.amount, p.status, p.refunded_amount, m.id, m.match_date, COALESCE(m.match_time, '')
		FROM payments p JOIN matches m ON m.id = p.match_id
		WHERE p.id = $1`, paymentID,
	).Scan(&p.ID, &p.Amount, &p.Status, &p.RefundedAmount, &m.ID, &m.MatchDate, &m.MatchTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: payment %q", settlement.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payment: %w", err)
	}
	p.MatchID = m.ID
	return &p, &m, nil
}
