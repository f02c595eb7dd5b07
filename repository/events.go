package repository

import (
	"context"
	"fmt"

	"settlement-svc/models"
	"settlement-svc/settlement"
)

var _ settlement.EventLog = (*PostgresStore)(nil)

// BeginEvent records a delivery; a repeated event id only bumps its attempt count.
func (s *PostgresStore) BeginEvent(ctx context.Context, ev models.WebhookEvent) (bool, error) {
	var status models.WebhookEventStatus
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, signature, payload, status, attempts, received_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (event_id) DO UPDATE
		SET attempts = webhook_events.attempts + 1, received_at = EXCLUDED.received_at
		RETURNING status`,
		ev.EventID, ev.EventType, ev.Signature, string(ev.Payload), ev.Status, ev.ReceivedAt,
	).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return status == models.WebhookEventProcessed || status == models.WebhookEventIgnored, nil
}

func (s *PostgresStore) FinishEvent(ctx context.Context, eventID string, status models.WebhookEventStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2, error = NULLIF($3, ''), processed_at = now()
		WHERE event_id = $1`,
		eventID, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	return nil
}
