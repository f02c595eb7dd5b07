package database

import (
	"database/sql"
	"fmt"
	"time"

	"settlement-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return db, nil
}

// Migrate creates the settlement tables if they do not exist.
func Migrate(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role VARCHAR(50) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS venues (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL REFERENCES venues(id),
		official_id TEXT,
		staff_ids TEXT[] NOT NULL DEFAULT '{}',
		match_date DATE NOT NULL,
		match_time VARCHAR(8),
		status VARCHAR(50) NOT NULL DEFAULT 'scheduled',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'unpaid',
		payment_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		gateway_order_id TEXT NOT NULL UNIQUE,
		gateway_payment_id TEXT UNIQUE,
		match_id TEXT REFERENCES matches(id),
		amount BIGINT NOT NULL CHECK (amount >= 0),
		status VARCHAR(20) NOT NULL DEFAULT 'created',
		payment_method VARCHAR(50),
		amount_breakdown JSONB NOT NULL DEFAULT '{}',
		refund_status VARCHAR(20) NOT NULL DEFAULT 'none',
		refunded_amount BIGINT NOT NULL DEFAULT 0,
		platform_remainder BIGINT NOT NULL DEFAULT 0,
		failure_code TEXT,
		failure_description TEXT,
		webhook_payload JSONB,
		completed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (refunded_amount >= 0 AND refunded_amount <= amount)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		match_id TEXT NOT NULL,
		category VARCHAR(20) NOT NULL,
		recipient_id TEXT NOT NULL,
		gross_amount BIGINT NOT NULL,
		commission BIGINT NOT NULL,
		net_amount BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'confirmed',
		details JSONB NOT NULL DEFAULT '{}',
		confirmed_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ,
		refund_amount BIGINT NOT NULL DEFAULT 0,
		refund_processed BOOLEAN NOT NULL DEFAULT false,
		UNIQUE (payment_id, category, recipient_id),
		CHECK (net_amount = gross_amount - commission)
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		recipient_role VARCHAR(20) NOT NULL,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		match_id TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (payment_id, recipient_id, recipient_role)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_recipient_period ON payouts (recipient_id, period_start)`,
	`CREATE TABLE IF NOT EXISTS payout_period_summaries (
		recipient_id TEXT NOT NULL,
		recipient_role VARCHAR(20) NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		total_pending_amount BIGINT NOT NULL DEFAULT 0,
		total_pending_count INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (recipient_id, period_start, period_end)
	)`,
	`CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		amount BIGINT NOT NULL,
		status VARCHAR(20),
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type VARCHAR(100) NOT NULL,
		signature TEXT,
		payload JSONB,
		status VARCHAR(20) NOT NULL DEFAULT 'received',
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 1,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ
	)`,
}
