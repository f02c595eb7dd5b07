package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type KafkaConfig struct {
	Brokers         []string
	SettlementTopic string
	ReplayTopic     string
	ReplayEnabled   bool
}

type RedisConfig struct {
	Host       string
	Port       string
	Password   string
	SummaryTTL time.Duration
}

type Config struct {
	ServiceName    string
	HTTPPort       string
	GRPCPort       string
	Database       DatabaseConfig
	Kafka          KafkaConfig
	Redis          RedisConfig
	JaegerEndpoint string

	WebhookSecret   string
	JWTSecret       string
	PayoutLocation  *time.Location
	CommissionRates settlement.RateTable
	Apportionment   settlement.Apportionment
}

// Load reads configuration from the environment, seeded from a .env file when present.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment")
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "settlement-service"),
		HTTPPort:    getEnv("HTTP_PORT", "8085"),
		GRPCPort:    getEnv("GRPC_PORT", "50055"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "settlementdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:         splitList(getEnv("KAFKA_BROKER", "localhost:9092")),
			SettlementTopic: getEnv("KAFKA_SETTLEMENT_TOPIC", "settlement_events"),
			ReplayTopic:     getEnv("KAFKA_REPLAY_TOPIC", "gateway_webhooks"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		WebhookSecret:  os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.Kafka.ReplayEnabled, err = strconv.ParseBool(getEnv("KAFKA_REPLAY_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("invalid KAFKA_REPLAY_ENABLED: %w", err)
	}
	if cfg.Redis.SummaryTTL, err = time.ParseDuration(getEnv("SUMMARY_CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid SUMMARY_CACHE_TTL: %w", err)
	}
	if cfg.PayoutLocation, err = time.LoadLocation(getEnv("PAYOUT_TIMEZONE", "Asia/Kolkata")); err != nil {
		return nil, fmt.Errorf("invalid PAYOUT_TIMEZONE: %w", err)
	}
	if cfg.Apportionment, err = settlement.ParseApportionment(getEnv("REFUND_APPORTIONMENT", string(settlement.ApportionProportional))); err != nil {
		return nil, err
	}
	if cfg.CommissionRates, err = loadRates(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return errors.New("RAZORPAY_WEBHOOK_SECRET is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKER must list at least one broker")
	}
	return c.CommissionRates.Validate()
}

// loadRates reads COMMISSION_RATE as the default and COMMISSION_RATE_<CATEGORY> overrides.
func loadRates() (settlement.RateTable, error) {
	base, err := decimal.NewFromString(getEnv("COMMISSION_RATE", settlement.DefaultCommissionRate.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid COMMISSION_RATE: %w", err)
	}
	rates := make(settlement.RateTable, len(models.Categories))
	for _, c := range models.Categories {
		key := "COMMISSION_RATE_" + strings.ToUpper(string(c))
		rate := base
		if v := os.Getenv(key); v != "" {
			if rate, err = decimal.NewFromString(v); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
		}
		rates[c] = rate
	}
	return rates, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
