package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/iho/satledger/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.TargetConfirmations != 6 || cfg.LightningFeeCapBps != 50 {
		t.Fatalf("unexpected reconciliation defaults: confirmations=%d fee cap=%d", cfg.TargetConfirmations, cfg.LightningFeeCapBps)
	}

	if cfg.NodeHealthInterval != 10*time.Second {
		t.Fatalf("expected 10s node health interval, got %s", cfg.NodeHealthInterval)
	}

	if cfg.PaymentResolveEvery != time.Minute || cfg.PaymentGracePeriod != 10*time.Minute || cfg.SettlementPollLimit != 100 {
		t.Fatalf("unexpected payment defaults: every=%s grace=%s poll limit=%d", cfg.PaymentResolveEvery, cfg.PaymentGracePeriod, cfg.SettlementPollLimit)
	}

	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("unexpected kafka brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092,kafka2:9092")
	t.Setenv("USD_PER_BTC", "42000.50")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}

	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected two kafka brokers, got %v", cfg.KafkaBrokers)
	}

	rate, err := cfg.UsdRate()
	if err != nil || rate.String() != "42000.5" {
		t.Fatalf("unexpected rate %s, err=%v", rate, err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	original := os.Getenv("HTTP_READ_TIMEOUT")
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Cleanup(func() {
		t.Setenv("HTTP_READ_TIMEOUT", original)
	})

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadInvalidRate(t *testing.T) {
	for _, value := range []string{"abc", "0", "-5"} {
		t.Setenv("USD_PER_BTC", value)
		if _, err := config.Load(); err == nil {
			t.Fatalf("expected error for USD_PER_BTC=%q", value)
		}
	}
}
