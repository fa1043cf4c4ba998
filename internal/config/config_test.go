package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.Port != "8080" {
		t.Errorf("http port = %q, want 8080", cfg.HTTP.Port)
	}
	if cfg.HTTP.MetricsPort != "9093" {
		t.Errorf("metrics port = %q, want 9093", cfg.HTTP.MetricsPort)
	}
	if cfg.Webhook.RetryAttempts != 3 {
		t.Errorf("retry attempts = %d, want 3", cfg.Webhook.RetryAttempts)
	}
	if cfg.Webhook.Timeout != 30*time.Second {
		t.Errorf("webhook timeout = %v, want 30s", cfg.Webhook.Timeout)
	}
	if cfg.Delivery.Workers != 4 {
		t.Errorf("delivery workers = %d, want 4", cfg.Delivery.Workers)
	}
}
