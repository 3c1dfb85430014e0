package mq

import (
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv()
	if cfg.Exchange != "cardflow.delayed" {
		t.Fatalf("Exchange = %q", cfg.Exchange)
	}
	if cfg.Queue != "cardflow.recall" || cfg.DLQueue != "cardflow.recall.dlq" {
		t.Fatalf("queues = %q / %q", cfg.Queue, cfg.DLQueue)
	}
	if cfg.RoutingKey != "recall.session" {
		t.Fatalf("RoutingKey = %q", cfg.RoutingKey)
	}
	if cfg.Prefetch != 10 {
		t.Fatalf("Prefetch = %d", cfg.Prefetch)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("ReconnectDelay = %s", cfg.ReconnectDelay)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("RABBITMQ_EXCHANGE", "other.delayed")
	t.Setenv("RABBITMQ_PREFETCH", "32")
	t.Setenv("RABBITMQ_RECONNECT_DELAY", "1s")

	cfg := ConfigFromEnv()
	if cfg.Exchange != "other.delayed" {
		t.Fatalf("Exchange = %q", cfg.Exchange)
	}
	if cfg.Prefetch != 32 {
		t.Fatalf("Prefetch = %d", cfg.Prefetch)
	}
	if cfg.ReconnectDelay != time.Second {
		t.Fatalf("ReconnectDelay = %s", cfg.ReconnectDelay)
	}
}
