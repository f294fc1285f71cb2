package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "analytics")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATSURL != "nats://nats:4222" || cfg.BatchSize != 200 || cfg.FetchWait != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
