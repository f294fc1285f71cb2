package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresServiceName(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SERVICE_NAME")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "progress")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APP_ENV", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.LogLevel != "info" || cfg.Env != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Fatal("development must not be production")
	}
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("SERVICE_NAME", "progress")
	t.Setenv("APP_ENV", "Production")
	cfg, _ := Load()
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "7")
	t.Setenv("CFG_TEST_BAD_INT", "-3")
	t.Setenv("CFG_TEST_DUR", "250ms")
	t.Setenv("CFG_TEST_BOOL", "off")

	if v := Int("CFG_TEST_INT", 1); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	if v := Int("CFG_TEST_BAD_INT", 5); v != 5 {
		t.Fatalf("expected fallback 5, got %d", v)
	}
	if v := Duration("CFG_TEST_DUR", time.Second); v != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", v)
	}
	if v := Duration("CFG_TEST_UNSET", time.Second); v != time.Second {
		t.Fatalf("expected fallback 1s, got %s", v)
	}
	if Bool("CFG_TEST_BOOL", true) {
		t.Fatal("expected off to be false")
	}
	if !Bool("CFG_TEST_UNSET", true) {
		t.Fatal("expected fallback true")
	}
	if v := String("CFG_TEST_UNSET", "x"); v != "x" {
		t.Fatalf("expected fallback x, got %q", v)
	}
}

func TestList(t *testing.T) {
	t.Setenv("CFG_TEST_LIST", " a, ,b,")
	got := List("CFG_TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %q", got)
	}
	if List("CFG_TEST_UNSET") != nil {
		t.Fatal("expected nil for unset key")
	}
}

func TestLoad_RejectsUnknownEnv(t *testing.T) {
	t.Setenv("SERVICE_NAME", "progress")
	t.Setenv("APP_ENV", "prod")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown APP_ENV")
	}
}
