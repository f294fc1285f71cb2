package db

import (
	"context"
	"testing"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  ", Options{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz", Options{}); err == nil {
		t.Fatal("expected parse error")
	}
}
