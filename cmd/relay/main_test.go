package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{-1, 0, 65536} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected error for port %d", port)
		}
	}
	if err := validatePort(8080); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	if err := run(context.Background(), []string{"-unknown"}); err == nil {
		t.Fatalf("expected flag parse error")
	}
	if err := run(context.Background(), []string{"-port", "70000", "-config", filepath.Join(t.TempDir(), "none.yaml")}); err == nil {
		t.Fatalf("expected invalid port error")
	}

	bad := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(bad, []byte("retry:\n  max-retries: -1\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := run(context.Background(), []string{"-config", bad}); err == nil {
		t.Fatalf("expected validation error")
	}
}
