package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/GeminiKeyRelay/internal/config"
	log "github.com/sirupsen/logrus"
)

func TestSetup_InvalidLevel(t *testing.T) {
	if _, err := Setup(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetup_WritesToRotatedFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.InfoLevel)

	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	closer, err := Setup(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	log.WithField("key_index", 2).Warn("upstream rate limited")
	if errClose := closer.Close(); errClose != nil {
		t.Fatalf("close: %v", errClose)
	}

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		t.Fatalf("read log: %v", errRead)
	}
	if !strings.Contains(string(data), "key_index=2") {
		t.Fatalf("expected structured field in log file, got %q", data)
	}
}
