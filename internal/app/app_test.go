package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GeminiKeyRelay/internal/config"
	"github.com/router-for-me/GeminiKeyRelay/internal/watcher"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestNewServer_EnvKeySource(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "k1, k2,,k3")
	srv, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	keys, errKeys := srv.Keys.Keys()
	if errKeys != nil || len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %v %v", keys, errKeys)
	}
	if srv.keyFile != nil {
		t.Fatalf("expected no key file watcher for env source")
	}
	if srv.Forwarder.MaxAttempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", srv.Forwarder.MaxAttempts())
	}
}

func TestNewServer_KeyFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0600); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	cfg := testConfig(t)
	cfg.Keys.File = path

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := srv.Keys.(*watcher.KeyFile); !ok {
		t.Fatalf("expected key file source, got %T", srv.Keys)
	}

	cfg.Keys.File = filepath.Join(t.TempDir(), "absent.txt")
	if _, errMissing := NewServer(cfg); errMissing == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestServe_StartsAndStopsGracefully(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "k1,k2")
	srv, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	listener, errListen := net.Listen("tcp", "127.0.0.1:0")
	if errListen != nil {
		t.Fatalf("listen: %v", errListen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, errGet := http.Get("http://" + listener.Addr().String() + "/healthz")
	if errGet != nil {
		cancel()
		t.Fatalf("healthz: %v", errGet)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"keys":2,"status":"ok"}` {
		cancel()
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case errServe := <-done:
		if errServe != nil {
			t.Fatalf("expected clean shutdown, got %v", errServe)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}
