package serverrun

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/flodq/internal/config"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	logpkg "github.com/rzbill/flodq/pkg/log"
)

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		expected string
	}{
		{name: "environment variable set", key: "FLODQ_TEST_VAR", def: "default", envValue: "env_value", expected: "env_value"},
		{name: "environment variable not set", key: "FLODQ_TEST_VAR_NOT_SET", def: "default", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			} else {
				_ = os.Unsetenv(tt.key)
			}
			if got := getenvDefault(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenvDefault(%s, %s) = %s, expected %s", tt.key, tt.def, got, tt.expected)
			}
		})
	}
}

func TestProcessLoggerFallsBackOnBadFormat(t *testing.T) {
	t.Setenv("FLODQ_LOG_LEVEL", "warn")
	t.Setenv("FLODQ_LOG_FORMAT", "xml")
	l, cfg := processLogger()
	if l == nil {
		t.Fatal("expected a logger")
	}
	if l.GetLevel() != logpkg.WarnLevel {
		t.Errorf("level = %v, want warn", l.GetLevel())
	}
	if cfg.Format != "xml" {
		t.Errorf("format = %s", cfg.Format)
	}
}

func TestDefaultDataDirIntegration(t *testing.T) {
	dir := cfgpkg.DefaultDataDir()
	if dir == "" {
		t.Fatal("DataDir should not be empty after fallback")
	}
	if !filepath.IsAbs(dir) && !strings.HasPrefix(dir, "./") {
		t.Errorf("DataDir should be absolute or start with ./, got %s", dir)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// TestRunIntegration starts both servers and stops them through ctx.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	opts := Options{
		DataDir:       t.TempDir(),
		GRPCAddr:      freeAddr(t),
		HTTPAddr:      freeAddr(t),
		Fsync:         pebblestore.FsyncModeNever,
		FsyncInterval: time.Millisecond,
		Config:        cfgpkg.Default(),
		Logger:        logpkg.NewNopLogger(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, opts); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRunFailsOnBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	opts := Options{
		DataDir:  t.TempDir(),
		GRPCAddr: l.Addr().String(),
		HTTPAddr: freeAddr(t),
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfgpkg.Default(),
		Logger:   logpkg.NewNopLogger(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Run(ctx, opts); err == nil {
		t.Error("expected an error for a busy gRPC port")
	}
}
