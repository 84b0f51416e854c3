package app

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/costsim/internal/config"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// freeAddr reserves an ephemeral port and releases it for the test to reuse.
func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestRunStopsTelemetryWhenStartFails(t *testing.T) {
	addr := freeAddr(t)

	cfg := config.Defaults()
	cfg.Feed.URL = "ws://127.0.0.1:1" // nothing listens; every dial fails
	cfg.Feed.MaxRetries = 1
	cfg.Feed.ReconnectDelay.Duration = time.Millisecond
	cfg.Feed.MaxReconnectDelay.Duration = 2 * time.Millisecond
	cfg.Feed.InitTimeout.Duration = 5 * time.Second
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Addr = addr

	a := New(&cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)

	// Run waited for the whole group, so the metrics listener is gone by the
	// time it returns.
	conn, dialErr := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if dialErr == nil {
		conn.Close()
	}
	assert.Error(t, dialErr, "telemetry server must shut down when startup fails")
}

func TestRunPropagatesStartFailureWithoutTelemetry(t *testing.T) {
	cfg := config.Defaults()
	cfg.Feed.URL = "ws://127.0.0.1:1"
	cfg.Feed.MaxRetries = 1
	cfg.Feed.ReconnectDelay.Duration = time.Millisecond
	cfg.Feed.MaxReconnectDelay.Duration = 2 * time.Millisecond
	cfg.Feed.InitTimeout.Duration = 5 * time.Second

	a := New(&cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start simulation")
}
