package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/costsim/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// newBookServer serves payloads to each connecting client and then closes the
// connection. Returns the ws:// URL.
func newBookServer(t *testing.T, payloads [][]byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
				return
			}
		}
		// Drain until the client goes away so the close handshake completes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func bookPayload(ts string, bidPrice float64) []byte {
	return []byte(fmt.Sprintf(
		`{"timestamp": %q, "bids": [["%.1f", "1.0"]], "asks": [["%.1f", "1.0"]]}`,
		ts, bidPrice, bidPrice+1,
	))
}

func TestTransportDeliversInOrder(t *testing.T) {
	payloads := [][]byte{
		bookPayload("2025-05-04T10:39:13Z", 100),
		bookPayload("2025-05-04T10:39:14Z", 101),
		bookPayload("2025-05-04T10:39:15Z", 102),
	}
	url := newBookServer(t, payloads)

	tr := New(Config{
		URL:               url,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Millisecond,
		MaxRetries:        1,
		BufferSize:        8,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = tr.Run(ctx)
		close(done)
	}()

	var got []float64
	for update := range tr.Messages() {
		require.NotEmpty(t, update.Bids)
		got = append(got, update.Bids[0].Price)
		if len(got) == len(payloads) {
			tr.Close()
		}
	}

	<-done
	assert.NoError(t, runErr)
	assert.Equal(t, []float64{100, 101, 102}, got)
}

func TestTransportSkipsMalformedMessages(t *testing.T) {
	payloads := [][]byte{
		bookPayload("2025-05-04T10:39:13Z", 100),
		[]byte(`{"garbage": true}`),
		bookPayload("2025-05-04T10:39:14Z", 101),
	}
	url := newBookServer(t, payloads)

	tr := New(Config{
		URL:               url,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Millisecond,
		MaxRetries:        1,
		BufferSize:        8,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = tr.Run(ctx)
		close(done)
	}()

	var got []float64
	for update := range tr.Messages() {
		got = append(got, update.Bids[0].Price)
		if len(got) == 2 {
			tr.Close()
		}
	}

	<-done
	assert.Equal(t, []float64{100, 101}, got, "malformed payload must be skipped, not delivered")
}

func TestTransportRetriesExhausted(t *testing.T) {
	// Nothing listens here: every dial fails.
	tr := New(Config{
		URL:               "ws://127.0.0.1:1",
		ReconnectDelay:    time.Millisecond,
		MaxReconnectDelay: 2 * time.Millisecond,
		MaxRetries:        3,
		BufferSize:        1,
	}, testLogger())

	var mu sync.Mutex
	var states []domain.ConnState
	tr.OnStatus(func(state domain.ConnState, err error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := tr.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, domain.ConnTerminal, states[len(states)-1])

	disconnects := 0
	for _, s := range states {
		if s == domain.ConnDisconnected {
			disconnects++
		}
	}
	assert.Equal(t, 4, disconnects, "initial failure plus three retries")
}

func TestTransportReconnectResetsBudget(t *testing.T) {
	// Each accepted connection sends one message and drops. With MaxRetries 2
	// and more than two reconnect cycles, only a reset-on-success budget lets
	// every message through.
	var connCount int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connCount++
		n := connCount
		mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, bookPayload("2025-05-04T10:39:13Z", float64(100+n)))
		conn.Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	tr := New(Config{
		URL:               url,
		ReconnectDelay:    time.Millisecond,
		MaxReconnectDelay: 2 * time.Millisecond,
		MaxRetries:        2,
		BufferSize:        8,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = tr.Run(ctx)
		close(done)
	}()

	var got int
	for range tr.Messages() {
		got++
		if got == 4 {
			tr.Close()
		}
	}

	<-done
	assert.GreaterOrEqual(t, got, 4, "retry budget must reset after each successful reconnect")
}

func TestTransportCloseIsIdempotent(t *testing.T) {
	tr := New(Config{
		URL:            "ws://127.0.0.1:1",
		ReconnectDelay: time.Millisecond,
		BufferSize:     1,
	}, testLogger())

	tr.Close()
	tr.Close()

	err := tr.Run(context.Background())
	assert.NoError(t, err, "Run after Close should return immediately")
}

func TestTransportContextCancel(t *testing.T) {
	url := newBookServer(t, nil)

	tr := New(Config{
		URL:               url,
		ReconnectDelay:    time.Millisecond,
		MaxReconnectDelay: time.Millisecond,
		BufferSize:        1,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
