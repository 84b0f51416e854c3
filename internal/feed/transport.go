// Package feed maintains the long-lived streaming connection to the L2
// order-book endpoint. Decoded messages are delivered in arrival order on a
// bounded channel; a slow consumer applies backpressure instead of causing
// silent drops.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/telemetry"
)

const (
	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Config holds the endpoint and reconnect policy for a Transport.
type Config struct {
	URL string

	// ReconnectDelay is the base delay before a reconnect attempt; subsequent
	// failures back off exponentially up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// MaxRetries bounds consecutive failed attempts. 0 means retry forever.
	// The counter resets after any successful reconnection.
	MaxRetries int

	// BufferSize is the capacity of the decoded-message channel.
	BufferSize int
}

// Transport owns one streaming connection to the market-data endpoint. Run
// dials, reads, decodes, and delivers messages until the context is cancelled,
// Close is called, or the retry budget is exhausted.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	out chan domain.BookUpdate

	statusMu sync.RWMutex
	onStatus domain.StatusHandler

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Transport for the given endpoint configuration.
func New(cfg Config, logger *slog.Logger) *Transport {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "feed_transport")),
		out:    make(chan domain.BookUpdate, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Messages returns the channel of decoded book updates, delivered in arrival
// order, exactly once each. The channel is closed when Run returns.
func (t *Transport) Messages() <-chan domain.BookUpdate {
	return t.out
}

// OnStatus registers the handler invoked on every connectivity transition:
// first connect, each disconnect/reconnect, and the terminal state when the
// retry budget is exhausted.
func (t *Transport) OnStatus(h domain.StatusHandler) {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	t.onStatus = h
}

func (t *Transport) notify(state domain.ConnState, err error) {
	t.statusMu.RLock()
	h := t.onStatus
	t.statusMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}

// Run connects and streams until ctx is cancelled or Close is called. On
// stream termination it waits the configured reconnect delay (with exponential
// backoff) and retries; a successful reconnection resets the retry counter.
// Exhausting MaxRetries is the only condition that ends the run unattended: it
// is reported through the status handler and returned as an error wrapping
// domain.ErrRetriesExhausted.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.out)

	retries := 0
	delay := t.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		default:
		}

		connected, err := t.runConnection(ctx)
		if connected {
			retries = 0
			delay = t.cfg.ReconnectDelay
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-t.done:
			return nil
		default:
		}

		t.notify(domain.ConnDisconnected, err)
		t.logger.Warn("feed disconnected",
			slog.String("url", t.cfg.URL),
			slog.String("error", errString(err)),
		)

		retries++
		if t.cfg.MaxRetries > 0 && retries > t.cfg.MaxRetries {
			terminal := fmt.Errorf("feed: %w after %d attempts", domain.ErrRetriesExhausted, t.cfg.MaxRetries)
			t.notify(domain.ConnTerminal, terminal)
			return terminal
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > t.cfg.MaxReconnectDelay {
			delay = t.cfg.MaxReconnectDelay
		}
	}
}

// runConnection dials the endpoint and pumps messages until the connection
// drops or shutdown is requested. The first return value reports whether the
// dial succeeded, so the caller can reset its retry budget.
func (t *Transport) runConnection(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	t.notify(domain.ConnConnected, nil)
	t.logger.Info("feed connected", slog.String("url", t.cfg.URL))

	// Keep-alive: expect pongs within pongWait, ping on pingPeriod.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go t.pingLoop(conn, pingStop)

	// Unblock ReadMessage when the caller cancels or Close is called.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-t.done:
		case <-readerDone:
			return
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("feed: read: %w", err)
		}

		update, err := Decode(raw)
		if err != nil {
			// Malformed payloads are logged and skipped; the stream continues.
			telemetry.DecodeErrors.Inc()
			t.logger.Warn("dropping malformed feed message", slog.String("error", err.Error()))
			continue
		}

		select {
		case t.out <- update:
			telemetry.MessagesReceived.Inc()
		case <-ctx.Done():
			return true, ctx.Err()
		case <-t.done:
			return true, nil
		}
	}
}

// pingLoop sends periodic pings until the connection's stop channel closes.
func (t *Transport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close requests cooperative shutdown. It is safe to call multiple times.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	if errors.Is(err, context.Canceled) {
		return "context cancelled"
	}
	return err.Error()
}
