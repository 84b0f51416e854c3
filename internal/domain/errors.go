package domain

import "errors"

var (
	ErrEmptyBook           = errors.New("order book is empty")
	ErrDecode              = errors.New("malformed feed message")
	ErrUnknownModel        = errors.New("unknown slippage model")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrInvalidVolatility   = errors.New("volatility must be positive")
	ErrInvalidHorizon      = errors.New("execution horizon must be positive")
	ErrFeedClosed          = errors.New("feed transport closed")
	ErrRetriesExhausted    = errors.New("reconnect retries exhausted")
	ErrBookTimeout         = errors.New("timed out waiting for first book update")
	ErrAlreadyRunning      = errors.New("simulation already running")
	ErrNotRunning          = errors.New("simulation not running")
	ErrNotFound            = errors.New("not found")
)
