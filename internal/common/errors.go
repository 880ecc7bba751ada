// Package common defines shared constants and sentinel errors used across
// client and server layers of attachup. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Upload pipeline errors.
	ErrEncryptionFailure      = errors.New("encryption failure")
	ErrInvalidForm            = errors.New("invalid upload form")
	ErrInvalidSessionResponse = errors.New("invalid session response")
	ErrProtocolViolation      = errors.New("protocol violation")

	// Transport-level failure (timeout, reset, DNS, no route). Retryable.
	ErrConnectivity = errors.New("connectivity failure")

	// Terminal state after the retry budget is spent. Wraps the last
	// underlying connectivity error.
	ErrExhaustedRetries = errors.New("exhausted retries")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)
