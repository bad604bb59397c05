package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// State of the reader's subscription.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Cause explains why the reader left the streaming state.
type Cause int

const (
	CauseNone Cause = iota
	// CauseTimeout is a read timeout; short backoff.
	CauseTimeout
	// CauseEnded is a clean end of stream; the server's reconnection delay
	// applies.
	CauseEnded
	// CauseError is any other recoverable failure.
	CauseError
	// CauseUnavailable means the server dropped the connection. Terminal.
	CauseUnavailable
	// CauseCanceled means the caller's context ended or it stopped pulling.
	CauseCanceled
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseTimeout:
		return "timeout"
	case CauseEnded:
		return "ended"
	case CauseError:
		return "error"
	case CauseUnavailable:
		return "unavailable"
	case CauseCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Policy holds the backoff and retry constants.
type Policy struct {
	// TimeoutDelay follows a read timeout.
	TimeoutDelay time.Duration
	// ErrorDelay follows a generic failure, including exhausted handshakes.
	ErrorDelay time.Duration
	// ReconnectDelay separates handshake attempts and follows a clean end of
	// stream. A retry field sent by the server overrides it.
	ReconnectDelay time.Duration
	// MaxConnectRetry bounds consecutive handshake attempts per connect.
	MaxConnectRetry int
	// ReadTimeout is the longest wait for the next event; zero disables it.
	ReadTimeout time.Duration
	// MaxConsecutiveFailures ends the reader with ErrRetriesExhausted after
	// that many backoffs without a received event; zero means unlimited and
	// the reader never reports ErrRetriesExhausted.
	MaxConsecutiveFailures int
}

// DefaultPolicy never gives up on its own; set MaxConsecutiveFailures to
// bound it.
func DefaultPolicy() Policy {
	return Policy{
		TimeoutDelay:    1 * time.Second,
		ErrorDelay:      5 * time.Second,
		ReconnectDelay:  5 * time.Second,
		MaxConnectRetry: 5,
		ReadTimeout:     60 * time.Second,
	}
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Classify maps a connection or read error to a Cause.
func Classify(err error) Cause {
	var ne net.Error
	switch {
	case err == nil:
		return CauseNone
	case errors.Is(err, ErrConnectionUnavailable), errors.Is(err, io.ErrUnexpectedEOF):
		return CauseUnavailable
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, ErrConnectExhausted):
		return CauseError
	case errors.Is(err, ErrReadTimeout), errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return CauseTimeout
	case errors.Is(err, io.EOF):
		return CauseEnded
	default:
		return CauseError
	}
}

var (
	// ErrConnectionUnavailable marks a connection the server dropped without
	// a response, or cut in the middle of the stream.
	ErrConnectionUnavailable = errf("connection unavailable")
	ErrReadTimeout           = errf("stream read timeout")
	ErrConnectExhausted      = errf("stream connect attempts exhausted")
	// ErrRetriesExhausted ends a reader whose policy limits consecutive
	// failures. A fresh reader may be started.
	ErrRetriesExhausted = errf("stream retries exhausted")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
