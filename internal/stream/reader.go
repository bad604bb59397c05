// Package stream keeps one subscription to a match's event stream alive and
// turns authoritative snapshots into a lazy sequence.
package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/sse"
)

// Conn is one open stream. Next blocks until an event or an error; Close
// must unblock a pending Next.
type Conn interface {
	Next() (sse.Event, error)
	Close() error
}

// Source opens the stream. lastEventID is empty on the first attempt.
type Source interface {
	Open(ctx context.Context, lastEventID string) (Conn, error)
}

// Applier receives authoritative snapshots.
type Applier interface {
	Apply(st match.State)
}

type Option func(*Reader)

func WithPolicy(p Policy) Option { return func(r *Reader) { r.policy = p } }

func WithSleeper(s Sleeper) Option { return func(r *Reader) { r.sleep = s } }

func WithObserver(o Observer) Option { return func(r *Reader) { r.obs = o } }

// Reader drives Idle -> Connecting -> Streaming -> Backoff -> ... -> Closed.
// A reader is consumed once; start a new one to subscribe again.
type Reader struct {
	src    Source
	store  Applier
	policy Policy
	sleep  Sleeper
	obs    Observer

	state atomic.Int32
	used  atomic.Bool

	errM sync.Mutex
	err  error

	lastID         string
	reconnectDelay time.Duration
}

func NewReader(src Source, store Applier, opts ...Option) *Reader {
	r := &Reader{
		src:    src,
		store:  store,
		policy: DefaultPolicy(),
		sleep:  SleepContext,
		obs:    NopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.obs == nil {
		r.obs = NopObserver{}
	}
	if r.sleep == nil {
		r.sleep = SleepContext
	}
	r.reconnectDelay = r.policy.ReconnectDelay
	return r
}

// State returns the current state.
func (r *Reader) State() State { return State(r.state.Load()) }

// Err returns why the reader closed: ErrConnectionUnavailable (wrapped),
// ErrRetriesExhausted, or the context error. It is nil while running and
// after the consumer stopped pulling.
func (r *Reader) Err() error {
	r.errM.Lock()
	defer r.errM.Unlock()
	return r.err
}

// Events returns the snapshot sequence. It only ends when the reader closes;
// ranging over it a second time yields nothing.
func (r *Reader) Events(ctx context.Context) iter.Seq[match.State] {
	return func(yield func(match.State) bool) {
		if !r.used.CompareAndSwap(false, true) {
			return
		}
		err := r.run(ctx, yield)
		r.errM.Lock()
		r.err = err
		r.errM.Unlock()
		cause := Classify(err)
		if err == nil || ctx.Err() != nil {
			cause = CauseCanceled
		}
		r.transition(StateClosed, cause, err)
	}
}

var errStopped = errors.New("consumer stopped")

func (r *Reader) run(ctx context.Context, yield func(match.State) bool) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.transition(StateConnecting, CauseNone, nil)
		conn, err := r.connect(ctx)
		if err == nil {
			r.transition(StateStreaming, CauseNone, nil)
			var received bool
			received, err = r.consume(ctx, conn, yield)
			_ = conn.Close()
			if received {
				failures = 0
			}
		}
		if errors.Is(err, errStopped) {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		cause := Classify(err)
		if cause == CauseUnavailable {
			return err
		}
		failures++
		if n := r.policy.MaxConsecutiveFailures; n > 0 && failures > n {
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}

		delay := r.delayFor(cause)
		r.transition(StateBackoff, cause, err)
		r.obs.Backoff(cause, delay, err)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *Reader) connect(ctx context.Context) (Conn, error) {
	attempts := r.policy.MaxConnectRetry
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := r.src.Open(ctx, r.lastID)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if Classify(err) == CauseUnavailable {
			return nil, err
		}
		lastErr = err
		r.obs.ConnectFailed(attempt, err)
		if attempt < attempts {
			if err := r.sleep(ctx, r.reconnectDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, attempts, lastErr)
}

type readResult struct {
	ev  sse.Event
	err error
}

// consume pumps conn until it fails, the read timeout fires, ctx ends or
// the consumer stops. received reports whether any event arrived. Heartbeats
// keep the read timeout from firing but do not count as received.
func (r *Reader) consume(ctx context.Context, conn Conn, yield func(match.State) bool) (received bool, err error) {
	results := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			ev, err := conn.Next()
			select {
			case results <- readResult{ev: ev, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var timeout <-chan time.Time
	var timer *time.Timer
	if rt := r.policy.ReadTimeout; rt > 0 {
		timer = time.NewTimer(rt)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case <-timeout:
			_ = conn.Close()
			return r.drain(ctx, results, received, yield)
		case res := <-results:
			if res.err != nil {
				return received, res.err
			}
			if !res.ev.Heartbeat {
				received = true
			}
			if !r.handle(res.ev, yield) {
				return received, errStopped
			}
			if timer != nil {
				timer.Reset(r.policy.ReadTimeout)
			}
		}
	}
}

// drain runs after a read timeout closed the conn. An event the pump already
// read is still handled; the pump's next result is the close error.
func (r *Reader) drain(ctx context.Context, results <-chan readResult, received bool, yield func(match.State) bool) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case res := <-results:
			if res.err != nil {
				return received, ErrReadTimeout
			}
			if !res.ev.Heartbeat {
				received = true
			}
			if !r.handle(res.ev, yield) {
				return received, errStopped
			}
		}
	}
}

// handle applies one event. It returns false when the consumer stopped.
func (r *Reader) handle(raw sse.Event, yield func(match.State) bool) bool {
	if raw.ID != "" {
		r.lastID = raw.ID
	}
	if raw.Retry > 0 {
		r.reconnectDelay = raw.Retry
	}
	if raw.Heartbeat {
		return true
	}
	ev, err := match.ParseEvent(raw)
	if err != nil {
		r.obs.DecodeError(raw, err)
		return true
	}
	switch ev.Kind {
	case match.KindSnapshot:
		r.store.Apply(ev.State)
		r.obs.Snapshot(ev)
		return yield(ev.State)
	case match.KindInfo:
		r.obs.Info(ev)
	default:
		r.obs.Ignored(ev)
	}
	return true
}

func (r *Reader) delayFor(c Cause) time.Duration {
	switch c {
	case CauseTimeout:
		return r.policy.TimeoutDelay
	case CauseEnded:
		return r.reconnectDelay
	default:
		return r.policy.ErrorDelay
	}
}

func (r *Reader) transition(to State, cause Cause, err error) {
	from := State(r.state.Swap(int32(to)))
	if from == to && to != StateConnecting {
		return
	}
	r.obs.Transition(from, to, cause, err)
}
