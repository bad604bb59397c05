package stream

import (
	"time"

	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/sse"
)

// Observer receives the reader's notable moments. It keeps logging and
// metrics out of the state machine. Calls happen on the reader goroutine.
type Observer interface {
	Transition(from, to State, cause Cause, err error)
	ConnectFailed(attempt int, err error)
	Backoff(cause Cause, delay time.Duration, err error)
	Snapshot(ev match.Event)
	Info(ev match.Event)
	Ignored(ev match.Event)
	DecodeError(raw sse.Event, err error)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Transition(State, State, Cause, error) {}
func (NopObserver) ConnectFailed(int, error) {}
func (NopObserver) Backoff(Cause, time.Duration, error) {}
func (NopObserver) Snapshot(match.Event) {}
func (NopObserver) Info(match.Event) {}
func (NopObserver) Ignored(match.Event) {}
func (NopObserver) DecodeError(sse.Event, error) {}
