package match

import (
	"encoding/json"
	"fmt"

	"github.com/park285/dc-curling-client/internal/sse"
)

// EventKind classifies stream events once, at the parsing boundary.
type EventKind int

const (
	KindUnknown EventKind = iota
	// KindSnapshot must be applied to the stored state.
	KindSnapshot
	// KindInfo is informational and never mutates stored state.
	KindInfo
)

// Wire names of the stream events.
const (
	EventLatestStateUpdate = "latest_state_update"
	EventStateUpdate       = "state_update"
)

func (k EventKind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Event is a decoded stream event. State is only set for snapshot and info
// kinds.
type Event struct {
	Kind  EventKind
	Type  string
	ID    string
	State State
}

// ParseEvent resolves the event kind and decodes its payload. Unknown kinds
// are returned without an error and without decoding.
func ParseEvent(ev sse.Event) (Event, error) {
	out := Event{Type: ev.Type, ID: ev.ID}
	switch ev.Type {
	case EventLatestStateUpdate:
		out.Kind = KindSnapshot
	case EventStateUpdate:
		out.Kind = KindInfo
	default:
		return out, nil
	}
	st, err := DecodeState([]byte(ev.Data))
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	out.State = st
	return out, nil
}

// DecodeState parses one JSON-encoded snapshot.
func DecodeState(raw []byte) (State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, err
	}
	st.normalize()
	return st, nil
}
