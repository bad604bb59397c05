// Package sse decodes the text/event-stream wire format.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultEventType is used when a block carries no event field.
const DefaultEventType = "message"

const byteOrderMark = "\uFEFF"

// Event is one dispatched block of the stream.
type Event struct {
	Type  string
	Data  string
	ID    string
	Retry time.Duration // zero when the block carried no valid retry field
	// Heartbeat marks a block that dispatched nothing, such as a comment
	// keepalive. Only decoders built WithHeartbeats return it.
	Heartbeat bool
}

type Option func(*Decoder)

// WithHeartbeats makes Next return a Heartbeat event for every block that
// ends without data. A retry field seen in that block rides on it.
func WithHeartbeats() Option { return func(d *Decoder) { d.heartbeats = true } }

// Decoder reads events from r. It keeps the last event id across events as
// the format requires.
type Decoder struct {
	r          *bufio.Reader
	lastID     string
	heartbeats bool
	started    bool

	// pending block
	typ     string
	data    strings.Builder
	hasData bool
	partial bool
	retry   time.Duration
}

func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{r: bufio.NewReaderSize(r, 64<<10)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LastEventID returns the most recent id seen on the stream.
func (d *Decoder) LastEventID() string { return d.lastID }

// Next blocks until a complete event is available. It returns io.EOF when the
// stream ends on an event boundary and io.ErrUnexpectedEOF when it ends in
// the middle of one. Other read errors are returned unchanged.
//
// A retry field in a block without data is not lost: it is reported on the
// heartbeat, or on the next dispatched event when heartbeats are off.
func (d *Decoder) Next() (Event, error) {
	for {
		line, err := d.r.ReadString('\n')
		if !d.started && line != "" {
			d.started = true
			line = strings.TrimPrefix(line, byteOrderMark)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if d.partial || line != "" {
					return Event{}, io.ErrUnexpectedEOF
				}
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			if !d.hasData {
				// nothing to dispatch; drop any type set by this block
				d.typ = ""
				d.partial = false
				if d.heartbeats {
					ev := Event{Heartbeat: true, Retry: d.retry}
					d.retry = 0
					return ev, nil
				}
				continue
			}
			ev := Event{Type: d.typ, Data: d.data.String(), ID: d.lastID, Retry: d.retry}
			if ev.Type == "" {
				ev.Type = DefaultEventType
			}
			d.reset()
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		d.partial = true
		field, value := splitField(line)
		switch field {
		case "event":
			d.typ = value
		case "data":
			if d.hasData {
				d.data.WriteByte('\n')
			}
			d.data.WriteString(value)
			d.hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				d.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

func (d *Decoder) reset() {
	d.typ = ""
	d.data.Reset()
	d.hasData = false
	d.partial = false
	d.retry = 0
}

func splitField(line string) (string, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	value := line[i+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:i], value
}

// Encode writes ev in wire format. It is used by test servers.
func Encode(w io.Writer, ev Event) error {
	var b bytes.Buffer
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" && ev.Type != DefaultEventType {
		b.WriteString("event: " + ev.Type + "\n")
	}
	if ev.Retry > 0 {
		b.WriteString("retry: " + strconv.FormatInt(ev.Retry.Milliseconds(), 10) + "\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteByte('\n')
	_, err := w.Write(b.Bytes())
	return err
}
