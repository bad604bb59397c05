package dcfast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Outcome is a received response. Body is kept raw; Structured tells whether
// it parsed as JSON. Unparsable bodies are never an error.
type Outcome struct {
	Status     int
	Body       []byte
	Structured bool
}

func newOutcome(status int, body []byte) *Outcome {
	b := bytes.Clone(body)
	trimmed := bytes.TrimSpace(b)
	return &Outcome{
		Status:     status,
		Body:       b,
		Structured: len(trimmed) > 0 && json.Valid(trimmed),
	}
}

func (o *Outcome) OK() bool { return o.Status >= 200 && o.Status < 300 }

func (o *Outcome) Kind() Kind { return Classify(o.Status) }

// Decode unmarshals a structured body into v.
func (o *Outcome) Decode(v any) error {
	if !o.Structured {
		return fmt.Errorf("%w: %q", ErrUnstructured, truncate(string(o.Body), 64))
	}
	return json.Unmarshal(o.Body, v)
}

// Text returns a JSON string body unquoted and anything else verbatim.
func (o *Outcome) Text() string {
	if o.Structured {
		var s string
		if json.Unmarshal(o.Body, &s) == nil {
			return s
		}
	}
	return string(bytes.TrimSpace(o.Body))
}

// String is the log form of the body.
func (o *Outcome) String() string { return truncate(string(o.Body), 512) }

// Err returns nil for 2xx and a *StatusError otherwise.
func (o *Outcome) Err(op string) error {
	if o.OK() {
		return nil
	}
	return &StatusError{Op: op, Status: o.Status, Body: o.String()}
}

// Kind groups statuses by what the caller has to do about them.
type Kind string

const (
	KindOK         Kind = "ok"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindConflict   Kind = "conflict"
	KindOther      Kind = "other"
)

func Classify(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return KindOK
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusConflict:
		return KindConflict
	default:
		return KindOther
	}
}

// StatusError is a non-2xx response. errors.Is matches ErrUnauthorized,
// ErrValidation and ErrConflict by status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return Classify(e.Status) == KindAuth
	case ErrValidation:
		return Classify(e.Status) == KindValidation
	case ErrConflict:
		return Classify(e.Status) == KindConflict
	}
	return false
}

// Errors
var (
	ErrUnauthorized = errf("unauthorized")
	ErrValidation   = errf("request rejected as invalid")
	ErrConflict     = errf("conflicting match state")
	ErrUnstructured = errf("response body is not JSON")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
