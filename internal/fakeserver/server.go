// Package fakeserver imitates the match server's HTTP surface for tests and
// local dry runs.
package fakeserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/park285/dc-curling-client/internal/sse"
)

// Route names used with SetResponse and DropNext.
const (
	RouteTeam   = "store-team-config"
	RouteShots  = "shots"
	RouteSetup  = "end-setup"
	RouteCreate = "create-match"
	RouteStream = "stream"
)

// Request is one recorded call.
type Request struct {
	Route    string
	Method   string
	Path     string
	Query    url.Values
	Body     []byte
	Username string
	Header   http.Header
}

type response struct {
	status int
	body   string
}

// frame is one scripted stream action.
type frame struct {
	ev   sse.Event
	drop bool
	end  bool
	ping bool
}

// Server serves the routes with scripted responses. Credentials are checked
// on every route; a mismatch answers 401.
type Server struct {
	*httptest.Server

	username string
	password string

	mu        sync.Mutex
	responses map[string]response
	drops     map[string]int
	requests  []Request

	frames chan frame
	opened chan struct{}
}

func New(username, password string) *Server {
	s := &Server{
		username: username,
		password: password,
		responses: map[string]response{
			RouteTeam:   {status: http.StatusOK, body: `"team1"`},
			RouteShots:  {status: http.StatusOK, body: `null`},
			RouteSetup:  {status: http.StatusOK, body: `null`},
			RouteCreate: {status: http.StatusOK, body: `"0b6f2f0e-7d5c-4b8e-9a55-3f0f6f3c9b1a"`},
			RouteStream: {status: http.StatusOK},
		},
		drops:  make(map[string]int),
		frames: make(chan frame, 64),
		opened: make(chan struct{}, 64),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/store-team-config", s.command(RouteTeam))
	r.Post("/shots", s.command(RouteShots))
	r.Post("/matches", s.command(RouteCreate))
	r.Post("/matches/{matchID}/end-setup", s.command(RouteSetup))
	r.Get("/matches/{matchID}/stream", s.stream)
	return r
}

// SetResponse scripts the status and raw body of a route.
func (s *Server) SetResponse(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[route] = response{status: status, body: body}
}

// DropNext makes the next n calls to route close the connection without
// answering.
func (s *Server) DropNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops[route] += n
}

// Requests returns the calls recorded so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo filters Requests by route.
func (s *Server) RequestsTo(route string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Opened receives once per accepted stream connection.
func (s *Server) Opened() <-chan struct{} { return s.opened }

// Push queues an event for the open stream.
func (s *Server) Push(ev sse.Event) { s.frames <- frame{ev: ev} }

// PushState queues v encoded as JSON under eventType.
func (s *Server) PushState(eventType string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Push(sse.Event{Type: eventType, Data: string(raw)})
	return nil
}

// Drop cuts the open stream without finishing the response.
func (s *Server) Drop() { s.frames <- frame{drop: true} }

// Ping writes a comment keepalive on the open stream.
func (s *Server) Ping() { s.frames <- frame{ping: true} }

// End finishes the open stream cleanly.
func (s *Server) End() { s.frames <- frame{end: true} }

func (s *Server) record(route string, r *http.Request) (string, bool) {
	body, _ := io.ReadAll(r.Body)
	user, pass, ok := r.BasicAuth()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Route:    route,
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.Query(),
		Body:     body,
		Username: user,
		Header:   r.Header.Clone(),
	})
	if s.drops[route] > 0 {
		s.drops[route]--
		return "drop", false
	}
	if !ok || user != s.username || pass != s.password {
		return "unauthorized", false
	}
	return "", true
}

func (s *Server) command(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason, ok := s.record(route, r)
		if !ok {
			s.reject(w, reason)
			return
		}
		s.mu.Lock()
		resp := s.responses[route]
		s.mu.Unlock()
		if resp.body != "" && json.Valid([]byte(resp.body)) {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, resp.body)
	}
}

func (s *Server) reject(w http.ResponseWriter, reason string) {
	if reason == "drop" {
		abort()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = io.WriteString(w, `{"detail":"Incorrect username or password"}`)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	reason, ok := s.record(RouteStream, r)
	if !ok {
		s.reject(w, reason)
		return
	}
	s.mu.Lock()
	resp := s.responses[RouteStream]
	s.mu.Unlock()
	if resp.status != http.StatusOK {
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, resp.body)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}
	select {
	case s.opened <- struct{}{}:
	default:
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-s.frames:
			switch {
			case f.drop:
				abort()
			case f.end:
				return
			}
			var err error
			if f.ping {
				_, err = io.WriteString(w, ": ping\n\n")
			} else {
				err = sse.Encode(w, f.ev)
			}
			if err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// abort makes net/http close the connection without finishing the
// response. Events already flushed stay delivered; the chunked body loses its
// terminator.
func abort() { panic(http.ErrAbortHandler) }
