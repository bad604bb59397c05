package dcfast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/park285/dc-curling-client/internal/sse"
	"github.com/park285/dc-curling-client/internal/stream"
)

// EventSource opens the server-sent event stream at one URL. It uses
// net/http because a long-lived response body has to be abandoned through
// the request context, which the fasthttp client does not offer.
type EventSource struct {
	url      string
	username string
	password string
	headers  HeaderProvider
	http     *http.Client
}

// EventSource returns a stream.Source for path on this client's server with
// the same credentials. The handshake is bounded by the client timeout; the
// body is not.
func (c *Client) EventSource(path string) *EventSource {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = c.defaultTimeout
	return &EventSource{
		url:      c.baseURL + path,
		username: c.username,
		password: c.password,
		headers:  c.headers,
		http:     &http.Client{Transport: tr},
	}
}

func (s *EventSource) URL() string { return s.url }

func (s *EventSource) Open(ctx context.Context, lastEventID string) (stream.Conn, error) {
	cctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if s.username != "" || s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	if s.headers != nil {
		for k, v := range s.headers() {
			if k != "" && v != "" {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		if droppedByServer(err) {
			return nil, fmt.Errorf("open stream: %w (%v)", ErrConnectionUnavailable, err)
		}
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()
		return nil, &StatusError{Op: "open stream", Status: resp.StatusCode, Body: string(body)}
	}
	return &sseConn{body: resp.Body, dec: sse.NewDecoder(resp.Body, sse.WithHeartbeats()), cancel: cancel}, nil
}

type sseConn struct {
	body   io.ReadCloser
	dec    *sse.Decoder
	cancel context.CancelFunc
	once   sync.Once
}

func (c *sseConn) Next() (sse.Event, error) {
	ev, err := c.dec.Next()
	if err == nil || errors.Is(err, io.EOF) {
		return ev, err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return sse.Event{}, fmt.Errorf("read stream: %w (%v)", ErrConnectionUnavailable, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return sse.Event{}, fmt.Errorf("read stream: %w (%v)", stream.ErrReadTimeout, err)
	}
	return sse.Event{}, fmt.Errorf("read stream: %w", err)
}

func (c *sseConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.body.Close()
	})
	return err
}
