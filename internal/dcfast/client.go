package dcfast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/dc-curling-client/internal/stream"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client performs single authenticated exchanges with the match server. It
// never retries and never logs; callers decide what a status means.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	username string
	password string

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// ErrConnectionUnavailable is returned when the server closed the connection
// before responding.
var ErrConnectionUnavailable = stream.ErrConnectionUnavailable

// Send performs one request. query and body are optional; body is encoded as
// JSON. Every received response is returned as an Outcome, whatever its
// status.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body any) (*Outcome, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if len(query) > 0 {
		req.URI().SetQueryString(query.Encode())
	}
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		if droppedByServer(err) {
			return nil, fmt.Errorf("%s %s: %w (%v)", method, path, ErrConnectionUnavailable, err)
		}
		return nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	return newOutcome(resp.StatusCode(), resp.Body()), nil
}

// Post sends a JSON POST.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (*Outcome, error) {
	return c.Send(ctx, fasthttp.MethodPost, path, query, body)
}

func (c *Client) authorization() string {
	if c.username == "" && c.password == "" {
		return ""
	}
	return basicAuth(c.username, c.password)
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

// droppedByServer reports a connection the server closed or reset before a
// complete response arrived.
func droppedByServer(err error) bool {
	switch {
	case errors.Is(err, fasthttp.ErrConnectionClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
