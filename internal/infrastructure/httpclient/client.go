package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://api.upbit.com/v1"
	DefaultTimeout = 5 * time.Second

	timeoutMessage  = "Request Timeout"
	fallbackMessage = "Something went wrong"
)

// Request describes one call relative to the client's base URL.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	// Timeout overrides the client default when > 0.
	Timeout time.Duration
}

// Client wraps net/http with a fixed base URL, JSON headers, an optional
// bearer token and a per-request timeout. All failures are *RequestError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAuthToken sets the initial bearer token.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthToken replaces the bearer token used by later requests.
// An empty token disables the Authorization header.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) authToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint}, out)
}

// Do performs r and decodes a 2xx JSON body into out (skipped when out is nil).
// out is only written when the whole body was read and decoded.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return &RequestError{Kind: KindDecode, Message: "encode request body", Err: err}
		}
		body = bytes.NewReader(b)
	}

	url := c.baseURL + r.Endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &RequestError{Kind: KindNetwork, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.authToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, method, r.Endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, method, r.Endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw)
		log.Debug().
			Str("method", method).
			Str("endpoint", r.Endpoint).
			Int("status", resp.StatusCode).
			Str("message", msg).
			Msg("http request failed")
		return &RequestError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Error %d: %s", resp.StatusCode, msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Kind: KindDecode, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, method, endpoint string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Debug().Str("method", method).Str("endpoint", endpoint).Msg("http request timed out")
		return &RequestError{Kind: KindTimeout, Message: timeoutMessage, Err: err}
	}
	return &RequestError{Kind: KindNetwork, Message: "request failed", Err: err}
}

// errorMessage extracts "message" (or Upbit's "error.message") from a failure body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallbackMessage
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	if m := strings.TrimSpace(payload.Error.Message); m != "" {
		return m
	}
	return fallbackMessage
}
