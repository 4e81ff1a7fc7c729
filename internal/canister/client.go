// Package canister provides a thin transport to smart-contract services
// ("canisters") exposed through an HTTP gateway.
package canister

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second

	statusReplied  = "replied"
	statusRejected = "rejected"

	maxResponseSize = 4 << 20
)

// Caller is a remote-procedure stub bound to one canister.
type Caller interface {
	// Query performs a read-only call.
	Query(ctx context.Context, method string, args any) (json.RawMessage, error)
	// Update performs a state-changing call.
	Update(ctx context.Context, method string, args any) (json.RawMessage, error)
	// CanisterID returns the id of the target canister.
	CanisterID() string
}

// Client talks to the gateway over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit caps outgoing calls to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a gateway client.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("gateway endpoint required")
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Canister returns a stub bound to canisterID.
func (c *Client) Canister(canisterID string) Caller {
	return &stub{client: c, canisterID: canisterID}
}

// request is the gateway call envelope.
type request struct {
	Method string `json:"method"`
	Args   any    `json:"args,omitempty"`
}

// response is the gateway reply envelope.
type response struct {
	Status        string          `json:"status"`
	Reply         json.RawMessage `json:"reply,omitempty"`
	RejectCode    int             `json:"reject_code,omitempty"`
	RejectMessage string          `json:"reject_message,omitempty"`
}

// RejectError is returned when the canister rejects a call.
type RejectError struct {
	CanisterID string
	Method     string
	Code       int
	Message    string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("canister %s rejected %s (code %d): %s", e.CanisterID, e.Method, e.Code, e.Message)
}

// HTTPError is returned for non-2xx gateway responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (c *Client) call(ctx context.Context, canisterID, kind, method string, args any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "wait for rate limiter")
		}
	}

	body, err := json.Marshal(request{Method: method, Args: args})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	url := fmt.Sprintf("%s/api/v2/canister/%s/%s", c.endpoint, canisterID, kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}

	switch out.Status {
	case statusReplied:
		return out.Reply, nil
	case statusRejected:
		return nil, &RejectError{
			CanisterID: canisterID,
			Method:     method,
			Code:       out.RejectCode,
			Message:    out.RejectMessage,
		}
	default:
		return nil, errors.Errorf("unexpected call status %q", out.Status)
	}
}

type stub struct {
	client     *Client
	canisterID string
}

func (s *stub) Query(ctx context.Context, method string, args any) (json.RawMessage, error) {
	return s.client.call(ctx, s.canisterID, "query", method, args)
}

func (s *stub) Update(ctx context.Context, method string, args any) (json.RawMessage, error) {
	return s.client.call(ctx, s.canisterID, "call", method, args)
}

func (s *stub) CanisterID() string {
	return s.canisterID
}
