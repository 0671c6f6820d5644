// Package anthropic forwards requests to the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/ports"
)

// DefaultVersion is sent as anthropic-version when the client omits it.
const DefaultVersion = "2023-06-01"

// DefaultTimeout bounds a full upstream round trip, body included.
const DefaultTimeout = 300 * time.Second

// Client implements ports.Forwarder against the Anthropic API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	// buffered serves non-streaming calls; streaming has no client timeout
	// because the per-request context carries the deadline and a Timeout
	// would cut long streams mid-body.
	buffered  *http.Client
	streaming *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces both underlying HTTP clients (for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.buffered = hc
		c.streaming = hc
	}
}

// New creates a forwarder for the given provider endpoint. The provider API
// key is injected server-side; client credentials never reach upstream.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Clients are built after options so the buffered timeout tracks a
	// WithTimeout override.
	if c.buffered == nil {
		c.buffered = &http.Client{Timeout: c.timeout}
	}
	if c.streaming == nil {
		c.streaming = &http.Client{
			Transport: &http.Transport{
				// Compression would buffer SSE frames in the transport.
				DisableCompression: true,
			},
		}
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, req gateway.Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	version := req.ProviderVersion
	if version == "" {
		version = DefaultVersion
	}
	httpReq.Header.Set("anthropic-version", version)
	if req.BetaFeatures != "" {
		httpReq.Header.Set("anthropic-beta", req.BetaFeatures)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return httpReq, nil
}

// Forward sends a non-streaming request and returns the buffered response.
// Provider errors come back as a Response so the status and body can be
// relayed to the client verbatim.
func (c *Client) Forward(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return gateway.Response{}, err
	}

	start := time.Now()
	resp, err := c.buffered.Do(httpReq)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("read upstream body: %w", err)
	}

	out := gateway.Response{
		Status:    resp.StatusCode,
		Body:      body,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Usage = extractUsage(body)
		out.RequestID = gjson.GetBytes(body, "id").String()
	}
	return out, nil
}

// OpenStream sends a streaming request and hands back the live body as soon
// as response headers arrive. The caller owns closing the body; the deadline
// keeps covering the body read until then.
func (c *Client) OpenStream(ctx context.Context, req gateway.Request) (ports.StreamBody, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		cancel()
		return ports.StreamBody{}, err
	}

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		cancel()
		return ports.StreamBody{}, fmt.Errorf("upstream request: %w", err)
	}

	return ports.StreamBody{
		Status: resp.StatusCode,
		Body:   &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// extractUsage reads token counts from a buffered message response. gjson
// tolerates fields the provider adds later.
func extractUsage(body []byte) gateway.TokenUsage {
	u := gjson.GetBytes(body, "usage")
	if !u.Exists() {
		return gateway.TokenUsage{}
	}
	return gateway.TokenUsage{
		InputTokens:         u.Get("input_tokens").Int(),
		OutputTokens:        u.Get("output_tokens").Int(),
		CacheCreationTokens: u.Get("cache_creation_input_tokens").Int(),
		CacheReadTokens:     u.Get("cache_read_input_tokens").Int(),
	}
}

// Ensure interface compliance.
var _ ports.Forwarder = (*Client)(nil)
