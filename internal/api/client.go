// Package api provides the HTTP client for the voxchat chat backend.
package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

// DefaultUserAgent identifies voxchat to the backend
const DefaultUserAgent = "voxchat/1.0"

// HTTPDoer is the subset of tls_client.HttpClient used by Client
type HTTPDoer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
}

// Backend is the contract the composition controller depends on
type Backend interface {
	Health(ctx context.Context) error
	Chat(ctx context.Context, req *ChatRequest) (*models.ChatReply, error)
	ResolveURL(ref string) string
}

var _ Backend = (*Client)(nil)

// Client talks to the chat backend
type Client struct {
	baseURL    *url.URL
	httpClient HTTPDoer
	timeout    time.Duration
	userAgent  string
	mu         sync.RWMutex
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithTimeout sets a client-side deadline for every request.
// Zero means no deadline.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	client := &Client{
		baseURL:   u,
		userAgent: DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(int(client.timeout / time.Second)),
			tls_client.WithClientProfile(profiles.Chrome_120),
		}

		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	return client, nil
}

// ParseBaseURL validates a backend base URL
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apierrors.NewConfigError("backend_url", "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apierrors.NewConfigError("backend_url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apierrors.NewConfigError("backend_url", "scheme must be http or https")
	}
	if u.Host == "" {
		return nil, apierrors.NewConfigError("backend_url", "missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the backend origin as a string
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.String()
}

// SetHTTPClient swaps the underlying HTTP client
func (c *Client) SetHTTPClient(doer HTTPDoer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = doer
}

// endpoint joins an absolute path onto the base URL
func (c *Client) endpoint(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	return u.String()
}

// ResolveURL resolves a backend-relative reference such as /audio/x.mp3
// against the backend origin. Absolute URLs are returned unchanged and an
// empty reference stays empty.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.ResolveReference(r).String()
}

// do sends a request with the common headers and an optional deadline
func (c *Client) do(ctx context.Context, req *fhttp.Request) (*fhttp.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		var timeoutCtx context.Context
		timeoutCtx, cancel = context.WithTimeout(ctx, c.timeout)
		req = req.WithContext(timeoutCtx)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	c.mu.RLock()
	doer := c.httpClient
	c.mu.RUnlock()

	resp, err := doer.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}
