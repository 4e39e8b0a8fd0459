package api

import (
	"context"
	"io"
	"sync"

	fhttp "github.com/bogdanfinn/fhttp"

	"github.com/diogo/voxchat/internal/models"
)

// MockResponseBody is a ReadCloser that simulates reading response data
type MockResponseBody struct {
	data []byte
	pos  int
}

// NewMockResponseBody creates a new MockResponseBody with the given data
func NewMockResponseBody(data []byte) *MockResponseBody {
	return &MockResponseBody{data: data}
}

// Read implements the io.Reader interface
func (m *MockResponseBody) Read(p []byte) (int, error) {
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += n
	return n, nil
}

// Close implements the io.Closer interface
func (m *MockResponseBody) Close() error {
	return nil
}

// MockDoer is a scripted HTTPDoer that records every request it receives
type MockDoer struct {
	// Handler, when set, produces the response for each request
	Handler func(req *fhttp.Request) (*fhttp.Response, error)
	// Response and Err are returned when Handler is nil
	Response *fhttp.Response
	Err      error

	mu       sync.Mutex
	Requests []*fhttp.Request
	Bodies   [][]byte
}

var _ HTTPDoer = (*MockDoer)(nil)

// Do implements HTTPDoer
func (m *MockDoer) Do(req *fhttp.Request) (*fhttp.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, body)
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(req)
	}
	return m.Response, m.Err
}

// LastRequest returns the most recent request and its body
func (m *MockDoer) LastRequest() (*fhttp.Request, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil, nil
	}
	return m.Requests[len(m.Requests)-1], m.Bodies[len(m.Bodies)-1]
}

// NewMockResponse builds a response with the given status, content type and body
func NewMockResponse(status int, contentType string, body []byte) *fhttp.Response {
	header := make(fhttp.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &fhttp.Response{
		StatusCode: status,
		Header:     header,
		Body:       NewMockResponseBody(body),
	}
}

// MockBackend is a scripted Backend for tests of packages above api
type MockBackend struct {
	HealthErr error
	ChatReply *models.ChatReply
	ChatErr   error
	// ChatFunc, when set, overrides ChatReply and ChatErr
	ChatFunc func(ctx context.Context, req *ChatRequest) (*models.ChatReply, error)
	Origin   string

	mu           sync.Mutex
	HealthCalls  int
	ChatRequests []*ChatRequest
}

var _ Backend = (*MockBackend)(nil)

// Health implements Backend
func (m *MockBackend) Health(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthErr
}

// Chat implements Backend
func (m *MockBackend) Chat(ctx context.Context, req *ChatRequest) (*models.ChatReply, error) {
	m.mu.Lock()
	m.ChatRequests = append(m.ChatRequests, req)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return m.ChatReply, m.ChatErr
}

// ResolveURL implements Backend
func (m *MockBackend) ResolveURL(ref string) string {
	if ref == "" || m.Origin == "" {
		return ref
	}
	return m.Origin + ref
}

// Requests returns a snapshot of the chat requests received
func (m *MockBackend) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.ChatRequests...)
}
