// Package testutil provides testing utilities for the CallRail extractor.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MockResponse defines the behavior for a mock CallRail endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request seen by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// MockCallRail is a configurable mock CallRail API server for testing.
type MockCallRail struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          []RecordedRequest
}

// NewMockCallRail creates a new mock CallRail server.
func NewMockCallRail() *MockCallRail {
	mock := &MockCallRail{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCallRail) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCallRail) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCallRail) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCallRail) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCallRail) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, responder(resp))
}

// SetSequence answers successive requests to path with the given responses.
// The last response repeats once the sequence is used up.
func (m *MockCallRail) SetSequence(path string, resps ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := next
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		responder(resps[i])(w, r)
	})
}

// SetRecords serves records under key with CallRail-style page/per_page paging.
// Requests without a page parameter get the first page.
func (m *MockCallRail) SetRecords(path, key string, records []map[string]any) {
	m.SetHandler(path, RecordsHandler(key, records))
}

// RecordsHandler is the paging handler behind SetRecords.
func RecordsHandler(key string, records []map[string]any) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		perPage := atoiOr(q.Get("per_page"), 100)
		page := atoiOr(q.Get("page"), 1)
		if perPage <= 0 {
			perPage = 100
		}
		if page <= 0 {
			page = 1
		}

		start := (page - 1) * perPage
		end := start + perPage
		if start > len(records) {
			start = len(records)
		}
		if end > len(records) {
			end = len(records)
		}

		totalPages := (len(records) + perPage - 1) / perPage
		writeJSON(w, http.StatusOK, map[string]any{
			"page":          page,
			"per_page":      perPage,
			"total_pages":   totalPages,
			"total_records": len(records),
			key:             records[start:end],
		})
	}
}

// Respond writes resp to w.
func Respond(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	responder(resp)(w, r)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCallRail) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns a copy of all recorded requests.
func (m *MockCallRail) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsFor returns the recorded requests for one path.
func (m *MockCallRail) RequestsFor(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// defaultHandler answers unknown paths like CallRail does.
func (m *MockCallRail) defaultHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Resource not found"})
}

// MakeRecords builds n records with sequential ids and a nested object, a
// scalar list and a list of objects, for exercising flattening.
func MakeRecords(n int, prefix string) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":         fmt.Sprintf("%s%03d", prefix, i+1),
			"name":       fmt.Sprintf("%s record %d", prefix, i+1),
			"created_at": "2026-01-02T03:04:05Z",
			"tags":       []any{"alpha", "beta"},
			"source":     map[string]any{"kind": "web", "id": i + 1},
			"contacts":   []any{map[string]any{"email": fmt.Sprintf("%s%d@example.com", prefix, i+1)}},
			"extra":      "dropped by normalization",
		}
	}
	return out
}

// NewJSONResponse creates a 200 OK response with the given JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if retryAfterSeconds > 0 {
		headers["Retry-After"] = strconv.Itoa(retryAfterSeconds)
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Resource not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "HTTP Token: Access denied."}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func responder(resp MockResponse) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
