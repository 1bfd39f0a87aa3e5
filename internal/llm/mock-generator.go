package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/bunko/pkg/utils"
)

// MockGenerator is a deterministic generator for tests and offline use. By default
// it echoes a clipped digest of the last user message; Respond overrides that.
type MockGenerator struct {
	model   string
	calls   atomic.Int64
	mu      sync.Mutex
	respond func(Request) (string, error)
	history []Request
}

// NewMockGenerator returns a mock that reports model as its model name.
func NewMockGenerator(model string) *MockGenerator {
	if model == "" {
		model = "mock"
	}
	return &MockGenerator{model: model}
}

// Respond sets the function that produces each response.
func (m *MockGenerator) Respond(fn func(Request) (string, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
	return m
}

// Generate records the request and returns the scripted or default response.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)
	m.mu.Lock()
	m.history = append(m.history, req)
	fn := m.respond
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return defaultResponse(req), nil
}

// Model returns the mock's model name.
func (m *MockGenerator) Model() string {
	return m.model
}

// Calls returns how many times Generate was called.
func (m *MockGenerator) Calls() int {
	return int(m.calls.Load())
}

// Requests returns a copy of every request received so far.
func (m *MockGenerator) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.history...)
}

func defaultResponse(req Request) string {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return fmt.Sprintf("- %s", utils.Clip(strings.Join(strings.Fields(last), " "), 160))
}
