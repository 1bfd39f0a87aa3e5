package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/bunko/internal/models"
)

func TestClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  the answer  "}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/", Model: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Generate(context.Background(), Request{
		System:    "sys",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "q"}},
		MaxTokens: 42,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "the answer" {
		t.Errorf("out = %q", out)
	}
	if got.Model != "m1" || got.MaxTokens != 42 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "q" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if c.Model() != "m1" {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestClient_PayloadTooLarge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"413", http.StatusRequestEntityTooLarge, `too big`, true},
		{"context length code", http.StatusBadRequest, `{"error":{"message":"bad","code":"context_length_exceeded"}}`, true},
		{"context length message", http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, true},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`, false},
		{"server error", http.StatusInternalServerError, `oops`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.Generate(context.Background(), UserPrompt("", "q", 0))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrPayloadTooLarge) != tt.want {
				t.Errorf("errors.Is(ErrPayloadTooLarge) = %v, want %v (err: %v)", !tt.want, tt.want, err)
			}
		})
	}
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL, RequestsPerSecond: 100})
	if _, err := c.Generate(context.Background(), UserPrompt("", "q", 0)); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestMockGenerator(t *testing.T) {
	m := NewMockGenerator("")
	out, err := m.Generate(context.Background(), UserPrompt("s", "hello   world", 0))
	if err != nil {
		t.Fatal(err)
	}
	if out != "- hello world" {
		t.Errorf("out = %q", out)
	}
	m.Respond(func(Request) (string, error) { return "", ErrPayloadTooLarge })
	if _, err := m.Generate(context.Background(), UserPrompt("", "x", 0)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("err = %v", err)
	}
	if m.Calls() != 2 || len(m.Requests()) != 2 {
		t.Errorf("calls = %d, requests = %d", m.Calls(), len(m.Requests()))
	}
	if m.Model() != "mock" {
		t.Errorf("model = %q", m.Model())
	}
}
