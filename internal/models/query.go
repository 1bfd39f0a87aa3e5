package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is wrapped by every Validate error.
var ErrInvalidRequest = errors.New("invalid request")

// SearchRequest is a retrieval request against a single document.
type SearchRequest struct {
	Query         string  `json:"query"`
	TopK          int     `json:"top_k,omitempty"`
	MinScore      float64 `json:"min_score,omitempty"`
	MaxChunkChars int     `json:"max_chunk_chars,omitempty"`
	MaxTotalChars int     `json:"max_total_chars,omitempty"`
}

// Validate ensures the query is present and caps TopK.
func (q *SearchRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if q.TopK > 50 {
		q.TopK = 50
	}
	return nil
}

// ChatRequest asks a question about one document.
type ChatRequest struct {
	Question       string    `json:"question"`
	ConversationID string    `json:"conversation_id,omitempty"`
	History        []Message `json:"history,omitempty"`
}

// Validate ensures the question is present and history roles are known.
func (r *ChatRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidRequest)
	}
	for i, m := range r.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: history[%d] has unknown role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	return nil
}

// SummaryRequest triggers summarization. Query is optional.
type SummaryRequest struct {
	Query string `json:"query,omitempty"`
}

// CompareRequest compares two documents on a task in one of the comparison modes.
type CompareRequest struct {
	LeftID  string `json:"left_id"`
	RightID string `json:"right_id"`
	Task    string `json:"task"`
	Mode    string `json:"mode,omitempty"`
}

// Validate requires both document ids and defaults Mode to "content".
func (r *CompareRequest) Validate() error {
	if r.LeftID == "" || r.RightID == "" {
		return fmt.Errorf("%w: left_id and right_id are required", ErrInvalidRequest)
	}
	r.Task = strings.TrimSpace(r.Task)
	if r.Mode == "" {
		r.Mode = "content"
	}
	if r.Task == "" && r.Mode == "custom" {
		return fmt.Errorf("%w: custom mode requires a task", ErrInvalidRequest)
	}
	return nil
}
