// Package models defines core data structures for documents, chunks, and retrieval results.
package models

import "time"

// Page is the extracted text of a single source page. PageNumber starts at 1.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Document represents a stored document with metadata. The text itself lives in its chunks.
type Document struct {
	ID          string                 `json:"id" db:"id"`
	Title       string                 `json:"title" db:"title"`
	Path        string                 `json:"path,omitempty" db:"path"`
	ContentType string                 `json:"content_type" db:"content_type"`
	PageCount   int                    `json:"page_count" db:"page_count"`
	Pages       int                    `json:"pages_extracted" db:"pages_extracted"`
	Size        int64                  `json:"size" db:"size"`
	ChunkCount  int                    `json:"chunk_count" db:"-"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous, page-range-tagged window of document text.
// ID has the form "{DocID}:{index}" and is stable for identical input pages.
type Chunk struct {
	ID        string `json:"id" db:"id"`
	DocID     string `json:"doc_id" db:"document_id"`
	PageStart int    `json:"page_start" db:"page_start"`
	PageEnd   int    `json:"page_end" db:"page_end"`
	Text      string `json:"text" db:"content"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
