package models

// Result is a ranked chunk returned by retrieval. Chunk.Text may be truncated to fit budgets.
type Result struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Citation is the source metadata returned alongside an answer or summary.
type Citation struct {
	ChunkID   string  `json:"chunk_id"`
	PageStart int     `json:"page_start"`
	PageEnd   int     `json:"page_end"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt"`
}

// MapSummary is the intermediate per-chunk output of summarization.
type MapSummary struct {
	ChunkID   string `json:"chunk_id"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Summary   string `json:"summary"`
}

// Answer is the response to a chat question.
type Answer struct {
	DocumentID     string     `json:"document_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Answer         string     `json:"answer"`
	Intent         string     `json:"intent"`
	Sources        []Citation `json:"sources"`
	Retried        bool       `json:"retried,omitempty"`
}

// Summary is the response to a summarization request.
type Summary struct {
	DocumentID string     `json:"document_id"`
	Summary    string     `json:"summary"`
	Sources    []Citation `json:"sources"`
	Cached     bool       `json:"cached"`
}

// ComparisonPoint is one aligned difference or similarity between two documents.
type ComparisonPoint struct {
	Topic string `json:"topic"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Comparison is the structured response to a compare request.
type Comparison struct {
	LeftID       string            `json:"left_id"`
	RightID      string            `json:"right_id"`
	Mode         string            `json:"mode"`
	Verdict      string            `json:"verdict"`
	Similarities []string          `json:"similarities"`
	Differences  []ComparisonPoint `json:"differences"`
	Summary      string            `json:"summary"`
	LeftSources  []Citation        `json:"left_sources"`
	RightSources []Citation        `json:"right_sources"`
}

// SearchResponse is the response for a per-document retrieval request.
type SearchResponse struct {
	DocumentID string   `json:"document_id"`
	Query      string   `json:"query"`
	Results    []Result `json:"results"`
	QueryTime  int64    `json:"query_time_ms"`
}

// CatalogHit is a document matched by the cross-document catalog search.
type CatalogHit struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// NoTextMessage is returned instead of an answer or summary when a document has no
// extractable text. No generation call is made in that case.
const NoTextMessage = "This document has no readable text (it may be a scanned image without a text layer), so I cannot answer questions about it or summarize it."
