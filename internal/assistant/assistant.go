// Package assistant answers questions about, summarizes, and compares ingested
// documents. It joins the document library, the retrieval policy, the generator,
// and conversation history.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/bunko/internal/history"
	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/llm"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/policy"
	"github.com/hyperjump/bunko/internal/summarize"
	"github.com/hyperjump/bunko/pkg/utils"
)

// ErrGeneration wraps failures of the text generation collaborator.
var ErrGeneration = errors.New("generation failed")

// Config holds retrieval and generation limits.
type Config struct {
	Retrieval            lexical.Options
	CompareMaxChunkChars int
	CitationChars        int
	MaxTokens            int
	RetryMaxTokens       int
	CompareMaxTokens     int
	// HistoryMessages is how many prior messages are sent with a question.
	HistoryMessages int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		Retrieval: lexical.Options{
			TopK:          lexical.DefaultTopK,
			MaxChunkChars: lexical.DefaultMaxChunkChars,
			MaxTotalChars: lexical.DefaultMaxTotalChars,
		},
		CompareMaxChunkChars: 900,
		CitationChars:        240,
		MaxTokens:            800,
		RetryMaxTokens:       500,
		CompareMaxTokens:     1000,
		HistoryMessages:      8,
	}
}

// Assistant serves chat, summary, comparison, and search requests.
type Assistant struct {
	lib     *library.Library
	gen     llm.Generator
	sum     *summarize.Summarizer
	history history.Store
	cfg     Config
	logger  *zap.Logger
	flight  singleflight.Group
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithHistory stores conversation turns in s and resolves conversation ids against it.
func WithHistory(s history.Store) Option {
	return func(a *Assistant) { a.history = s }
}

// New creates an Assistant.
func New(lib *library.Library, gen llm.Generator, sum *summarize.Summarizer, cfg Config, opts ...Option) *Assistant {
	d := DefaultConfig()
	if cfg.CitationChars <= 0 {
		cfg.CitationChars = d.CitationChars
	}
	if cfg.CompareMaxChunkChars <= 0 {
		cfg.CompareMaxChunkChars = d.CompareMaxChunkChars
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = d.HistoryMessages
	}
	a := &Assistant{lib: lib, gen: gen, sum: sum, cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = utils.LoggerOrNop(a.logger)
	return a
}

// Search runs a retrieval request against one document. Unset request limits take
// the configured retrieval options.
func (a *Assistant) Search(ctx context.Context, docID string, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := a.lib.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	opts := a.cfg.Retrieval
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.MinScore > 0 {
		opts.MinScore = req.MinScore
	}
	if req.MaxChunkChars > 0 {
		opts.MaxChunkChars = req.MaxChunkChars
	}
	if req.MaxTotalChars > 0 {
		opts.MaxTotalChars = req.MaxTotalChars
	}
	start := time.Now()
	results := entry.Index.Search(req.Query, opts)
	return &models.SearchResponse{
		DocumentID: docID,
		Query:      req.Query,
		Results:    results,
		QueryTime:  time.Since(start).Milliseconds(),
	}, nil
}

// Ask answers a question about one document. Summary requests are routed to the
// summarizer; follow-up questions widen retrieval with the previous turn. An
// oversized prompt is retried once with a tightened budget.
func (a *Assistant) Ask(ctx context.Context, docID string, req models.ChatRequest) (*models.Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := a.lib.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	convID, hist, err := a.conversation(ctx, req)
	if err != nil {
		return nil, err
	}

	intent := policy.Classify(req.Question, len(hist) > 0)
	ans := &models.Answer{DocumentID: docID, ConversationID: convID, Intent: string(intent)}

	switch {
	case entry.Empty():
		ans.Answer = models.NoTextMessage
		ans.Sources = []models.Citation{}
	case intent == policy.IntentSummary:
		s, err := a.summary(ctx, entry, "")
		if err != nil {
			return nil, err
		}
		ans.Answer = s.Summary
		ans.Sources = s.Sources
	default:
		if err := a.answer(ctx, entry, req.Question, hist, ans); err != nil {
			return nil, err
		}
	}

	a.record(ctx, convID, req.Question, ans.Answer)
	return ans, nil
}

func (a *Assistant) conversation(ctx context.Context, req models.ChatRequest) (string, []models.Message, error) {
	if a.history == nil {
		return req.ConversationID, req.History, nil
	}
	if req.ConversationID == "" {
		return history.NewConversationID(), req.History, nil
	}
	if len(req.History) > 0 {
		return req.ConversationID, req.History, nil
	}
	hist, err := a.history.Get(ctx, req.ConversationID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return req.ConversationID, hist, nil
}

func (a *Assistant) record(ctx context.Context, convID, question, answer string) {
	if a.history == nil || convID == "" {
		return
	}
	err := a.history.Append(ctx, convID,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: answer},
	)
	if err != nil {
		a.logger.Warn("failed to record conversation turn", zap.String("conversation_id", convID), zap.Error(err))
	}
}

func (a *Assistant) answer(ctx context.Context, entry *library.Entry, question string, hist []models.Message, ans *models.Answer) error {
	budget := policy.Budget{
		Search:    a.cfg.Retrieval,
		History:   policy.TrimHistory(hist, a.cfg.HistoryMessages),
		MaxTokens: a.cfg.MaxTokens,
	}
	query := policy.ChatQuery(question, hist)

	text, results, err := a.attempt(ctx, entry, question, query, budget)
	if errors.Is(err, llm.ErrPayloadTooLarge) {
		a.logger.Warn("prompt too large, retrying with a tighter budget", zap.String("doc_id", entry.Document.ID))
		ans.Retried = true
		text, results, err = a.attempt(ctx, entry, question, query, policy.Tighten(budget, a.cfg.RetryMaxTokens))
	}
	if err != nil {
		return fmt.Errorf("%w: answer: %w", ErrGeneration, err)
	}
	ans.Answer = strings.TrimSpace(text)
	ans.Sources = policy.Citations(results, a.cfg.CitationChars)
	return nil
}

func (a *Assistant) attempt(ctx context.Context, entry *library.Entry, question, query string, b policy.Budget) (string, []models.Result, error) {
	results := entry.Index.Search(query, b.Search)
	low := policy.LowConfidence(results, b.Search.MinScore)

	msgs := make([]models.Message, 0, len(b.History)+1)
	msgs = append(msgs, b.History...)
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: question})

	text, err := a.gen.Generate(ctx, llm.Request{
		System:    chatSystemPrompt(entry.Document.Title, results, low),
		Messages:  msgs,
		MaxTokens: b.MaxTokens,
	})
	return text, results, err
}

// Summarize returns the map-reduce summary of a document, optionally focused on
// query. Summaries are cached on the published document, so repeat requests
// return identical text without generation calls until the document changes.
func (a *Assistant) Summarize(ctx context.Context, docID, query string) (*models.Summary, error) {
	entry, err := a.lib.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return a.summary(ctx, entry, query)
}

func (a *Assistant) summary(ctx context.Context, entry *library.Entry, query string) (*models.Summary, error) {
	if s, ok := entry.Summary(query); ok {
		out := *s
		out.Cached = true
		return &out, nil
	}
	key := entry.Document.ID + "\x00" + strings.ToLower(strings.TrimSpace(query))
	v, err, _ := a.flight.Do(key, func() (any, error) {
		if s, ok := entry.Summary(query); ok {
			return s, nil
		}
		s, err := a.sum.Summarize(ctx, entry.Index, query)
		if err != nil {
			return nil, err
		}
		s.DocumentID = entry.Document.ID
		entry.StoreSummary(query, s)
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: summarize %s: %w", ErrGeneration, entry.Document.ID, err)
	}
	out := *v.(*models.Summary)
	return &out, nil
}

// Compare retrieves excerpts for the task from both documents with the mode's
// retrieval options and asks for a structured comparison. A response that is not
// valid JSON yields the "unclear" verdict.
func (a *Assistant) Compare(ctx context.Context, req models.CompareRequest) (*models.Comparison, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mode, err := policy.ParseMode(req.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	left, err := a.lib.Get(ctx, req.LeftID)
	if err != nil {
		return nil, err
	}
	right, err := a.lib.Get(ctx, req.RightID)
	if err != nil {
		return nil, err
	}

	out := &models.Comparison{
		LeftID:       req.LeftID,
		RightID:      req.RightID,
		Mode:         string(mode),
		Verdict:      verdictUnclear,
		Similarities: []string{},
		Differences:  []models.ComparisonPoint{},
		LeftSources:  []models.Citation{},
		RightSources: []models.Citation{},
	}
	if left.Empty() || right.Empty() {
		out.Summary = models.NoTextMessage
		return out, nil
	}

	base := a.cfg.Retrieval
	base.MaxChunkChars = a.cfg.CompareMaxChunkChars
	opts := policy.CompareOptions(base, mode)
	query := policy.CompareQuery(req.Task, mode)
	leftResults := left.Index.Search(query, opts)
	rightResults := right.Index.Search(query, opts)

	raw, err := a.gen.Generate(ctx, llm.UserPrompt(
		compareSystemPrompt,
		comparePrompt(req.Task, mode, left.Document, right.Document, leftResults, rightResults),
		a.cfg.CompareMaxTokens,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: compare: %w", ErrGeneration, err)
	}
	parsed := parseComparison(raw)
	if parsed.Verdict == verdictUnclear && len(parsed.Differences) == 0 && len(parsed.Similarities) == 0 {
		a.logger.Debug("comparison response was not structured", zap.String("mode", string(mode)))
	}

	out.Verdict = parsed.Verdict
	out.Similarities = parsed.Similarities
	out.Differences = parsed.Differences
	out.Summary = parsed.Summary
	out.LeftSources = policy.Citations(leftResults, a.cfg.CitationChars)
	out.RightSources = policy.Citations(rightResults, a.cfg.CitationChars)
	return out, nil
}
