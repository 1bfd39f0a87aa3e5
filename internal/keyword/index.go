// Package keyword provides the cross-document catalog: a Bleve full-text index of
// document titles and chunk text used to find which document answers a query.
package keyword

import (
	"context"

	"github.com/hyperjump/bunko/internal/models"
)

// SearchOptions tunes catalog ranking. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies title-field scores. Values > 1 rank title matches higher.
	TitleBoost float64
	// PhraseBoost multiplies the score of records where the query appears as a phrase.
	PhraseBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits (default 2).
	FuzzyEnabled bool
	Fuzziness    int
}

// DefaultSearchOptions are used by the API and CLI.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{TitleBoost: 3, PhraseBoost: 1.5}
}

// Catalog indexes documents for cross-document lookup.
type Catalog interface {
	// IndexDocument replaces everything indexed for doc with its title and chunks.
	IndexDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	// Search returns at most limit documents, best first, each with its best chunk.
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.CatalogHit, error)
	DeleteDocument(ctx context.Context, docID string) error
	// Suggest returns a spelling-corrected query, or query itself.
	Suggest(query string) string
	DocCount() (uint64, error)
	Close() error
}

// TermDictionary provides access to the indexed vocabulary for spell checking.
type TermDictionary interface {
	GetAllTerms() ([]string, error)
	GetTermFrequency(term string) (int, error)
}
