// Package storage persists documents and their chunks. Indexes are never stored;
// they are rebuilt from chunks on load.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/bunko/internal/models"
)

// ErrNotFound is wrapped by lookups of documents that do not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// UpsertDocument stores doc and atomically replaces its entire chunk set.
	UpsertDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// GetChunks returns a document's chunks in chunk order.
	GetChunks(ctx context.Context, docID string) ([]models.Chunk, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
