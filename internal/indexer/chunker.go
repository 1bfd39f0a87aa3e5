// Package indexer turns source files into page-tagged chunks and keeps storage,
// the in-memory library, and the catalog in step with them.
package indexer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/pkg/utils"
)

// pageSeparator joins consecutive pages inside a chunk.
const pageSeparator = "\n\n"

// Chunker splits a page sequence into overlapping, page-range-tagged chunks.
type Chunker struct {
	targetChars  int
	overlapChars int
}

// NewChunker creates a chunker that emits once a chunk reaches targetChars runes and
// carries the trailing overlapChars runes into the next chunk.
func NewChunker(targetChars, overlapChars int) *Chunker {
	return &Chunker{
		targetChars:  targetChars,
		overlapChars: overlapChars,
	}
}

// Chunk splits pages for docID. See ChunkPages.
func (c *Chunker) Chunk(docID string, pages []models.Page) []models.Chunk {
	return ChunkPages(pages, c.targetChars, c.overlapChars, docID)
}

type segment struct {
	page int
	text string
}

// ChunkPages accumulates non-empty pages until their joined text reaches targetChars,
// then emits a chunk spanning the first to last buffered page. The next buffer is
// seeded with the emitted text's trailing overlapChars runes, tagged with its last
// page. Pages are never split, so one long page becomes one chunk. Chunk ids are
// "{docID}:{n}" in emission order.
func ChunkPages(pages []models.Page, targetChars, overlapChars int, docID string) []models.Chunk {
	var (
		chunks []models.Chunk
		buf    []segment
		length int
		fresh  bool
	)

	emit := func() string {
		parts := make([]string, len(buf))
		for i, s := range buf {
			parts[i] = s.text
		}
		text := strings.TrimSpace(strings.Join(parts, pageSeparator))
		if text == "" {
			return ""
		}
		chunks = append(chunks, models.Chunk{
			ID:        fmt.Sprintf("%s:%d", docID, len(chunks)),
			DocID:     docID,
			PageStart: buf[0].page,
			PageEnd:   buf[len(buf)-1].page,
			Text:      text,
		})
		return text
	}

	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if len(buf) > 0 {
			length += utils.RuneLen(pageSeparator)
		}
		buf = append(buf, segment{page: p.PageNumber, text: p.Text})
		length += utils.RuneLen(p.Text)
		fresh = true

		if length < targetChars {
			continue
		}
		last := buf[len(buf)-1].page
		text := emit()
		buf, length, fresh = buf[:0], 0, false
		if tail := utils.Tail(text, overlapChars); strings.TrimSpace(tail) != "" {
			buf = append(buf, segment{page: last, text: tail})
			length = utils.RuneLen(tail)
		}
	}

	if fresh {
		emit()
	}
	return chunks
}
