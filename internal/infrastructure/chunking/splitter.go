package chunking

import (
	"fmt"
	"strings"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// Splitter cuts page text into fixed-size overlapping chunks. Chunk ids are
// "p{page}_c{index}" and never span a page boundary.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(pages []domain.Page) []domain.Chunk {
	var out []domain.Chunk
	for _, page := range pages {
		out = append(out, s.splitPage(page)...)
	}
	return out
}

func (s *Splitter) splitPage(page domain.Page) []domain.Chunk {
	runes := []rune(page.Text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []domain.Chunk
	start := 0
	idx := 0
	for start < n {
		end := start + s.ChunkSize
		if end > n {
			end = n
		}

		// The index advances even for slices that trim to nothing, keeping
		// ids tied to cursor positions rather than emitted chunks.
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, domain.Chunk{
				ID:   fmt.Sprintf("p%d_c%d", page.Number, idx),
				Page: page.Number,
				Text: piece,
			})
		}
		idx++

		// overlap >= chunk size would stall the cursor; fall through to a
		// full step so the loop always terminates.
		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
