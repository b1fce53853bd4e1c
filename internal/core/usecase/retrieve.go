package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

// retriever coordinates embedding and the per-scope nearest-neighbor
// fan-out. It is shared by the ask and summarize use cases.
type retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
}

// retrieve returns at most topK evidence items for the query text.
//
// no_rag short-circuits with zero gateway calls. With multiple scopes each
// scope is queried for topK candidates concurrently and the lists are merged;
// the merged set is the globally best topK only down to the per-scope query
// depth.
func (r *retriever) retrieve(
	ctx context.Context,
	queryText string,
	topK int,
	docIDs []string,
	mode domain.Mode,
) ([]domain.RetrievedEvidence, error) {
	if mode == domain.ModeNoRAG {
		return nil, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	switch len(docIDs) {
	case 0:
		return r.index.Query(ctx, queryVector, topK, "")
	case 1:
		return r.index.Query(ctx, queryVector, topK, docIDs[0])
	}

	// One scoped query per doc_id; the queries are independent, so issue
	// them concurrently and merge once all completed.
	results := make([][]domain.RetrievedEvidence, len(docIDs))
	errs := make([]error, len(docIDs))

	var wg sync.WaitGroup
	for i, docID := range docIDs {
		wg.Add(1)
		go func(i int, docID string) {
			defer wg.Done()
			results[i], errs[i] = r.index.Query(ctx, queryVector, topK, docID)
		}(i, docID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("query scope %s: %w", docIDs[i], err)
		}
	}
	return mergeTopK(results, topK), nil
}

// mergeTopK concatenates the per-scope result lists in scope order, orders
// by ascending distance with a stable sort (ties keep per-scope order), and
// truncates to topK.
func mergeTopK(results [][]domain.RetrievedEvidence, topK int) []domain.RetrievedEvidence {
	total := 0
	for _, r := range results {
		total += len(r)
	}

	merged := make([]domain.RetrievedEvidence, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})

	if topK >= 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
