package ports

import (
	"context"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// IngestRequest carries one upload into the ingestion pipeline.
type IngestRequest struct {
	Raw      []byte
	DocID    string
	Title    string
	Source   string
	Category string
}

// DocumentIngestor is the inbound contract for synchronous ingestion.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.IngestResult, error)
}

// AskService answers natural-language questions grounded in the corpus.
type AskService interface {
	Ask(ctx context.Context, question string, topK int, docIDs []string, mode domain.Mode) (*domain.Answer, error)
}

// SummarizeService produces style-specific grounded summaries.
type SummarizeService interface {
	Summarize(ctx context.Context, docIDs []string, style domain.SummaryStyle) (*domain.Summary, error)
}

// DocumentReader is the inbound read model for registered documents.
type DocumentReader interface {
	Get(ctx context.Context, docID string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
}
