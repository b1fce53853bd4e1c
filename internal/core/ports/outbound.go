package ports

import (
	"context"
	"io"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// DocumentRegistry is the shared ingestion state: fingerprint→doc_id plus
// doc_id→metadata. Every method is a single atomic critical section; callers
// serialize racing ingestions above this interface.
type DocumentRegistry interface {
	// LookupByFingerprint resolves a content fingerprint to its canonical
	// doc_id. ok=false means the fingerprint is unknown.
	LookupByFingerprint(ctx context.Context, fingerprint string) (docID string, ok bool, err error)
	// Get returns the registered document or a domain.ErrDocumentNotFound kind.
	Get(ctx context.Context, docID string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	// Commit atomically records both the fingerprint mapping and the document
	// metadata. A doc_id already held by a different fingerprint yields a
	// domain.ErrConflict kind and writes nothing.
	Commit(ctx context.Context, doc *domain.Document) error
}

// ObjectStorage keeps one raw document blob per doc_id.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// PageExtractor turns raw document bytes into ordered 1-based pages.
// Malformed content yields a domain.ErrParse kind, never a panic.
type PageExtractor interface {
	ExtractPages(ctx context.Context, raw []byte) ([]domain.Page, error)
}

// Chunker splits pages into overlapping chunks with deterministic ids.
// Chunks never span a page boundary.
type Chunker interface {
	Split(pages []domain.Page) []domain.Chunk
}

// Embedder maps texts to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores chunk vectors and answers nearest-neighbor queries.
// Upserts are idempotent on the doc_id:chunk_id composite key. Query with an
// empty docID is unscoped; an unknown docID returns zero results, not an
// error. Distance is non-negative and smaller means more relevant.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	Query(ctx context.Context, queryVector []float32, topK int, docID string) ([]domain.RetrievedEvidence, error)
}

// AnswerGenerator turns a composed prompt into prose.
type AnswerGenerator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// EventPublisher announces completed ingestions. Publication is best-effort
// notification plumbing and never affects ingestion outcome.
type EventPublisher interface {
	PublishDocumentIngested(ctx context.Context, docID string) error
}
