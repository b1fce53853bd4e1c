package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

// docIDPlaceholder is the Swagger default callers keep submitting verbatim;
// it is treated as "no doc_id supplied".
const docIDPlaceholder = "string"

const dedupMessage = "Duplicate PDF detected — returning existing doc_id."

// IngestUseCase runs the synchronous ingestion pipeline: size guard,
// fingerprint dedup, doc_id resolution, blob save, page extraction,
// chunking, embedding, vector upsert, and finally registry commit.
//
// The registry commit happens only after a successful upsert, so a failed
// ingestion leaves no fingerprint mapping behind and re-submitting the same
// bytes retries the whole pipeline.
type IngestUseCase struct {
	registry  ports.DocumentRegistry
	storage   ports.ObjectStorage
	extractor ports.PageExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	events    ports.EventPublisher

	maxUploadBytes int64

	// locks serialize racing ingestions per fingerprint and per doc_id;
	// registry operations themselves are atomic but the pipeline between
	// lookup and commit is not.
	locks keyedMutex
}

func NewIngestUseCase(
	registry ports.DocumentRegistry,
	storage ports.ObjectStorage,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	events ports.EventPublisher,
	maxUploadBytes int64,
) *IngestUseCase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 30 << 20
	}
	return &IngestUseCase{
		registry:       registry,
		storage:        storage,
		extractor:      extractor,
		chunker:        chunker,
		embedder:       embedder,
		index:          index,
		events:         events,
		maxUploadBytes: maxUploadBytes,
	}
}

func (uc *IngestUseCase) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	if len(req.Raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("empty payload"))
	}
	// Fail the oversized case before paying for hashing or extraction.
	if int64(len(req.Raw)) > uc.maxUploadBytes {
		return nil, domain.WrapError(
			domain.ErrTooLarge,
			"ingest",
			fmt.Errorf("payload %d bytes exceeds limit %d", len(req.Raw), uc.maxUploadBytes),
		)
	}

	fingerprint := contentFingerprint(req.Raw)

	unlockFP := uc.locks.lock("fp:" + fingerprint)
	defer unlockFP()

	if docID, ok, err := uc.registry.LookupByFingerprint(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("lookup fingerprint: %w", err)
	} else if ok {
		return &domain.IngestResult{
			DocID:   docID,
			Deduped: true,
			Message: dedupMessage,
		}, nil
	}

	docID := resolveDocID(req.DocID)

	unlockDoc := uc.locks.lock("doc:" + docID)
	defer unlockDoc()

	// Reject a caller-supplied doc_id that already names different content
	// before any expensive work.
	switch _, err := uc.registry.Get(ctx, docID); {
	case err == nil:
		return nil, domain.WrapError(domain.ErrConflict, "ingest", fmt.Errorf("doc_id %q already exists", docID))
	case !domain.IsKind(err, domain.ErrDocumentNotFound):
		return nil, fmt.Errorf("check doc_id: %w", err)
	}

	doc := &domain.Document{
		ID:          docID,
		Title:       req.Title,
		Source:      req.Source,
		Category:    req.Category,
		Fingerprint: fingerprint,
		StoragePath: docID + ".pdf",
		CreatedAt:   time.Now().UTC(),
	}

	if err := uc.storage.Save(ctx, doc.StoragePath, bytes.NewReader(req.Raw)); err != nil {
		return nil, fmt.Errorf("save raw document: %w", err)
	}

	pages, err := uc.extractor.ExtractPages(ctx, req.Raw)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	doc.Pages = len(pages)

	chunks := uc.chunker.Split(pages)

	if err := uc.embedAndIndex(ctx, doc, chunks); err != nil {
		return nil, err
	}

	if err := uc.registry.Commit(ctx, doc); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}

	uc.publishIngested(ctx, docID)

	return &domain.IngestResult{
		DocID:         docID,
		ChunksIndexed: len(chunks),
		Pages:         len(pages),
	}, nil
}

func (uc *IngestUseCase) embedAndIndex(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrDependency,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.index.UpsertChunks(ctx, doc, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

func (uc *IngestUseCase) publishIngested(ctx context.Context, docID string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishDocumentIngested(ctx, docID); err != nil {
		slog.Warn("publish_ingested_failed", "doc_id", docID, "error", err)
	}
}

func contentFingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func resolveDocID(requested string) string {
	id := strings.TrimSpace(requested)
	if id == "" || strings.EqualFold(id, docIDPlaceholder) {
		generated := uuid.New()
		return fmt.Sprintf("doc_%x", generated[:4])
	}
	return id
}

// keyedMutex hands out one mutex per key. Entries are reference counted and
// released on unlock, so the map does not grow with the corpus.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedMutexEntry)
	}
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
