package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

type registryFake struct {
	mu            sync.Mutex
	byFingerprint map[string]string
	byID          map[string]*domain.Document
	commitErr     error
	commits       int
}

func newRegistryFake() *registryFake {
	return &registryFake{
		byFingerprint: make(map[string]string),
		byID:          make(map[string]*domain.Document),
	}
}

func (f *registryFake) LookupByFingerprint(_ context.Context, fp string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byFingerprint[fp]
	return id, ok, nil
}

func (f *registryFake) Get(_ context.Context, docID string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.byID[docID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(docID))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *registryFake) List(context.Context) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *registryFake) Commit(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	copyDoc := *doc
	f.byFingerprint[doc.Fingerprint] = doc.ID
	f.byID[doc.ID] = &copyDoc
	f.commits++
	return nil
}

type storageFake struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: make(map[string]string)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type extractorFake struct {
	err error
}

func (f *extractorFake) ExtractPages(_ context.Context, raw []byte) ([]domain.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Page{{Number: 1, Text: strings.TrimSpace(string(raw))}}, nil
}

type chunkerFake struct{}

func (chunkerFake) Split(pages []domain.Page) []domain.Chunk {
	var out []domain.Chunk
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		out = append(out, domain.Chunk{
			ID:   fmt.Sprintf("p%d_c0", p.Number),
			Page: p.Number,
			Text: p.Text,
		})
	}
	return out
}

type embedderFake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type indexFake struct {
	mu      sync.Mutex
	upserts int
	err     error
}

func (f *indexFake) UpsertChunks(_ context.Context, _ *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if f.err != nil {
		return f.err
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunks/vectors mismatch")
	}
	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()
	return nil
}

func (f *indexFake) Query(context.Context, []float32, int, string) ([]domain.RetrievedEvidence, error) {
	return nil, errors.New("not implemented")
}

type eventsFake struct {
	mu     sync.Mutex
	docIDs []string
	err    error
}

func (f *eventsFake) PublishDocumentIngested(_ context.Context, docID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.docIDs = append(f.docIDs, docID)
	f.mu.Unlock()
	return nil
}

type ingestFixture struct {
	registry  *registryFake
	storage   *storageFake
	extractor *extractorFake
	embedder  *embedderFake
	index     *indexFake
	events    *eventsFake
	uc        *IngestUseCase
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		registry:  newRegistryFake(),
		storage:   newStorageFake(),
		extractor: &extractorFake{},
		embedder:  &embedderFake{},
		index:     &indexFake{},
		events:    &eventsFake{},
	}
	f.uc = NewIngestUseCase(f.registry, f.storage, f.extractor, chunkerFake{}, f.embedder, f.index, f.events, 1<<20)
	return f
}

func TestIngestSuccess(t *testing.T) {
	f := newIngestFixture()

	res, err := f.uc.Ingest(context.Background(), ports.IngestRequest{
		Raw:   []byte("Give aspirin within 2 hours of onset."),
		Title: "Stroke Guideline",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Deduped {
		t.Fatalf("first ingestion must not be deduped")
	}
	if res.Pages != 1 || res.ChunksIndexed != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if !strings.HasPrefix(res.DocID, "doc_") {
		t.Fatalf("expected generated doc_id, got %s", res.DocID)
	}
	if f.index.upserts != 1 {
		t.Fatalf("expected one upsert, got %d", f.index.upserts)
	}
	if f.registry.commits != 1 {
		t.Fatalf("expected one registry commit, got %d", f.registry.commits)
	}
	if _, ok := f.storage.saved[res.DocID+".pdf"]; !ok {
		t.Fatalf("expected raw blob saved under %s.pdf", res.DocID)
	}
	if len(f.events.docIDs) != 1 || f.events.docIDs[0] != res.DocID {
		t.Fatalf("expected ingested event for %s, got %v", res.DocID, f.events.docIDs)
	}
}

func TestIngestIdenticalBytesIsDeduped(t *testing.T) {
	f := newIngestFixture()
	raw := []byte("same content")

	first, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: raw})
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	second, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: raw, DocID: "other-id"})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if !second.Deduped {
		t.Fatalf("expected deduped result")
	}
	if second.DocID != first.DocID {
		t.Fatalf("expected same doc_id %s, got %s", first.DocID, second.DocID)
	}
	if second.ChunksIndexed != 0 || second.Pages != 0 {
		t.Fatalf("deduped result must report zero work: %+v", second)
	}
	if f.index.upserts != 1 {
		t.Fatalf("dedup must not touch the index, upserts = %d", f.index.upserts)
	}
	if f.embedder.calls != 1 {
		t.Fatalf("dedup must not re-embed, calls = %d", f.embedder.calls)
	}
}

func TestIngestConflictOnUsedDocID(t *testing.T) {
	f := newIngestFixture()

	if _, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("content a"), DocID: "guide-1"}); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	_, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("content b"), DocID: "guide-1"})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if f.index.upserts != 1 {
		t.Fatalf("conflict must not mutate the index, upserts = %d", f.index.upserts)
	}
}

func TestIngestTooLargeFailsBeforeAnyWork(t *testing.T) {
	f := newIngestFixture()
	f.uc.maxUploadBytes = 8

	_, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("way past the limit")})
	if !domain.IsKind(err, domain.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if len(f.storage.saved) != 0 || f.embedder.calls != 0 {
		t.Fatalf("size guard must reject before doing work")
	}
}

func TestIngestPlaceholderDocIDGetsGenerated(t *testing.T) {
	f := newIngestFixture()

	res, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("x"), DocID: " string "})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !strings.HasPrefix(res.DocID, "doc_") {
		t.Fatalf("placeholder doc_id must be replaced, got %s", res.DocID)
	}
}

func TestIngestUpsertFailureLeavesNoRegistration(t *testing.T) {
	f := newIngestFixture()
	f.index.err = errors.New("qdrant down")
	raw := []byte("retryable content")

	if _, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: raw}); err == nil {
		t.Fatalf("expected upsert failure")
	}
	if f.registry.commits != 0 {
		t.Fatalf("failed upsert must not commit registration")
	}

	// Same bytes retry the whole pipeline once the index recovers.
	f.index.err = nil
	res, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: raw})
	if err != nil {
		t.Fatalf("retry Ingest() error = %v", err)
	}
	if res.Deduped {
		t.Fatalf("retry after failure must not be deduped")
	}
}

func TestIngestParseFailureAbortsIngestion(t *testing.T) {
	f := newIngestFixture()
	f.extractor.err = domain.WrapError(domain.ErrParse, "extract pages", errors.New("bad pdf"))

	_, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("not a pdf")})
	if !domain.IsKind(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if f.registry.commits != 0 || f.index.upserts != 0 {
		t.Fatalf("parse failure must abort before index and registry")
	}
}

func TestIngestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newIngestFixture()
	f.events.err = errors.New("nats down")

	if _, err := f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: []byte("content")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}

func TestIngestConcurrentSameBytesIngestOnce(t *testing.T) {
	f := newIngestFixture()
	raw := []byte("raced content")

	const workers = 8
	results := make([]*domain.IngestResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.uc.Ingest(context.Background(), ports.IngestRequest{Raw: raw})
		}(i)
	}
	wg.Wait()

	deduped := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if results[i].Deduped {
			deduped++
		}
		if results[i].DocID != results[0].DocID {
			t.Fatalf("all workers must resolve the same doc_id")
		}
	}
	if deduped != workers-1 {
		t.Fatalf("expected exactly one winner, got %d deduped", deduped)
	}
	if f.index.upserts != 1 {
		t.Fatalf("expected one upsert across the race, got %d", f.index.upserts)
	}
}
