package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// Registry is the mutex-guarded in-memory document registry. Suitable for
// single-process deployments and tests; the postgres registry is the durable
// alternative behind the same port.
type Registry struct {
	mu            sync.Mutex
	byFingerprint map[string]string
	byID          map[string]*domain.Document
}

func New() *Registry {
	return &Registry{
		byFingerprint: make(map[string]string),
		byID:          make(map[string]*domain.Document),
	}
}

func (r *Registry) LookupByFingerprint(_ context.Context, fingerprint string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docID, ok := r.byFingerprint[fingerprint]
	return docID, ok, nil
}

func (r *Registry) Get(_ context.Context, docID string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[docID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "registry get", fmt.Errorf("doc_id %q", docID))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *Registry) List(_ context.Context) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Document, 0, len(r.byID))
	for _, doc := range r.byID {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Registry) Commit(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[doc.ID]; ok && existing.Fingerprint != doc.Fingerprint {
		return domain.WrapError(domain.ErrConflict, "registry commit", fmt.Errorf("doc_id %q already registered", doc.ID))
	}

	copyDoc := *doc
	r.byFingerprint[doc.Fingerprint] = doc.ID
	r.byID[doc.ID] = &copyDoc
	return nil
}
