package domain

import "time"

// Document is the immutable registration record for an ingested guideline.
// Identity is doc_id; content identity is the SHA-256 fingerprint of the raw
// bytes. Documents are never deleted by the core.
type Document struct {
	ID          string    `json:"doc_id"`
	Title       string    `json:"title,omitempty"`
	Source      string    `json:"source,omitempty"`
	Category    string    `json:"category,omitempty"`
	Fingerprint string    `json:"-"`
	StoragePath string    `json:"-"`
	Pages       int       `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Page is the ephemeral product of page extraction. Numbering is 1-based and
// follows document order. Pages are not persisted, only their chunks are.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded slice of one page's text, the unit of retrieval.
// ID has the form "p{page}_c{index}" and is stable across re-ingestion of the
// same bytes with the same chunking parameters.
type Chunk struct {
	ID   string `json:"chunk_id"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

// IngestResult reports what a single ingestion did. A deduped result implies
// zero pages, zero indexed chunks and no index mutation.
type IngestResult struct {
	DocID         string `json:"doc_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Pages         int    `json:"pages"`
	Deduped       bool   `json:"deduped"`
	Message       string `json:"message,omitempty"`
}
