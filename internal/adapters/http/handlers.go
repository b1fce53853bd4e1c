package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

// multipartOverhead is slack on top of the document ceiling for multipart
// boundaries and metadata fields.
const multipartOverhead = 1 << 20

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	maxBytes := int64(rt.cfg.MaxUploadMB)<<20 + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if ct := fileHeader.Header.Get("Content-Type"); !acceptedUploadType(ct) {
		writeError(w, http.StatusBadRequest, "file must be a PDF")
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable multipart body")
		return
	}

	result, err := rt.ingestor.Ingest(r.Context(), ports.IngestRequest{
		Raw:      raw,
		DocID:    r.FormValue("doc_id"),
		Title:    r.FormValue("title"),
		Source:   r.FormValue("source"),
		Category: r.FormValue("category"),
	})
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordIngest(serviceName, result.Deduped, result.ChunksIndexed, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func acceptedUploadType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	return mediaType == "application/pdf"
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.docs.List(r.Context())
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type askRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k"`
	DocIDs   []string `json:"doc_ids"`
	Mode     string   `json:"mode"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be 'rag' or 'no_rag'")
		return
	}

	start := time.Now()
	answer, err := rt.asker.Ask(r.Context(), req.Question, req.TopK, req.DocIDs, mode)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGModeRequest(serviceName, "ask", string(mode))
		rt.metrics.RecordRAGObservation(serviceName, "ask", len(answer.Citations), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

type summarizeRequest struct {
	DocIDs []string `json:"doc_ids"`
	Style  string   `json:"style"`
	// Query is accepted for contract compatibility; retrieval is driven by
	// the style's fixed search phrase.
	Query string `json:"query"`
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start := time.Now()
	summary, err := rt.summarizer.Summarize(r.Context(), req.DocIDs, domain.SummaryStyle(req.Style))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGModeRequest(serviceName, "summarize", string(domain.ModeRAG))
		rt.metrics.RecordRAGObservation(serviceName, "summarize", len(summary.Citations), time.Since(start))
	}
	writeJSON(w, http.StatusOK, summary)
}
