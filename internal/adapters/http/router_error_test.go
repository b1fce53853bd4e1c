package httpadapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmorozov/guideline-copilot/internal/config"
	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrParse, http.StatusBadRequest},
		{domain.ErrDocumentNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
		{domain.ErrDependency, http.StatusBadGateway},
	}
	for _, tc := range cases {
		err := domain.WrapError(tc.kind, "op", errors.New("cause"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
	if got := mapErrorToHTTPStatus(errors.New("unknown")); got != http.StatusInternalServerError {
		t.Fatalf("unknown error mapped to %d, want 500", got)
	}
}

func TestUploadConflictReturns409(t *testing.T) {
	handler, fakes := newTestHandler(t, config.Config{})
	fakes.ingest.err = domain.WrapError(domain.ErrConflict, "ingest", errors.New("doc_id already registered"))

	body, contentType := pdfUpload(t, "application/pdf", []byte("%PDF-1.7"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestUploadParseFailureReturns400(t *testing.T) {
	handler, fakes := newTestHandler(t, config.Config{})
	fakes.ingest.err = domain.WrapError(domain.ErrParse, "ingest", errors.New("not a pdf"))

	body, contentType := pdfUpload(t, "application/pdf", []byte("garbage"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	handler, fakes := newTestHandler(t, config.Config{})
	fakes.docs.err = domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestAskDependencyFailureReturns502(t *testing.T) {
	handler, fakes := newTestHandler(t, config.Config{})
	fakes.ask.err = domain.WrapError(domain.ErrDependency, "openai.generate", errors.New("bad upstream"))

	res := postJSON(t, handler, "/v1/ask", `{"question":"what is the dose?"}`)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestAskTemporaryFailureReturns503(t *testing.T) {
	handler, fakes := newTestHandler(t, config.Config{})
	fakes.ask.err = domain.WrapError(domain.ErrTemporary, "openai.generate", errors.New("timeout"))

	res := postJSON(t, handler, "/v1/ask", `{"question":"what is the dose?"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
