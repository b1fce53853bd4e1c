package httpadapter

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/kmorozov/guideline-copilot/internal/config"
	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

type ingestFake struct {
	result *domain.IngestResult
	err    error
	gotReq ports.IngestRequest
	calls  int
}

func (f *ingestFake) Ingest(_ context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	f.calls++
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type askFake struct {
	answer      *domain.Answer
	err         error
	gotQuestion string
	gotTopK     int
	gotDocIDs   []string
	gotMode     domain.Mode
	calls       int
}

func (f *askFake) Ask(_ context.Context, question string, topK int, docIDs []string, mode domain.Mode) (*domain.Answer, error) {
	f.calls++
	f.gotQuestion = question
	f.gotTopK = topK
	f.gotDocIDs = docIDs
	f.gotMode = mode
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type summarizeFake struct {
	summary   *domain.Summary
	err       error
	gotDocIDs []string
	gotStyle  domain.SummaryStyle
}

func (f *summarizeFake) Summarize(_ context.Context, docIDs []string, style domain.SummaryStyle) (*domain.Summary, error) {
	f.gotDocIDs = docIDs
	f.gotStyle = style
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type docsFake struct {
	doc  *domain.Document
	list []domain.Document
	err  error
}

func (f *docsFake) Get(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *docsFake) List(context.Context) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type routerFakes struct {
	ingest    *ingestFake
	ask       *askFake
	summarize *summarizeFake
	docs      *docsFake
}

func newTestHandler(t *testing.T, cfg config.Config) (http.Handler, *routerFakes) {
	t.Helper()
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 30
	}
	fakes := &routerFakes{
		ingest: &ingestFake{result: &domain.IngestResult{
			DocID:         "doc-1",
			ChunksIndexed: 3,
			Pages:         2,
		}},
		ask: &askFake{answer: &domain.Answer{
			Text: "grounded answer [1]",
			Citations: []domain.Citation{
				{DocID: "doc-1", Page: 1, ChunkID: "p1_c0", Snippet: "text", Score: 0.8},
			},
			Meta: domain.Meta{RequestID: "req_0011223344", Model: "gpt-4o-mini", PromptVersion: "ask_v1"},
		}},
		summarize: &summarizeFake{summary: &domain.Summary{
			Text: "- bullet one [1]",
			Meta: domain.Meta{RequestID: "req_5566778899", Model: "gpt-4o-mini", PromptVersion: "summarize_v1"},
		}},
		docs: &docsFake{doc: &domain.Document{ID: "doc-1", Title: "Stroke protocol"}},
	}
	handler := NewRouter(cfg, fakes.ingest, fakes.ask, fakes.summarize, fakes.docs, nil).Handler()
	return handler, fakes
}

// pdfUpload builds a multipart body with one "file" part and optional extra
// form fields.
func pdfUpload(t *testing.T, contentType string, payload []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="guideline.pdf"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s) error = %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}
