package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

func TestUpsertChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var upsertPoints []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines/points":
			var body struct {
				Points []map[string]any `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			upsertPoints = body.Points
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", Options{})
	doc := &domain.Document{ID: "doc-1", Title: "Stroke"}
	chunks := []domain.Chunk{
		{ID: "p1_c0", Page: 1, Text: "a"},
		{ID: "p1_c1", Page: 1, Text: "b"},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.UpsertChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("first UpsertChunks() error = %v", err)
	}
	if err := client.UpsertChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("second UpsertChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(upsertPoints) != 2 {
		t.Fatalf("expected 2 points, got %d", len(upsertPoints))
	}
	if got := upsertPoints[0]["id"]; got != PointID("doc-1", "p1_c0") {
		t.Fatalf("expected deterministic point id, got %v", got)
	}
}

func TestPointIDStableAcrossReingestion(t *testing.T) {
	if PointID("doc-1", "p1_c0") != PointID("doc-1", "p1_c0") {
		t.Fatalf("expected stable point id")
	}
	if PointID("doc-1", "p1_c0") == PointID("doc-2", "p1_c0") {
		t.Fatalf("expected doc scope in point id")
	}
}

func TestQueryScopedSendsDocIDFilterAndConvertsDistance(t *testing.T) {
	var gotFilter map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/guidelines/points/search" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotFilter, _ = body["filter"].(map[string]any)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"score": 0.75,
					"payload": map[string]any{
						"doc_id":   "doc-1",
						"chunk_id": "p1_c0",
						"page":     1,
						"text":     "aspirin",
					},
				},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", Options{})
	out, err := client.Query(context.Background(), []float32{0.1, 0.2}, 5, "doc-1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if gotFilter == nil {
		t.Fatalf("expected doc_id filter for scoped query")
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(out))
	}
	if out[0].Meta.DocID != "doc-1" || out[0].Meta.ChunkID != "p1_c0" || out[0].Meta.Page != 1 {
		t.Fatalf("unexpected meta: %+v", out[0].Meta)
	}
	if got := out[0].Distance; got != 0.25 {
		t.Fatalf("expected distance 0.25, got %v", got)
	}
}

func TestQueryUnscopedOmitsFilter(t *testing.T) {
	var hadFilter bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, hadFilter = body["filter"]
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []map[string]any{}})
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", Options{})
	if _, err := client.Query(context.Background(), []float32{0.1}, 3, ""); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if hadFilter {
		t.Fatalf("unscoped query must not send a filter")
	}
}

func TestQueryServerErrorIsDependencyKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", Options{})
	_, err := client.Query(context.Background(), []float32{0.1}, 3, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDependency) {
		t.Fatalf("expected ErrDependency kind, got %v", err)
	}
}

func TestScoreToDistanceClampsNegative(t *testing.T) {
	if got := scoreToDistance(1.5); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
	if got := scoreToDistance(-0.5); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}
