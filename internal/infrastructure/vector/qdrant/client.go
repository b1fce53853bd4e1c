package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/resilience"
)

// pointNamespace fixes the UUIDv5 namespace for chunk point ids, so the same
// doc_id:chunk_id always maps to the same point and upserts stay idempotent.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Client stores chunk vectors in one qdrant collection shared by every
// document; scoped queries filter on the doc_id payload field.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// PointID derives the deterministic point id for one indexed chunk.
func PointID(docID, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID+":"+chunkID)).String()
}

func (c *Client) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return wrapDependency("upsert", err)
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:     PointID(doc.ID, chunk.ID),
			Vector: vectors[i],
			Payload: map[string]any{
				"doc_id":   doc.ID,
				"chunk_id": chunk.ID,
				"page":     chunk.Page,
				"title":    doc.Title,
				"source":   doc.Source,
				"category": doc.Category,
				"text":     chunk.Text,
			},
		})
	}

	do := func(callCtx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
		return c.send(callCtx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
	}
	return wrapDependency("upsert", c.execute(ctx, "qdrant.upsert", do))
}

func (c *Client) Query(ctx context.Context, queryVector []float32, topK int, docID string) ([]domain.RetrievedEvidence, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
	}
	if docID != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "doc_id",
					"match": map[string]any{
						"value": docID,
					},
				},
			},
		}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	do := func(callCtx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
		return c.send(callCtx, http.MethodPost, url, reqBody, &searchResp, "search")
	}
	if err := c.execute(ctx, "qdrant.search", do); err != nil {
		return nil, wrapDependency("search", err)
	}

	out := make([]domain.RetrievedEvidence, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedEvidence{
			Text: payloadString(r.Payload, "text"),
			Meta: domain.EvidenceMeta{
				DocID:    payloadString(r.Payload, "doc_id"),
				ChunkID:  payloadString(r.Payload, "chunk_id"),
				Page:     payloadInt(r.Payload, "page"),
				Title:    payloadString(r.Payload, "title"),
				Source:   payloadString(r.Payload, "source"),
				Category: payloadString(r.Payload, "category"),
			},
			Distance: scoreToDistance(r.Score),
		})
	}
	return out, nil
}

// scoreToDistance converts qdrant's cosine similarity (higher is better) into
// the non-negative distance contract (smaller is better).
func scoreToDistance(score float64) float64 {
	distance := 1.0 - score
	if distance < 0 {
		return 0
	}
	return distance
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := c.newRequest(ctx, http.MethodPut, url, reqBody, "ensure collection")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 when it already exists.
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		return readStatusError("ensure collection", resp)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) execute(ctx context.Context, operation string, do func(context.Context) error) error {
	if c.executor != nil {
		return c.executor.Execute(ctx, operation, do, classifyQdrantError)
	}
	return do(ctx)
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload any, operation string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) send(ctx context.Context, method, url string, payload, out any, operation string) error {
	req, err := c.newRequest(ctx, method, url, payload, operation)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readStatusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func readStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
