package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/resilience"
)

// Client talks to the OpenAI REST API (or any compatible server) for both
// embeddings and chat completions.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL            string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(apiKey, chatModel, embedModel string, options Options) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) ChatModel() string { return c.chatModel }

func (c *Client) requireKey(operation string) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return domain.WrapError(domain.ErrDependency, operation, fmt.Errorf("api key is not configured"))
	}
	return nil
}

// Embedder maps texts to vectors via the embeddings endpoint.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.client.requireKey("embed"); err != nil {
		return nil, err
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.call(ctx, "/v1/embeddings", request, &response, "embed"); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(response.Data))
	for _, d := range response.Data {
		vectors = append(vectors, d.Embedding)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrDependency,
			"embed",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrDependency, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

// Generator produces prose from a composed system+user prompt pair.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	if err := g.client.requireKey("generate"); err != nil {
		return "", err
	}

	request := map[string]any{
		"model": g.client.chatModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := g.client.call(ctx, "/v1/chat/completions", request, &response, "generate"); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrDependency, "generate", fmt.Errorf("empty choices"))
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) call(ctx context.Context, path string, payload, out any, operation string) error {
	do := func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai."+operation, do, classifyOpenAIError)
	} else {
		err = do(ctx)
	}
	if err != nil {
		return wrapDependency(operation, err)
	}
	return nil
}
