package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kmorozov/guideline-copilot/internal/config"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
	"github.com/kmorozov/guideline-copilot/internal/core/usecase"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/chunking"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/extractor/pdfpages"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/llm/openai"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/queue/nats"
	memoryregistry "github.com/kmorozov/guideline-copilot/internal/infrastructure/registry/memory"
	postgresregistry "github.com/kmorozov/guideline-copilot/internal/infrastructure/registry/postgres"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/resilience"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/storage/localfs"
	"github.com/kmorozov/guideline-copilot/internal/infrastructure/vector/qdrant"
	"github.com/kmorozov/guideline-copilot/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	IngestUC    ports.DocumentIngestor
	AskUC       ports.AskService
	SummarizeUC ports.SummarizeService
	Docs        ports.DocumentReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var (
		registry ports.DocumentRegistry
		closers  []func()
	)
	switch cfg.RegistryBackend {
	case "memory":
		registry = memoryregistry.New()
	default:
		db, err := postgresregistry.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := postgresregistry.NewRegistry(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		registry = pg
		closers = append(closers, func() { _ = db.Close() })
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	// Ingestion events are best-effort: a dead broker degrades to log
	// warnings instead of blocking startup or uploads.
	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			slog.Warn("nats unavailable, ingest events disabled", "error", err)
		} else {
			events = publisher
			closers = append(closers, publisher.Close)
		}
	}

	openaiClient := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, openai.Options{
		BaseURL:            cfg.OpenAIBaseURL,
		ResilienceExecutor: executor,
	})
	embedder := openai.NewEmbedder(openaiClient)
	generator := openai.NewGenerator(openaiClient)

	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		ResilienceExecutor: executor,
	})
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdfpages.New()

	ingestUC := usecase.NewIngestUseCase(
		registry,
		storage,
		extractor,
		chunker,
		embedder,
		index,
		events,
		int64(cfg.MaxUploadMB)<<20,
	)
	askUC := usecase.NewAskUseCase(embedder, index, generator, cfg.OpenAIChatModel)
	summarizeUC := usecase.NewSummarizeUseCase(embedder, index, generator, cfg.OpenAIChatModel, cfg.RAGTopK)

	return &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics("api"),

		IngestUC:    ingestUC,
		AskUC:       askUC,
		SummarizeUC: summarizeUC,
		Docs:        registry,

		closeFn: func() { runClosers(closers) },
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
