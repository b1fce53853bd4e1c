package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

// SummarizeUseCase produces a style-specific grounded summary. Retrieval uses
// the style's fixed search phrase, not a user question.
type SummarizeUseCase struct {
	retriever retriever
	generator ports.AnswerGenerator
	model     string
	topK      int
}

func NewSummarizeUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	generator ports.AnswerGenerator,
	model string,
	topK int,
) *SummarizeUseCase {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &SummarizeUseCase{
		retriever: retriever{embedder: embedder, index: index},
		generator: generator,
		model:     model,
		topK:      topK,
	}
}

func (uc *SummarizeUseCase) Summarize(
	ctx context.Context,
	docIDs []string,
	style domain.SummaryStyle,
) (*domain.Summary, error) {
	start := time.Now()
	requestID := newRequestID()

	_, tpl := styleFor(style)

	evidence, err := uc.retriever.retrieve(ctx, tpl.searchPhrase, uc.topK, docIDs, domain.ModeRAG)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	summaryText, err := uc.generator.Generate(ctx, summarizeSystemPrompt, buildSummarizeUserPrompt(tpl, evidence))
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	return &domain.Summary{
		Text:      summaryText,
		Citations: citationsFor(evidence),
		Meta:      buildMeta(requestID, start, uc.model, PromptVersionSummarize),
	}, nil
}
