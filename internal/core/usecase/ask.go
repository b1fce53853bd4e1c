package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
	"github.com/kmorozov/guideline-copilot/internal/core/ports"
)

const (
	defaultTopK = 5
	maxTopK     = 20
)

// AskUseCase answers a question grounded in the retrieved evidence.
type AskUseCase struct {
	retriever retriever
	generator ports.AnswerGenerator
	model     string
}

func NewAskUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	generator ports.AnswerGenerator,
	model string,
) *AskUseCase {
	return &AskUseCase{
		retriever: retriever{embedder: embedder, index: index},
		generator: generator,
		model:     model,
	}
}

func (uc *AskUseCase) Ask(
	ctx context.Context,
	question string,
	topK int,
	docIDs []string,
	mode domain.Mode,
) (*domain.Answer, error) {
	start := time.Now()
	requestID := newRequestID()

	question = strings.TrimSpace(question)
	if len([]rune(question)) < 3 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question must be at least 3 characters"))
	}
	topK, err := clampTopK(topK)
	if err != nil {
		return nil, err
	}

	evidence, err := uc.retriever.retrieve(ctx, question, topK, docIDs, mode)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	answerText, err := uc.generator.Generate(ctx, askSystemPrompt, buildAskUserPrompt(question, evidence))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:      answerText,
		Citations: citationsFor(evidence),
		Meta:      buildMeta(requestID, start, uc.model, PromptVersionAsk),
	}, nil
}

func clampTopK(topK int) (int, error) {
	if topK == 0 {
		return defaultTopK, nil
	}
	if topK < 1 || topK > maxTopK {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("top_k must be in [1,%d]", maxTopK))
	}
	return topK, nil
}
