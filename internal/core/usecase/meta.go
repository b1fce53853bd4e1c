package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

func newRequestID() string {
	id := uuid.New()
	return fmt.Sprintf("req_%x", id[:5])
}

func buildMeta(requestID string, start time.Time, model, promptVersion string) domain.Meta {
	latency := time.Since(start).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	return domain.Meta{
		RequestID:     requestID,
		LatencyMS:     latency,
		Model:         model,
		PromptVersion: promptVersion,
	}
}
