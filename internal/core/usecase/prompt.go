package usecase

import (
	"fmt"
	"strings"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

const (
	PromptVersionAsk       = "ask_v1"
	PromptVersionSummarize = "summarize_v1"
)

const askSystemPrompt = `You are a clinical guideline assistant.
Answer strictly from the provided guideline excerpts. Cite evidence inline
using the bracketed numbers, e.g. [1]. If the excerpts do not contain the
answer, say so directly instead of guessing. Do not invent thresholds,
dosages, or recommendations that are not in the excerpts.`

const summarizeSystemPrompt = `You are a clinical guideline assistant.
Write the requested summary strictly from the provided guideline excerpts.
Cite evidence inline using the bracketed numbers, e.g. [1]. If the excerpts
are insufficient for a section, say so rather than inventing content.`

// styleTemplate pairs the writer-facing instruction with the fixed retrieval
// search phrase for that summary type. What to search for is deliberately
// decoupled from how to instruct the writer.
type styleTemplate struct {
	instruction  string
	searchPhrase string
}

var styleTemplates = map[domain.SummaryStyle]styleTemplate{
	domain.StyleTLDR: {
		instruction: `Write a TL;DR summary as at most 10 bullet points.
Cover the guideline's purpose, its key recommendations, and any warnings.`,
		searchPhrase: "purpose key recommendations warnings overview summary",
	},
	domain.StyleKeySteps: {
		instruction: `Write the key steps as 6-12 ordered bullet points.
Preserve clinical order. Include numeric thresholds, doses, and timing
windows whenever the excerpts state them.`,
		searchPhrase: "steps procedure protocol thresholds timing doses sequence",
	},
	domain.StyleContraindications: {
		instruction: `List contraindications and cautions as themed bullet
groups. Phrase each bullet with "Do not", "Avoid", or "Use caution".
Group related items under a short theme heading.`,
		searchPhrase: "contraindications do not avoid use caution warnings risks adverse",
	},
	domain.StyleEligibility: {
		instruction: `Produce two labeled bullet lists: "Eligible if" and
"Not eligible if". Include numeric thresholds (age, time windows, lab
values) whenever the excerpts state them.`,
		searchPhrase: "eligibility criteria inclusion exclusion thresholds age time window",
	},
}

// styleFor resolves a style, falling back to tldr for anything unrecognized.
func styleFor(style domain.SummaryStyle) (domain.SummaryStyle, styleTemplate) {
	if tpl, ok := styleTemplates[style]; ok {
		return style, tpl
	}
	return domain.StyleTLDR, styleTemplates[domain.StyleTLDR]
}

// buildContext renders ranked evidence as numbered, source-labeled blocks.
// Numbering starts at 1 in final ranked order; empty evidence yields "".
func buildContext(evidence []domain.RetrievedEvidence) string {
	if len(evidence) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(evidence))
	for i, ev := range evidence {
		blocks = append(blocks, fmt.Sprintf("[%d] (%s p.%d)\n%s", i+1, ev.Meta.DocID, ev.Meta.Page, ev.Text))
	}
	return strings.Join(blocks, "\n\n")
}

func buildAskUserPrompt(question string, evidence []domain.RetrievedEvidence) string {
	return fmt.Sprintf("Question: %s\n\nGuideline excerpts:\n%s\n", question, buildContext(evidence))
}

func buildSummarizeUserPrompt(tpl styleTemplate, evidence []domain.RetrievedEvidence) string {
	return fmt.Sprintf("%s\n\nGuideline excerpts:\n%s\n", tpl.instruction, buildContext(evidence))
}

func citationsFor(evidence []domain.RetrievedEvidence) []domain.Citation {
	out := make([]domain.Citation, 0, len(evidence))
	for _, ev := range evidence {
		out = append(out, domain.NewCitation(ev))
	}
	return out
}
