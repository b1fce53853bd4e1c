package domain

// Mode toggles between evidence-grounded and evidence-free answering.
type Mode string

const (
	ModeRAG   Mode = "rag"
	ModeNoRAG Mode = "no_rag"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(raw) {
	case ModeRAG, ModeNoRAG:
		return Mode(raw), true
	case "":
		return ModeRAG, true
	default:
		return "", false
	}
}

// SummaryStyle is the closed enumeration of summary instruction templates.
type SummaryStyle string

const (
	StyleTLDR              SummaryStyle = "tldr"
	StyleKeySteps          SummaryStyle = "key_steps"
	StyleContraindications SummaryStyle = "contraindications"
	StyleEligibility       SummaryStyle = "eligibility"
)

// EvidenceMeta mirrors the metadata stored alongside every indexed chunk.
type EvidenceMeta struct {
	DocID    string `json:"doc_id"`
	ChunkID  string `json:"chunk_id"`
	Page     int    `json:"page"`
	Title    string `json:"title,omitempty"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
}

// RetrievedEvidence is one nearest-neighbor hit. Distance comes straight from
// the vector index: non-negative, unbounded, smaller is more relevant.
type RetrievedEvidence struct {
	Text     string
	Meta     EvidenceMeta
	Distance float64
}

// Citation traces one claim back to a source page. Derived 1:1 from
// RetrievedEvidence at response-composition time.
type Citation struct {
	DocID   string  `json:"doc_id"`
	Page    int     `json:"page"`
	ChunkID string  `json:"chunk_id"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SnippetMaxLen bounds the displayed citation text.
const SnippetMaxLen = 350

// NewCitation converts a retrieval hit into its display form.
func NewCitation(ev RetrievedEvidence) Citation {
	snippet := ev.Text
	if runes := []rune(snippet); len(runes) > SnippetMaxLen {
		snippet = string(runes[:SnippetMaxLen])
	}
	return Citation{
		DocID:   ev.Meta.DocID,
		Page:    ev.Meta.Page,
		ChunkID: ev.Meta.ChunkID,
		Snippet: snippet,
		Score:   NormalizeScore(ev.Distance),
	}
}

// Meta is attached to every ask/summarize response.
type Meta struct {
	RequestID     string `json:"request_id"`
	LatencyMS     int64  `json:"latency_ms"`
	Model         string `json:"model"`
	PromptVersion string `json:"prompt_version"`
}

// Answer is the grounded output of the ask pipeline.
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Meta      Meta       `json:"meta"`
}

// Summary is the grounded output of the summarize pipeline.
type Summary struct {
	Text      string     `json:"summary"`
	Citations []Citation `json:"citations"`
	Meta      Meta       `json:"meta"`
}
