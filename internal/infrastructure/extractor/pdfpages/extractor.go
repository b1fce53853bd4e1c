package pdfpages

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// Extractor reads page text out of raw PDF bytes. Page numbers are 1-based
// and follow document order; a page that yields no text is still emitted so
// numbering stays aligned with the source document.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) ExtractPages(ctx context.Context, raw []byte) (pages []domain.Page, err error) {
	// The pdf library panics on some malformed inputs; a broken upload must
	// surface as an ErrParse kind, not kill the process.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.WrapError(domain.ErrParse, "extract pages", fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrParse, "extract pages", err)
	}

	total := reader.NumPage()
	pages = make([]domain.Page, 0, total)
	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(num)
		text := ""
		if !page.V.IsNull() {
			extracted, err := page.GetPlainText(nil)
			if err != nil {
				return nil, domain.WrapError(domain.ErrParse, fmt.Sprintf("extract page %d", num), err)
			}
			text = extracted
		}
		pages = append(pages, domain.Page{
			Number: num,
			Text:   strings.TrimSpace(text),
		})
	}
	return pages, nil
}
