package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageSource is the slice of a paginated document the ingestor needs.
type pageSource interface {
	NumPage() int
	PageText(page int) (string, error)
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(num int) (string, error) {
	page := p.r.Page(num)
	if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	return concatPages(pdfPages{r: reader}), nil
}

// concatPages joins the text of every page, skipping pages that fail to
// extract or yield only whitespace. Pages are numbered from 1.
func concatPages(src pageSource) string {
	var b strings.Builder
	for num := 1; num <= src.NumPage(); num++ {
		text, err := src.PageText(num)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
