package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfStrategy is one way of pulling text out of a PDF. Strategies are tried
// in order; the first one that yields non-empty text wins.
type pdfStrategy struct {
	name    string
	extract func(path string) (string, error)
}

type pdfLoader struct {
	strategies []pdfStrategy
}

func newPDFLoader() *pdfLoader {
	return &pdfLoader{
		strategies: []pdfStrategy{
			{name: "plaintext", extract: extractPlainText},
			{name: "per-page", extract: extractPerPage},
		},
	}
}

func (l *pdfLoader) Load(_ context.Context, path string) (RawDocument, error) {
	var lastErr error
	for _, s := range l.strategies {
		text, err := s.extract(path)
		if err != nil {
			lastErr = fmt.Errorf("%s extraction: %w", s.name, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			lastErr = fmt.Errorf("%s extraction produced no text", s.name)
			continue
		}
		return RawDocument{Path: path, Text: text, Format: "pdf"}, nil
	}
	return RawDocument{}, fmt.Errorf("failed to extract text from %s: %w", filepath.Base(path), lastErr)
}

func extractPlainText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractPerPage walks pages individually so one malformed page does not sink
// the whole document.
func extractPerPage(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
