package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentLoader decodes one source file format into plain text.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (RawDocument, error)
}

// LoaderRegistry routes files to a loader by extension. The mapping is fixed
// at construction; unknown extensions are reported, not silently skipped.
type LoaderRegistry struct {
	loaders map[string]DocumentLoader
}

// NewLoaderRegistry wires the built-in loaders for .txt, .md, .csv and .pdf.
func NewLoaderRegistry() *LoaderRegistry {
	text := &textLoader{}
	return &LoaderRegistry{
		loaders: map[string]DocumentLoader{
			".txt": text,
			".md":  text,
			".csv": &csvLoader{},
			".pdf": newPDFLoader(),
		},
	}
}

// Supported reports whether the registry has a loader for the file.
func (r *LoaderRegistry) Supported(path string) bool {
	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load decodes the file with the loader registered for its extension.
func (r *LoaderRegistry) Load(ctx context.Context, path string) (RawDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := r.loaders[ext]
	if !ok {
		return RawDocument{}, fmt.Errorf("unsupported file format: %s", ext)
	}
	return loader.Load(ctx, path)
}

type textLoader struct{}

func (l *textLoader) Load(_ context.Context, path string) (RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("failed to read text file: %w", err)
	}
	return RawDocument{
		Path:   path,
		Text:   string(data),
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}, nil
}

// csvLoader renders each row as "header: value" pairs so tabular sources stay
// searchable as prose.
type csvLoader struct{}

func (l *csvLoader) Load(_ context.Context, path string) (RawDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return RawDocument{}, fmt.Errorf("failed to parse csv file: %w", err)
	}
	if len(records) == 0 {
		return RawDocument{Path: path, Format: "csv"}, nil
	}

	headers := records[0]
	var sb strings.Builder
	for _, row := range records[1:] {
		sb.WriteString(formatCSVRow(headers, row))
		sb.WriteString("\n")
	}
	return RawDocument{Path: path, Text: sb.String(), Format: "csv"}, nil
}

func formatCSVRow(headers, row []string) string {
	parts := make([]string, 0, len(row))
	for i, field := range row {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimSpace(headers[i]), field))
		} else {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, ", ")
}
