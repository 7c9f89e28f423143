// Package ingestion handles document loading, structure-aware segmentation,
// and the ingest pipeline that feeds the vector index.
package ingestion

// RawDocument is the decoded form of a source file, owned transiently by the
// ingestion service and discarded after segmentation.
type RawDocument struct {
	Path   string
	Text   string
	Format string
}

// Chunk is a retrieval-sized unit of document text. Metadata holds scalar
// values only (string, int, float, bool or nil); SanitizeMetadata enforces
// that before a chunk reaches the index.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// MarkerKind classifies a detected structural boundary.
type MarkerKind string

const (
	KindSection    MarkerKind = "section"
	KindChapter    MarkerKind = "chapter"
	KindSubsection MarkerKind = "subsection"
	KindArticle    MarkerKind = "article"
)

// StructureMarker is a hierarchical boundary detected in source text. Markers
// are accumulated in document order; ParentPath is the concatenation of the
// enclosing section and chapter labels.
type StructureMarker struct {
	Kind       MarkerKind
	Label      string
	Line       int
	ParentPath string

	// Section and Chapter carry the hierarchy context active at the marker.
	Section string
	Chapter string
}
