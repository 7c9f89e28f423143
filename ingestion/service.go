package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"civil-law-rag/config"
	"civil-law-rag/embeddings"
	"civil-law-rag/index"
)

// Indexer is the write surface of the vector index the pipeline feeds.
type Indexer interface {
	Upsert(ctx context.Context, entries []index.Entry) (int64, error)
}

// DocumentStore records per-file bookkeeping (path and content hash) so a
// later run can tell what it has seen. DocumentSHA returns "" for a path
// that was never recorded.
type DocumentStore interface {
	RecordDocument(ctx context.Context, path, title, sha string) error
	DocumentSHA(ctx context.Context, path string) (string, error)
}

// GraphSyncer mirrors document structure into the knowledge graph. It is
// optional; a nil syncer disables the mirror.
type GraphSyncer interface {
	SyncStructure(ctx context.Context, document string, markers []StructureMarker) error
}

// Service runs the ingestion pipeline: load, segment, embed, index.
type Service struct {
	loaders    *LoaderRegistry
	structural *StructuralSegmenter
	generic    *GenericSegmenter
	strategy   string

	embedder  embeddings.Embedder
	indexer   Indexer
	documents DocumentStore
	graph     GraphSyncer
	force     bool

	embedBatchSize int
	logger         *log.Logger
}

func NewService(cfg config.Config, embedder embeddings.Embedder, indexer Indexer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	generic := NewGenericSegmenter(cfg.Split.ChunkSize, cfg.Split.ChunkOverlap)
	return &Service{
		loaders:        NewLoaderRegistry(),
		structural:     NewStructuralSegmenter(cfg.Split.MinChunkLen, generic),
		generic:        generic,
		strategy:       cfg.Split.Strategy,
		embedder:       embedder,
		indexer:        indexer,
		embedBatchSize: cfg.Index.BatchSize,
		logger:         logger,
	}
}

// WithDocumentStore enables per-file bookkeeping.
func (s *Service) WithDocumentStore(store DocumentStore) *Service {
	s.documents = store
	return s
}

// WithGraph enables the structure mirror.
func (s *Service) WithGraph(graph GraphSyncer) *Service {
	s.graph = graph
	return s
}

// Force re-ingests files even when their recorded content hash is unchanged.
func (s *Service) Force(force bool) *Service {
	s.force = force
	return s
}

// OnRetry returns a callback suitable for the embedding connect loop that
// feeds the run's retry counter.
func (s *Service) OnRetry(stats *Stats) func() {
	return func() { stats.RetryCount++ }
}

// IngestDirectory processes every supported file under dir. A file that fails
// to load or segment is counted and skipped; the run continues. All surviving
// chunks are embedded in batches and written to the index in one upsert, so a
// failed run never leaves a half-written fresh index behind a successful
// return.
func (s *Service) IngestDirectory(ctx context.Context, dir string) (*Stats, error) {
	stats := NewStats()

	files, err := s.listFiles(dir)
	if err != nil {
		return stats, err
	}
	stats.TotalFiles = len(files)
	if len(files) == 0 {
		stats.Finish()
		return stats, fmt.Errorf("no supported files found in %s", dir)
	}

	allChunks := make([]Chunk, 0)
	for _, path := range files {
		chunks, skipped, err := s.ingestFile(ctx, path, stats)
		if err != nil {
			stats.FailedFiles++
			s.logger.Printf("skipping %s: %v", filepath.Base(path), err)
			continue
		}
		if skipped {
			stats.SkippedFiles++
			s.logger.Printf("skipping %s: content unchanged since last run", filepath.Base(path))
			continue
		}
		stats.ProcessedFiles++
		stats.TotalChunks += len(chunks)
		allChunks = append(allChunks, chunks...)
	}

	if len(allChunks) == 0 {
		stats.Finish()
		if stats.SkippedFiles > 0 && stats.FailedFiles == 0 {
			s.logger.Printf("all %d files unchanged, index left untouched", stats.SkippedFiles)
			return stats, nil
		}
		return stats, fmt.Errorf("no chunks produced from %d files", stats.TotalFiles)
	}

	entries, err := s.embedChunks(ctx, allChunks)
	if err != nil {
		stats.Finish()
		return stats, err
	}

	count, err := s.indexer.Upsert(ctx, entries)
	if err != nil {
		if errors.Is(err, index.ErrCountMismatch) {
			s.logger.Printf("warning: %v", err)
		} else {
			stats.Finish()
			return stats, fmt.Errorf("write index: %w", err)
		}
	}
	s.logger.Printf("index now holds %d chunks", count)

	stats.Finish()
	return stats, nil
}

func (s *Service) ingestFile(ctx context.Context, path string, stats *Stats) (chunks []Chunk, skipped bool, err error) {
	doc, err := s.loaders.Load(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("load: %w", err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, false, fmt.Errorf("document is empty")
	}

	sum := sha256.Sum256([]byte(doc.Text))
	sha := hex.EncodeToString(sum[:])
	if s.documents != nil && !s.force {
		prev, err := s.documents.DocumentSHA(ctx, path)
		if err != nil {
			s.logger.Printf("could not look up %s, re-ingesting: %v", filepath.Base(path), err)
		} else if prev == sha {
			return nil, true, nil
		}
	}

	base := map[string]any{
		"source":    path,
		"filename":  filepath.Base(path),
		"extension": doc.Format,
	}

	var markers []StructureMarker
	if s.strategy == "generic" {
		chunks = s.generic.Segment(doc.Text, base)
	} else {
		chunks, markers = s.structural.Segment(doc.Text, base)
	}
	if len(chunks) == 0 {
		return nil, false, fmt.Errorf("no chunks produced")
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s_%04d", stem, i)
		chunks[i].Metadata["chunk_index"] = i
		chunks[i].Metadata["total_chunks"] = len(chunks)
	}

	for _, m := range markers {
		switch m.Kind {
		case KindArticle:
			stats.ArticlesFound++
		case KindSection:
			stats.AddSection(m.Label)
		}
	}

	if s.documents != nil {
		if err := s.documents.RecordDocument(ctx, path, stem, sha); err != nil {
			s.logger.Printf("could not record document %s: %v", stem, err)
		}
	}

	if s.graph != nil && len(markers) > 0 {
		if err := s.graph.SyncStructure(ctx, stem, markers); err != nil {
			s.logger.Printf("graph sync failed for %s: %v", stem, err)
		}
	}

	s.logger.Printf("segmented %s into %d chunks", filepath.Base(path), len(chunks))
	return chunks, false, nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []Chunk) ([]index.Entry, error) {
	entries := make([]index.Entry, 0, len(chunks))

	for start := 0; start < len(chunks); start += s.embedBatchSize {
		end := start + s.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}

		for i, c := range batch {
			entries = append(entries, index.Entry{
				ID:        c.ID,
				Text:      c.Text,
				Metadata:  c.Metadata,
				Embedding: vectors[i],
			})
		}
	}

	return entries, nil
}

func (s *Service) listFiles(dir string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.loaders.Supported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
