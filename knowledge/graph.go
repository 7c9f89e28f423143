// Package knowledge mirrors the structural hierarchy of ingested documents
// into neo4j: Document, Part (编), Chapter (章) and Article (条) nodes.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"civil-law-rag/ingestion"
)

type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

// SyncStructure rebuilds the hierarchy below the document node from the
// markers of one ingestion run. Previous structure for the document is
// removed first so re-ingestion never accumulates stale nodes.
func (g *Graph) SyncStructure(ctx context.Context, document string, markers []ingestion.StructureMarker) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {name: $doc})
			SET d.updated_at = datetime()
		`, map[string]any{"doc": document}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {name: $doc})-[:HAS_PART|HAS_CHAPTER|HAS_ARTICLE*1..3]->(n)
			DETACH DELETE n
		`, map[string]any{"doc": document}); err != nil {
			return nil, fmt.Errorf("clear existing structure: %w", err)
		}

		for order, marker := range markers {
			if err := g.syncMarker(ctx, tx, document, order, marker); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync structure for %s: %w", document, err)
	}
	return nil
}

func (g *Graph) syncMarker(ctx context.Context, tx neo4j.ManagedTransaction, document string, order int, marker ingestion.StructureMarker) error {
	params := map[string]any{
		"doc":     document,
		"label":   marker.Label,
		"section": marker.Section,
		"chapter": marker.Chapter,
		"order":   order,
	}

	var query string
	switch marker.Kind {
	case ingestion.KindSection:
		query = `
			MATCH (d:Document {name: $doc})
			MERGE (p:Part {doc: $doc, name: $label})
			SET p.order = $order
			MERGE (d)-[:HAS_PART]->(p)
		`
	case ingestion.KindChapter:
		query = `
			MATCH (d:Document {name: $doc})
			MERGE (c:Chapter {doc: $doc, name: $label, part: $section})
			SET c.order = $order
			WITH d, c
			OPTIONAL MATCH (d)-[:HAS_PART]->(p:Part {doc: $doc, name: $section})
			FOREACH (pp IN CASE WHEN p IS NULL THEN [] ELSE [p] END |
				MERGE (pp)-[:HAS_CHAPTER]->(c))
			FOREACH (_ IN CASE WHEN p IS NULL THEN [1] ELSE [] END |
				MERGE (d)-[:HAS_CHAPTER]->(c))
		`
	case ingestion.KindArticle:
		query = `
			MATCH (d:Document {name: $doc})
			MERGE (a:Article {doc: $doc, name: $label})
			SET a.order = $order, a.chapter = $chapter, a.part = $section
			WITH d, a
			OPTIONAL MATCH (c:Chapter {doc: $doc, name: $chapter})
			FOREACH (cc IN CASE WHEN c IS NULL THEN [] ELSE [c] END |
				MERGE (cc)-[:HAS_ARTICLE]->(a))
			FOREACH (_ IN CASE WHEN c IS NULL THEN [1] ELSE [] END |
				MERGE (d)-[:HAS_ARTICLE]->(a))
		`
	default:
		return nil
	}

	if _, err := tx.Run(ctx, query, params); err != nil {
		return fmt.Errorf("sync %s marker %s: %w", marker.Kind, marker.Label, err)
	}
	return nil
}

// ArticleCount returns the number of article nodes stored for a document.
func (g *Graph) ArticleCount(ctx context.Context, document string) (int64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (:Document {name: $doc})-[:HAS_PART|HAS_CHAPTER|HAS_ARTICLE*1..3]->(a:Article)
			RETURN count(a) AS n
		`, map[string]any{"doc": document})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := record.Get("n")
		return n, nil
	})
	if err != nil {
		return 0, fmt.Errorf("count articles for %s: %w", document, err)
	}
	count, _ := result.(int64)
	return count, nil
}
