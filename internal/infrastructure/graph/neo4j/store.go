package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

// Store maintains the law citation graph: Law and Article nodes, HAS_ARTICLE
// and CITES relationships. Traversal distance is the graph backend's raw
// signal; scoring stays in the retrieval adapter.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// MergeArticles upserts one law's nodes and re-materializes its outgoing
// citation edges. Cited articles not ingested yet get stub nodes that are
// filled in when their own law arrives.
func (s *Store) MergeArticles(ctx context.Context, law *domain.Law, articles []domain.Article) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	rows := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		refs := make([]map[string]any, 0, len(a.References))
		for _, key := range a.References {
			lawID, articleID := splitKey(key)
			if lawID == "" {
				continue
			}
			refs = append(refs, map[string]any{"law_id": lawID, "number": articleID})
		}
		rows = append(rows, map[string]any{
			"number":         a.Number,
			"caption":        a.Caption,
			"content":        a.Content,
			"chapter":        a.Meta.Chapter,
			"section":        a.Meta.Section,
			"paragraph":      a.Meta.Paragraph,
			"effective_date": a.Meta.EffectiveDate,
			"refs":           refs,
		})
	}

	const query = `
MERGE (l:Law {id: $law_id})
SET l.title = $title, l.category = $category
WITH l
UNWIND $articles AS art
MERGE (a:Article {law_id: $law_id, number: art.number})
SET a.caption = art.caption,
    a.content = art.content,
    a.chapter = art.chapter,
    a.section = art.section,
    a.paragraph = art.paragraph,
    a.effective_date = art.effective_date
MERGE (l)-[:HAS_ARTICLE]->(a)
WITH a, art
OPTIONAL MATCH (a)-[old:CITES]->()
DELETE old
WITH a, art
FOREACH (ref IN art.refs |
	MERGE (t:Article {law_id: ref.law_id, number: ref.number})
	MERGE (a)-[:CITES]->(t)
)`

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"law_id":   law.ID,
			"title":    law.Title,
			"category": law.Category,
			"articles": rows,
		})
	})
	if err != nil {
		return fmt.Errorf("merge citation graph for %s: %w", law.ID, err)
	}
	return nil
}

// Traverse follows CITES edges from the seed passages up to maxHops and
// returns each reached node once with its minimum hop distance.
func (s *Store) Traverse(ctx context.Context, seeds []string, maxHops, limit int) ([]ports.GraphHit, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if maxHops <= 0 {
		maxHops = 2
	}
	if limit <= 0 {
		limit = 30
	}

	seedRows := make([]map[string]any, 0, len(seeds))
	for _, key := range seeds {
		lawID, articleID := splitKey(key)
		if lawID == "" {
			continue
		}
		seedRows = append(seedRows, map[string]any{"law_id": lawID, "number": articleID})
	}
	if len(seedRows) == 0 {
		return nil, nil
	}

	// Variable-length bounds cannot be parameterized in Cypher; maxHops is a
	// validated small integer.
	query := fmt.Sprintf(`
UNWIND $seeds AS seed
MATCH (s:Article {law_id: seed.law_id, number: seed.number})
MATCH path = (s)-[:CITES*1..%d]-(t:Article)
WHERE t <> s AND t.content IS NOT NULL
WITH t, min(length(path)) AS hops
RETURN t.law_id AS law_id,
       t.number AS number,
       t.content AS content,
       t.chapter AS chapter,
       t.section AS section,
       t.paragraph AS paragraph,
       t.effective_date AS effective_date,
       hops
ORDER BY hops ASC, law_id ASC, number ASC
LIMIT $limit`, maxHops)

	session := s.session(ctx)
	defer session.Close(ctx)

	hits, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]ports.GraphHit, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"seeds": seedRows,
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}

		var hits []ports.GraphHit
		for result.Next(ctx) {
			record := result.Record()
			hit := ports.GraphHit{
				LawID:     stringValue(record, "law_id"),
				ArticleID: stringValue(record, "number"),
				Content:   stringValue(record, "content"),
				Meta: domain.ArticleMeta{
					Chapter:       stringValue(record, "chapter"),
					Section:       stringValue(record, "section"),
					Paragraph:     stringValue(record, "paragraph"),
					EffectiveDate: stringValue(record, "effective_date"),
				},
			}
			if hops, ok := record.Get("hops"); ok {
				if n, ok := hops.(int64); ok {
					hit.Hops = int(n)
				}
			}
			hits = append(hits, hit)
		}
		return hits, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph traversal: %w", err)
	}
	return hits, nil
}

func splitKey(key string) (lawID, articleID string) {
	lawID, articleID, _ = strings.Cut(key, "#")
	return lawID, articleID
}

func stringValue(record *neo4j.Record, field string) string {
	v, ok := record.Get(field)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
