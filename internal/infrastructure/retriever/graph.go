package retriever

import (
	"context"
	"fmt"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
)

// SeedSource provides graph seed candidates: a full-text match for open
// queries and the article list of a law for law-scoped ones.
type SeedSource interface {
	FullTextSearcher
	ListArticles(ctx context.Context, lawID string) ([]domain.Article, error)
}

// Graph adapts citation-graph traversal to the retriever contract. It seeds
// itself so the three backends stay independent inside one fan-out: a small
// full-text match first, and when the request is scoped to one law whose
// text never matches the query, that law's own articles. Reached nodes
// score by inverse-distance decay 1/(1+hops).
type Graph struct {
	store     ports.GraphStore
	seeder    SeedSource
	maxHops   int
	seedLimit int
	executor  *resilience.Executor
}

func NewGraph(store ports.GraphStore, seeder SeedSource, maxHops, seedLimit int, executor *resilience.Executor) *Graph {
	if maxHops <= 0 {
		maxHops = 2
	}
	if seedLimit <= 0 {
		seedLimit = 5
	}
	return &Graph{
		store:     store,
		seeder:    seeder,
		maxHops:   maxHops,
		seedLimit: seedLimit,
		executor:  executor,
	}
}

func (g *Graph) Name() string {
	return domain.BackendGraph
}

func (g *Graph) Retrieve(ctx context.Context, req domain.SearchRequest, limit int) ([]domain.Candidate, error) {
	seeds, err := g.findSeeds(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("graph seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	var hits []ports.GraphHit
	err = execute(ctx, g.executor, "graph_traverse", func(callCtx context.Context) error {
		reached, err := g.store.Traverse(callCtx, seeds, g.maxHops, limit)
		if err != nil {
			return err
		}
		hits = reached
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph retrieve: %w", err)
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.Candidate{
			LawID:     hit.LawID,
			ArticleID: hit.ArticleID,
			Content:   hit.Content,
			SourceScores: map[string]float64{
				domain.BackendGraph: 1.0 / float64(1+hit.Hops),
			},
			Metadata: hit.Meta,
		})
	}
	return out, nil
}

func (g *Graph) findSeeds(ctx context.Context, req domain.SearchRequest) ([]string, error) {
	matches, err := g.seeder.SearchFullText(ctx, req.Query, g.seedLimit, req)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(matches))
	seeds := make([]string, 0, len(matches))
	for _, m := range matches {
		key := m.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		seeds = append(seeds, key)
	}
	if len(seeds) > 0 || req.LawID == "" {
		return seeds, nil
	}

	// Law-scoped query with no lexical overlap: traverse outward from the
	// scoped law's own articles instead of returning nothing.
	articles, err := g.seeder.ListArticles(ctx, req.LawID)
	if err != nil {
		return nil, err
	}
	for _, a := range articles {
		if len(seeds) == g.seedLimit {
			break
		}
		seeds = append(seeds, a.LawID+"#"+a.Number)
	}
	return seeds, nil
}
