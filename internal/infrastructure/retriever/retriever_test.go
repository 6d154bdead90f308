package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

type searcherFake struct {
	candidates   []domain.Candidate
	articles     []domain.Article
	err          error
	gotQuery     string
	gotLimit     int
	gotListedLaw string
}

func (f *searcherFake) SearchFullText(_ context.Context, query string, limit int, _ domain.SearchRequest) ([]domain.Candidate, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.candidates, f.err
}

func (f *searcherFake) ListArticles(_ context.Context, lawID string) ([]domain.Article, error) {
	f.gotListedLaw = lawID
	return f.articles, nil
}

type embedderFake struct {
	vector []float32
	err    error
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

type indexFake struct {
	candidates []domain.Candidate
	err        error
	gotVector  []float32
}

func (f *indexFake) IndexArticles(context.Context, *domain.Law, []domain.Article, [][]float32) error {
	return nil
}

func (f *indexFake) Nearest(_ context.Context, vector []float32, _ int, _ domain.SearchRequest) ([]domain.Candidate, error) {
	f.gotVector = vector
	return f.candidates, f.err
}

type graphFake struct {
	hits     []ports.GraphHit
	err      error
	gotSeeds []string
	gotHops  int
}

func (f *graphFake) MergeArticles(context.Context, *domain.Law, []domain.Article) error {
	return nil
}

func (f *graphFake) Traverse(_ context.Context, seeds []string, maxHops, _ int) ([]ports.GraphHit, error) {
	f.gotSeeds = seeds
	f.gotHops = maxHops
	return f.hits, f.err
}

func (f *graphFake) Ping(context.Context) error { return nil }

func TestLexicalRetrievePassesQueryAndLimit(t *testing.T) {
	searcher := &searcherFake{candidates: []domain.Candidate{
		{LawID: "L1", ArticleID: "1", SourceScores: map[string]float64{domain.BackendLexical: 3.2}},
	}}
	adapter := NewLexical(searcher, nil)

	out, err := adapter.Retrieve(context.Background(), domain.SearchRequest{Query: "所得"}, 7)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if searcher.gotQuery != "所得" || searcher.gotLimit != 7 {
		t.Fatalf("unexpected searcher call: query=%q limit=%d", searcher.gotQuery, searcher.gotLimit)
	}
	if len(out) != 1 || out[0].Key() != "L1#1" {
		t.Fatalf("unexpected candidates: %+v", out)
	}
}

func TestVectorRetrieveFailsWhenEmbeddingFails(t *testing.T) {
	adapter := NewVector(&embedderFake{err: errors.New("embed down")}, &indexFake{}, nil)
	_, err := adapter.Retrieve(context.Background(), domain.SearchRequest{Query: "q"}, 5)
	if err == nil {
		t.Fatalf("expected error when embedding fails")
	}
}

func TestVectorRetrieveUsesQueryVector(t *testing.T) {
	index := &indexFake{candidates: []domain.Candidate{
		{LawID: "L1", ArticleID: "2", SourceScores: map[string]float64{domain.BackendVector: 0.7}},
	}}
	adapter := NewVector(&embedderFake{vector: []float32{0.5, 0.5}}, index, nil)

	out, err := adapter.Retrieve(context.Background(), domain.SearchRequest{Query: "q"}, 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(index.gotVector) != 2 {
		t.Fatalf("expected query vector forwarded, got %v", index.gotVector)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
}

func TestGraphRetrieveScoresByInverseDistance(t *testing.T) {
	graph := &graphFake{hits: []ports.GraphHit{
		{LawID: "L2", ArticleID: "10", Content: "cited", Hops: 1},
		{LawID: "L3", ArticleID: "4", Content: "transitively cited", Hops: 2},
	}}
	seeder := &searcherFake{candidates: []domain.Candidate{
		{LawID: "L1", ArticleID: "1"},
		{LawID: "L1", ArticleID: "1"}, // duplicate seed collapses
	}}
	adapter := NewGraph(graph, seeder, 2, 5, nil)

	out, err := adapter.Retrieve(context.Background(), domain.SearchRequest{Query: "q"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(graph.gotSeeds) != 1 || graph.gotSeeds[0] != "L1#1" {
		t.Fatalf("unexpected seeds: %v", graph.gotSeeds)
	}
	if graph.gotHops != 2 {
		t.Fatalf("expected max hops 2, got %d", graph.gotHops)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if got := out[0].SourceScores[domain.BackendGraph]; got != 0.5 {
		t.Fatalf("expected 1/(1+1)=0.5 for one hop, got %f", got)
	}
	if got := out[1].SourceScores[domain.BackendGraph]; got != 1.0/3.0 {
		t.Fatalf("expected 1/(1+2) for two hops, got %f", got)
	}
}

func TestGraphRetrieveSeedsFromScopedLawArticles(t *testing.T) {
	graph := &graphFake{hits: []ports.GraphHit{
		{LawID: "L2", ArticleID: "第三条", Content: "cited elsewhere", Hops: 1},
	}}
	seeder := &searcherFake{articles: []domain.Article{
		{LawID: "L1", Number: "第一条"},
		{LawID: "L1", Number: "第二条"},
		{LawID: "L1", Number: "第三条"},
	}}
	adapter := NewGraph(graph, seeder, 2, 2, nil)

	req := domain.SearchRequest{Query: "no lexical overlap", LawID: "L1"}
	out, err := adapter.Retrieve(context.Background(), req, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if seeder.gotListedLaw != "L1" {
		t.Fatalf("expected scoped law listed, got %q", seeder.gotListedLaw)
	}
	want := []string{"L1#第一条", "L1#第二条"}
	if len(graph.gotSeeds) != len(want) {
		t.Fatalf("seeds = %v, want %v", graph.gotSeeds, want)
	}
	for i, seed := range want {
		if graph.gotSeeds[i] != seed {
			t.Fatalf("seed %d = %s, want %s", i, graph.gotSeeds[i], seed)
		}
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
}

func TestGraphRetrieveEmptyWithoutSeeds(t *testing.T) {
	graph := &graphFake{}
	adapter := NewGraph(graph, &searcherFake{}, 2, 5, nil)

	out, err := adapter.Retrieve(context.Background(), domain.SearchRequest{Query: "nothing matches"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out != nil {
		t.Fatalf("expected no candidates without seeds, got %+v", out)
	}
	if graph.gotSeeds != nil {
		t.Fatalf("traversal should not run without seeds")
	}
}
