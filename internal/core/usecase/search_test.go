package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

type stubGenerator struct {
	gen      ports.Generation
	err      error
	question string
	passages []domain.Candidate
}

func (s *stubGenerator) Generate(_ context.Context, question string, passages []domain.Candidate) (ports.Generation, error) {
	s.question = question
	s.passages = passages
	if s.err != nil {
		return ports.Generation{}, s.err
	}
	return s.gen, nil
}

func newTestSearchUseCase(lex, vec, gra *stubRetriever, gen ports.AnswerGenerator, cfg SearchConfig) *SearchUseCase {
	return NewSearchUseCase(
		lex, vec, gra,
		newTestFanOut(time.Second, time.Second),
		DefaultFusionPolicy(),
		gen,
		cfg,
		nil,
	)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	uc := newTestSearchUseCase(
		&stubRetriever{name: domain.BackendLexical},
		&stubRetriever{name: domain.BackendVector},
		&stubRetriever{name: domain.BackendGraph},
		&stubGenerator{}, SearchConfig{},
	)

	_, err := uc.Search(context.Background(), domain.SearchRequest{Query: "   "})
	if !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected invalid query, got %v", err)
	}
}

func TestSearchRejectsOverlongQuery(t *testing.T) {
	uc := newTestSearchUseCase(
		&stubRetriever{name: domain.BackendLexical},
		&stubRetriever{name: domain.BackendVector},
		&stubRetriever{name: domain.BackendGraph},
		&stubGenerator{}, SearchConfig{},
	)

	_, err := uc.Search(context.Background(), domain.SearchRequest{Query: strings.Repeat("あ", 501)})
	if !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected invalid query, got %v", err)
	}
}

func TestSearchAppliesDefaultAndMaxLimit(t *testing.T) {
	var lex []domain.Candidate
	for i := 0; i < 50; i++ {
		lex = append(lex, lexicalCandidate("L1", "A"+strings.Repeat("x", i+1), float64(50-i)))
	}
	lexR := &stubRetriever{name: domain.BackendLexical, candidates: lex}
	uc := newTestSearchUseCase(
		lexR,
		&stubRetriever{name: domain.BackendVector},
		&stubRetriever{name: domain.BackendGraph},
		&stubGenerator{},
		SearchConfig{DefaultLimit: 10, MaxLimit: 20, CandidatesPerBackend: 30},
	)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Candidates) != 10 {
		t.Fatalf("default limit: got %d results, want 10", len(result.Candidates))
	}
	if lexR.gotLimit != 30 {
		t.Fatalf("per-backend limit = %d, want 30", lexR.gotLimit)
	}

	result, err = uc.Search(context.Background(), domain.SearchRequest{Query: "q", Limit: 500})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Candidates) != 20 {
		t.Fatalf("max limit: got %d results, want 20", len(result.Candidates))
	}
}

func TestSearchReportsDegradedBackends(t *testing.T) {
	uc := newTestSearchUseCase(
		&stubRetriever{name: domain.BackendLexical, candidates: []domain.Candidate{lexicalCandidate("L1", "A1", 1.0)}},
		&stubRetriever{name: domain.BackendVector, err: errTest("down")},
		&stubRetriever{name: domain.BackendGraph},
		&stubGenerator{}, SearchConfig{},
	)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(result.Degraded) != 1 || result.Degraded[0] != domain.BackendVector {
		t.Fatalf("degraded = %v, want [vector]", result.Degraded)
	}
	if result.Phase != domain.PhaseRankedOnly {
		t.Fatalf("phase = %s, want ranked_only", result.Phase)
	}
	if len(result.Backends) != 3 {
		t.Fatalf("backend statuses = %d, want 3", len(result.Backends))
	}
}

func TestSearchWithAnswerReachesAnsweredPhase(t *testing.T) {
	gen := &stubGenerator{
		gen: ports.Generation{
			Text:       "通勤手当は一定額まで非課税です。",
			Confidence: 0.9,
			Model:      "llama3.1:8b",
			Citations: []domain.Citation{
				{LawID: "L1", ArticleID: "A1", Quote: "非課税", Relevance: 0.8},
			},
		},
	}
	uc := newTestSearchUseCase(
		&stubRetriever{name: domain.BackendLexical, candidates: []domain.Candidate{lexicalCandidate("L1", "A1", 1.0)}},
		&stubRetriever{name: domain.BackendVector},
		&stubRetriever{name: domain.BackendGraph},
		gen, SearchConfig{},
	)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "通勤手当", WithAnswer: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if result.Phase != domain.PhaseAnswered {
		t.Fatalf("phase = %s, want answered", result.Phase)
	}
	if result.Answer == nil || result.Answer.Text == "" {
		t.Fatal("expected synthesized answer")
	}
	if gen.question != "通勤手当" {
		t.Fatalf("generator got question %q", gen.question)
	}
	if len(result.Answer.Citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(result.Answer.Citations))
	}
}

func TestSearchWithAnswerButNoResultsStaysRankedOnly(t *testing.T) {
	gen := &stubGenerator{}
	uc := newTestSearchUseCase(
		&stubRetriever{name: domain.BackendLexical, candidates: []domain.Candidate{}},
		&stubRetriever{name: domain.BackendVector},
		&stubRetriever{name: domain.BackendGraph},
		gen, SearchConfig{},
	)

	result, err := uc.Search(context.Background(), domain.SearchRequest{Query: "q", WithAnswer: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Phase != domain.PhaseRankedOnly {
		t.Fatalf("phase = %s, want ranked_only", result.Phase)
	}
	if result.Answer != nil {
		t.Fatal("no answer expected without candidates")
	}
	if gen.question != "" {
		t.Fatal("generator must not be called without candidates")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
