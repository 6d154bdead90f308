package usecase

import (
	"math"
	"testing"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

func lexicalCandidate(lawID, articleID string, score float64) domain.Candidate {
	return domain.Candidate{
		LawID:        lawID,
		ArticleID:    articleID,
		Content:      "lexical content " + lawID + articleID,
		SourceScores: map[string]float64{domain.BackendLexical: score},
	}
}

func vectorCandidate(lawID, articleID string, score float64) domain.Candidate {
	return domain.Candidate{
		LawID:        lawID,
		ArticleID:    articleID,
		Content:      "vector content " + lawID + articleID,
		SourceScores: map[string]float64{domain.BackendVector: score},
	}
}

func graphCandidate(lawID, articleID string, score float64) domain.Candidate {
	return domain.Candidate{
		LawID:        lawID,
		ArticleID:    articleID,
		Content:      "graph content " + lawID + articleID,
		SourceScores: map[string]float64{domain.BackendGraph: score},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFuseWeightedSumAcrossAllBackends(t *testing.T) {
	policy := DefaultFusionPolicy()

	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 1.0)}, // saturation: 1/(1+1) = 0.5
		[]domain.Candidate{vectorCandidate("L1", "A1", 0.5)},  // affine: (0.5+1)/2 = 0.75
		[]domain.Candidate{graphCandidate("L1", "A1", 0.5)},   // identity
		10,
	)

	if len(fused) != 1 {
		t.Fatalf("fused length = %d, want 1", len(fused))
	}
	want := 0.4*0.5 + 0.4*0.75 + 0.2*0.5
	if !almostEqual(fused[0].FusedScore, want) {
		t.Fatalf("fused score = %v, want %v", fused[0].FusedScore, want)
	}
	if fused[0].BackendCount() != 3 {
		t.Fatalf("backend count = %d, want 3", fused[0].BackendCount())
	}
}

func TestFuseDeduplicatesAcrossBackends(t *testing.T) {
	policy := DefaultFusionPolicy()

	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 2.0), lexicalCandidate("L1", "A2", 1.0)},
		[]domain.Candidate{vectorCandidate("L1", "A1", 0.9)},
		[]domain.Candidate{graphCandidate("L1", "A1", 0.5)},
		10,
	)

	seen := make(map[string]int)
	for _, c := range fused {
		seen[c.Key()]++
	}
	for key, n := range seen {
		if n != 1 {
			t.Fatalf("key %q appears %d times", key, n)
		}
	}
	if len(fused) != 2 {
		t.Fatalf("fused length = %d, want 2", len(fused))
	}
}

func TestFuseKeepsBetterDuplicateWithinBackend(t *testing.T) {
	policy := DefaultFusionPolicy()

	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 0.5), lexicalCandidate("L1", "A1", 3.0)},
		nil, nil, 10,
	)

	if len(fused) != 1 {
		t.Fatalf("fused length = %d, want 1", len(fused))
	}
	if got := fused[0].SourceScores[domain.BackendLexical]; got != 3.0 {
		t.Fatalf("kept raw = %v, want 3.0", got)
	}
}

func TestFuseScoresStayInUnitInterval(t *testing.T) {
	policy := DefaultFusionPolicy()

	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 1e9)},
		[]domain.Candidate{vectorCandidate("L1", "A1", 5.0), vectorCandidate("L1", "A2", -3.0)},
		[]domain.Candidate{graphCandidate("L1", "A1", 42.0)},
		10,
	)

	for _, c := range fused {
		if c.FusedScore < 0 || c.FusedScore > 1 {
			t.Fatalf("fused score %v out of [0,1] for %s", c.FusedScore, c.Key())
		}
	}
}

func TestFuseIsDeterministicAcrossInputOrder(t *testing.T) {
	policy := DefaultFusionPolicy()

	lex := []domain.Candidate{
		lexicalCandidate("L1", "A1", 1.0),
		lexicalCandidate("L1", "A2", 1.0),
		lexicalCandidate("L2", "A1", 0.5),
	}
	vec := []domain.Candidate{
		vectorCandidate("L1", "A2", 0.2),
		vectorCandidate("L2", "A1", 0.8),
	}

	first := fuseCandidates(policy, lex, vec, nil, 10)

	lexReversed := []domain.Candidate{lex[2], lex[0], lex[1]}
	vecReversed := []domain.Candidate{vec[1], vec[0]}
	second := fuseCandidates(policy, lexReversed, vecReversed, nil, 10)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Key() != second[i].Key() {
			t.Fatalf("rank %d differs: %s vs %s", i, first[i].Key(), second[i].Key())
		}
		if !almostEqual(first[i].FusedScore, second[i].FusedScore) {
			t.Fatalf("score at rank %d differs: %v vs %v", i, first[i].FusedScore, second[i].FusedScore)
		}
	}
}

func TestFuseTieBreakPrefersMoreBackends(t *testing.T) {
	policy := FusionPolicy{
		Weights: map[string]float64{
			domain.BackendLexical: 0.4,
			domain.BackendVector:  0.4,
			domain.BackendGraph:   0.2,
		},
		Normalizers: map[string]Normalizer{
			domain.BackendLexical: IdentityNormalizer(),
			domain.BackendVector:  IdentityNormalizer(),
			domain.BackendGraph:   IdentityNormalizer(),
		},
	}

	// Both fuse to 0.4: one from a single backend, one from two.
	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "Single", 1.0), lexicalCandidate("L1", "Pair", 0.5)},
		[]domain.Candidate{vectorCandidate("L1", "Pair", 0.5)},
		nil, 10,
	)

	if len(fused) != 2 {
		t.Fatalf("fused length = %d, want 2", len(fused))
	}
	if !almostEqual(fused[0].FusedScore, fused[1].FusedScore) {
		t.Fatalf("expected tie, got %v vs %v", fused[0].FusedScore, fused[1].FusedScore)
	}
	if fused[0].ArticleID != "Pair" {
		t.Fatalf("tie-break winner = %s, want Pair", fused[0].ArticleID)
	}
}

func TestFuseTieBreakFallsBackToKeyOrder(t *testing.T) {
	policy := FusionPolicy{
		Weights:     map[string]float64{domain.BackendVector: 1.0},
		Normalizers: map[string]Normalizer{domain.BackendVector: IdentityNormalizer()},
	}

	fused := fuseCandidates(policy,
		nil,
		[]domain.Candidate{vectorCandidate("L2", "A1", 0.5), vectorCandidate("L1", "A1", 0.5)},
		nil, 10,
	)

	if len(fused) != 2 {
		t.Fatalf("fused length = %d, want 2", len(fused))
	}
	if fused[0].LawID != "L1" {
		t.Fatalf("first key = %s, want L1#A1", fused[0].Key())
	}
}

func TestFuseMonotonicity(t *testing.T) {
	policy := DefaultFusionPolicy()

	base := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 1.0), lexicalCandidate("L1", "A2", 1.0)},
		nil, nil, 10,
	)
	boosted := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "A1", 2.0), lexicalCandidate("L1", "A2", 1.0)},
		nil, nil, 10,
	)

	if boosted[0].ArticleID != "A1" {
		t.Fatalf("boosted winner = %s, want A1", boosted[0].ArticleID)
	}
	if boosted[0].FusedScore <= base[0].FusedScore && base[0].ArticleID == "A1" {
		t.Fatalf("raising a raw score must not lower the fused score: %v -> %v",
			base[0].FusedScore, boosted[0].FusedScore)
	}
}

func TestFuseMissingExcludesDropsPartialCandidates(t *testing.T) {
	policy := DefaultFusionPolicy()
	policy.Missing = MissingExcludes

	// Graph returned nothing, so only lexical and vector count as reporting.
	fused := fuseCandidates(policy,
		[]domain.Candidate{lexicalCandidate("L1", "Both", 1.0), lexicalCandidate("L1", "LexOnly", 2.0)},
		[]domain.Candidate{vectorCandidate("L1", "Both", 0.9)},
		nil, 10,
	)

	if len(fused) != 1 {
		t.Fatalf("fused length = %d, want 1", len(fused))
	}
	if fused[0].ArticleID != "Both" {
		t.Fatalf("survivor = %s, want Both", fused[0].ArticleID)
	}
}

func TestFuseCanonicalContentFollowsWeight(t *testing.T) {
	policy := DefaultFusionPolicy()

	// Graph carries the candidate first; vector (higher weight) should win
	// the content slot when it also carries it.
	fused := fuseCandidates(policy,
		nil,
		[]domain.Candidate{vectorCandidate("L1", "A1", 0.5)},
		[]domain.Candidate{graphCandidate("L1", "A1", 0.5)},
		10,
	)

	if len(fused) != 1 {
		t.Fatalf("fused length = %d, want 1", len(fused))
	}
	if fused[0].Content != "vector content L1A1" {
		t.Fatalf("content = %q, want the vector backend's content", fused[0].Content)
	}
}

func TestFuseHonoursLimit(t *testing.T) {
	policy := DefaultFusionPolicy()

	var lex []domain.Candidate
	for _, id := range []string{"A1", "A2", "A3", "A4", "A5"} {
		lex = append(lex, lexicalCandidate("L1", id, 1.0))
	}

	fused := fuseCandidates(policy, lex, nil, nil, 3)
	if len(fused) != 3 {
		t.Fatalf("fused length = %d, want 3", len(fused))
	}
}
