package usecase

import (
	"sort"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// Normalizer maps one backend's raw score into [0,1].
type Normalizer func(raw float64) float64

// SaturationNormalizer rescales an unbounded relevance score via s/(s+k).
// The curve is fixed per deployment, so scores stay comparable across
// requests, unlike per-request min-max.
func SaturationNormalizer(k float64) Normalizer {
	if k <= 0 {
		k = 1.0
	}
	return func(raw float64) float64 {
		if raw <= 0 {
			return 0
		}
		return raw / (raw + k)
	}
}

// AffineNormalizer maps cosine similarity in [-1,1] onto [0,1].
func AffineNormalizer() Normalizer {
	return func(raw float64) float64 {
		return clamp01((raw + 1) / 2)
	}
}

// IdentityNormalizer passes scores already in [0,1] through, clamped.
func IdentityNormalizer() Normalizer {
	return clamp01
}

type MissingPolicy int

const (
	// MissingAsZero lets absent backends contribute zero to the fused score.
	MissingAsZero MissingPolicy = iota
	// MissingExcludes drops candidates not reported by every backend that
	// returned at least one candidate.
	MissingExcludes
)

// FusionPolicy is the immutable weighting configuration for one deployment.
// Weights sum to 1.0 across the three backends.
type FusionPolicy struct {
	Weights     map[string]float64
	Normalizers map[string]Normalizer
	Missing     MissingPolicy
}

func DefaultFusionPolicy() FusionPolicy {
	return FusionPolicy{
		Weights: map[string]float64{
			domain.BackendLexical: 0.4,
			domain.BackendVector:  0.4,
			domain.BackendGraph:   0.2,
		},
		Normalizers: map[string]Normalizer{
			domain.BackendLexical: SaturationNormalizer(1.0),
			domain.BackendVector:  AffineNormalizer(),
			domain.BackendGraph:   IdentityNormalizer(),
		},
		Missing: MissingAsZero,
	}
}

func (p FusionPolicy) weight(backend string) float64 {
	return p.Weights[backend]
}

func (p FusionPolicy) normalize(backend string, raw float64) float64 {
	if norm, ok := p.Normalizers[backend]; ok && norm != nil {
		return clamp01(norm(raw))
	}
	return clamp01(raw)
}

type mergedCandidate struct {
	candidate      domain.Candidate
	contentBackend string
}

// fuseCandidates merges the three raw candidate lists into one ranked,
// deduplicated list. Pure and synchronous: output depends only on the
// input lists and the policy, never on arrival order.
func fuseCandidates(policy FusionPolicy, lexical, vector, graph []domain.Candidate, limit int) []domain.Candidate {
	acc := make(map[string]*mergedCandidate, len(lexical)+len(vector)+len(graph))

	merge := func(backend string, candidates []domain.Candidate) {
		for _, c := range candidates {
			key := c.Key()
			raw, rawOK := c.SourceScores[backend]
			if !rawOK {
				continue
			}

			entry, ok := acc[key]
			if !ok {
				entry = &mergedCandidate{
					candidate: domain.Candidate{
						LawID:        c.LawID,
						ArticleID:    c.ArticleID,
						SourceScores: make(map[string]float64, 3),
					},
				}
				acc[key] = entry
			}

			// Duplicate within one backend keeps the better raw score.
			if prev, ok := entry.candidate.SourceScores[backend]; !ok || raw > prev {
				entry.candidate.SourceScores[backend] = raw
			}

			// Canonical content and metadata come from the highest-weighted
			// backend that carried them.
			if c.Content != "" && (entry.candidate.Content == "" || policy.weight(backend) > policy.weight(entry.contentBackend)) {
				entry.candidate.Content = c.Content
				entry.contentBackend = backend
			}
			if entry.candidate.Metadata.IsZero() && !c.Metadata.IsZero() {
				entry.candidate.Metadata = c.Metadata
			}
		}
	}

	merge(domain.BackendLexical, lexical)
	merge(domain.BackendVector, vector)
	merge(domain.BackendGraph, graph)

	reporting := 0
	for _, list := range [][]domain.Candidate{lexical, vector, graph} {
		if len(list) > 0 {
			reporting++
		}
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, entry := range acc {
		if policy.Missing == MissingExcludes && entry.candidate.BackendCount() < reporting {
			continue
		}

		fused := 0.0
		for backend, raw := range entry.candidate.SourceScores {
			fused += policy.weight(backend) * policy.normalize(backend, raw)
		}
		entry.candidate.FusedScore = clamp01(fused)
		out = append(out, entry.candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].BackendCount() != out[j].BackendCount() {
			return out[i].BackendCount() > out[j].BackendCount()
		}
		li := out[i].SourceScores[domain.BackendLexical]
		lj := out[j].SourceScores[domain.BackendLexical]
		if li != lj {
			return li > lj
		}
		return out[i].Key() < out[j].Key()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
