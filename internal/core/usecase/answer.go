package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// synthesize builds a bounded context from the top fused candidates, calls
// the generation service, and validates every returned citation against the
// candidate set actually handed over. Citations referencing unknown passages
// are a contract violation and are dropped, never surfaced as fact.
func (uc *SearchUseCase) synthesize(
	ctx context.Context,
	question string,
	fused []domain.Candidate,
) (*domain.Answer, error) {
	passages := uc.buildContext(fused)
	if len(passages) == 0 {
		return nil, domain.WrapError(domain.ErrSynthesisFailure, "build context",
			fmt.Errorf("no passages fit the context budget"))
	}

	gen, err := uc.generator.Generate(ctx, question, passages)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSynthesisFailure, "generate answer", err)
	}
	if strings.TrimSpace(gen.Text) == "" {
		return nil, domain.WrapError(domain.ErrSynthesisFailure, "generate answer",
			fmt.Errorf("generation service returned an empty answer"))
	}

	known := make(map[string]domain.Candidate, len(passages))
	for _, p := range passages {
		known[p.Key()] = p
	}

	citations := make([]domain.Citation, 0, len(gen.Citations))
	dropped := 0
	for _, cit := range gen.Citations {
		source, ok := known[cit.Key()]
		if !ok {
			dropped++
			continue
		}
		if cit.Relevance <= 0 || cit.Relevance > 1 {
			cit.Relevance = source.FusedScore
		}
		citations = append(citations, cit)
	}
	if dropped > 0 {
		uc.logger.Warn("citations_dropped",
			"dropped", dropped,
			"kept", len(citations),
		)
	}

	return &domain.Answer{
		Text:             gen.Text,
		Citations:        citations,
		Confidence:       deriveConfidence(gen.Confidence, citations, known, passages),
		Model:            gen.Model,
		DroppedCitations: dropped,
	}, nil
}

// buildContext selects the top-k candidates, highest fused score first, and
// truncates their content to the rune budget.
func (uc *SearchUseCase) buildContext(fused []domain.Candidate) []domain.Candidate {
	topK := uc.cfg.AnswerTopK
	if topK > len(fused) {
		topK = len(fused)
	}

	remaining := uc.cfg.ContextBudgetRunes
	passages := make([]domain.Candidate, 0, topK)
	for _, c := range fused[:topK] {
		if remaining <= 0 {
			break
		}
		if size := utf8.RuneCountInString(c.Content); size > remaining {
			c.Content = string([]rune(c.Content)[:remaining])
			remaining = 0
		} else {
			remaining -= size
		}
		passages = append(passages, c)
	}
	return passages
}

// deriveConfidence prefers the generation service's own signal; otherwise it
// falls back to the mean fused score of the candidates actually cited, then
// of all passages handed to the service.
func deriveConfidence(
	serviceSignal float64,
	citations []domain.Citation,
	known map[string]domain.Candidate,
	passages []domain.Candidate,
) float64 {
	if serviceSignal > 0 && serviceSignal <= 1 {
		return serviceSignal
	}

	seen := make(map[string]struct{}, len(citations))
	sum, n := 0.0, 0
	for _, cit := range citations {
		key := cit.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sum += known[key].FusedScore
		n++
	}
	if n == 0 {
		for _, p := range passages {
			sum += p.FusedScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}
