package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

const maxQueryRunes = 500

type SearchConfig struct {
	DefaultLimit         int
	MaxLimit             int
	CandidatesPerBackend int
	AnswerTopK           int
	ContextBudgetRunes   int
}

func (c SearchConfig) normalize() SearchConfig {
	out := c
	if out.DefaultLimit <= 0 {
		out.DefaultLimit = 10
	}
	if out.MaxLimit <= 0 {
		out.MaxLimit = 100
	}
	if out.CandidatesPerBackend <= 0 {
		out.CandidatesPerBackend = 30
	}
	if out.AnswerTopK <= 0 {
		out.AnswerTopK = 5
	}
	if out.ContextBudgetRunes <= 0 {
		out.ContextBudgetRunes = 4000
	}
	return out
}

// SearchUseCase orchestrates one retrieval request: validate, fan out to the
// three backends, fuse, and optionally synthesize an answer.
type SearchUseCase struct {
	retrievers []ports.Retriever
	fanout     *FanOutCoordinator
	policy     FusionPolicy
	generator  ports.AnswerGenerator
	cfg        SearchConfig
	logger     *slog.Logger
}

func NewSearchUseCase(
	lexical, vector, graph ports.Retriever,
	fanout *FanOutCoordinator,
	policy FusionPolicy,
	generator ports.AnswerGenerator,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchUseCase{
		retrievers: []ports.Retriever{lexical, vector, graph},
		fanout:     fanout,
		policy:     policy,
		generator:  generator,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "validate query", fmt.Errorf("query is empty"))
	}
	if utf8.RuneCountInString(req.Query) > maxQueryRunes {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "validate query",
			fmt.Errorf("query exceeds %d characters", maxQueryRunes))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = uc.cfg.DefaultLimit
	}
	if limit > uc.cfg.MaxLimit {
		limit = uc.cfg.MaxLimit
	}
	req.Limit = limit

	start := time.Now()
	perBackend := uc.cfg.CandidatesPerBackend
	if perBackend < limit {
		perBackend = limit
	}

	lists, statuses, err := uc.fanout.Run(ctx, uc.retrievers, req, perBackend)
	if err != nil {
		return nil, err
	}

	fused := fuseCandidates(uc.policy, lists[0], lists[1], lists[2], limit)

	var degraded []string
	for _, st := range statuses {
		if st.State != domain.BackendOK {
			degraded = append(degraded, st.Backend)
		}
	}

	result := &domain.SearchResult{
		Query:      req.Query,
		Candidates: fused,
		Backends:   statuses,
		Degraded:   degraded,
		Phase:      domain.PhaseRankedOnly,
	}

	if req.WithAnswer && len(fused) > 0 {
		answer, err := uc.synthesize(ctx, req.Query, fused)
		if err != nil {
			return nil, err
		}
		result.Answer = answer
		result.Phase = domain.PhaseAnswered
	}

	result.Took = time.Since(start)
	uc.logger.Debug("search_completed",
		"query_len", len(req.Query),
		"results", len(fused),
		"degraded", degraded,
		"phase", string(result.Phase),
		"took_ms", result.Took.Milliseconds(),
	)
	return result, nil
}
