package retriever

import (
	"context"
	"fmt"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
)

// FullTextSearcher is the slice of the storage engine the lexical backend
// consumes.
type FullTextSearcher interface {
	SearchFullText(ctx context.Context, query string, limit int, req domain.SearchRequest) ([]domain.Candidate, error)
}

// Lexical adapts the inverted-index full-text query to the retriever
// contract. Raw scores are ts_rank values, unbounded, higher is better.
type Lexical struct {
	searcher FullTextSearcher
	executor *resilience.Executor
}

func NewLexical(searcher FullTextSearcher, executor *resilience.Executor) *Lexical {
	return &Lexical{searcher: searcher, executor: executor}
}

func (l *Lexical) Name() string {
	return domain.BackendLexical
}

func (l *Lexical) Retrieve(ctx context.Context, req domain.SearchRequest, limit int) ([]domain.Candidate, error) {
	var out []domain.Candidate
	err := execute(ctx, l.executor, "lexical_search", func(callCtx context.Context) error {
		candidates, err := l.searcher.SearchFullText(callCtx, req.Query, limit, req)
		if err != nil {
			return err
		}
		out = candidates
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lexical retrieve: %w", err)
	}
	return out, nil
}
