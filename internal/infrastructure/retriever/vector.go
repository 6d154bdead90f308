package retriever

import (
	"context"
	"fmt"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
)

// Vector adapts embedding + nearest-neighbour lookup to the retriever
// contract. Raw scores are cosine similarities in [-1, 1].
type Vector struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	executor *resilience.Executor
}

func NewVector(embedder ports.Embedder, index ports.VectorIndex, executor *resilience.Executor) *Vector {
	return &Vector{embedder: embedder, index: index, executor: executor}
}

func (v *Vector) Name() string {
	return domain.BackendVector
}

func (v *Vector) Retrieve(ctx context.Context, req domain.SearchRequest, limit int) ([]domain.Candidate, error) {
	// The embedder carries its own retry policy and query cache.
	queryVector, err := v.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var out []domain.Candidate
	err = execute(ctx, v.executor, "vector_search", func(callCtx context.Context) error {
		candidates, err := v.index.Nearest(callCtx, queryVector, limit, req)
		if err != nil {
			return err
		}
		out = candidates
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vector retrieve: %w", err)
	}
	return out, nil
}
