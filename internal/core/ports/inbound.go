package ports

import (
	"context"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// SearchService is the inbound contract for hybrid retrieval, with or
// without answer synthesis.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// LawIngestor is the inbound contract for the ingestion pipeline.
// ProcessByID reports how many articles it indexed.
type LawIngestor interface {
	EnqueueFetch(ctx context.Context, lawID string) (*domain.Law, error)
	ProcessByID(ctx context.Context, lawID string) (int, error)
}

// LawReader is the inbound read model for the law catalogue.
type LawReader interface {
	List(ctx context.Context, category string, limit, offset int) ([]domain.Law, error)
	GetByID(ctx context.Context, id string) (*domain.Law, []domain.Article, error)
	GetArticle(ctx context.Context, lawID, number string) (*domain.Article, error)
	Categories(ctx context.Context) ([]string, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Stats(ctx context.Context) (*domain.CorpusStats, error)
}
