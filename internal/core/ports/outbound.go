package ports

import (
	"context"
	"io"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// Retriever is the uniform contract all three retrieval backends implement.
// Retrieve returns up to limit candidates scored in the backend's native
// scale, or fails explicitly; it never blocks past its context deadline.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, req domain.SearchRequest, limit int) ([]domain.Candidate, error)
}

// Embedder builds vectors via the external embedding service.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores article vectors and answers nearest-neighbour queries.
// Nearest scores are cosine similarities in [-1, 1].
type VectorIndex interface {
	IndexArticles(ctx context.Context, law *domain.Law, articles []domain.Article, vectors [][]float32) error
	Nearest(ctx context.Context, vector []float32, limit int, req domain.SearchRequest) ([]domain.Candidate, error)
}

// LawRepository persists laws and articles and serves the inverted-index
// full-text query the lexical backend consumes.
type LawRepository interface {
	UpsertLaw(ctx context.Context, law *domain.Law) error
	ReplaceArticles(ctx context.Context, lawID string, articles []domain.Article) error
	UpdateStatus(ctx context.Context, lawID string, status domain.LawStatus, errMessage string) error
	GetByID(ctx context.Context, id string) (*domain.Law, error)
	ListArticles(ctx context.Context, lawID string) ([]domain.Article, error)
	GetArticle(ctx context.Context, lawID, number string) (*domain.Article, error)
	List(ctx context.Context, category string, limit, offset int) ([]domain.Law, error)
	Categories(ctx context.Context) ([]string, error)
	SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error)
	Stats(ctx context.Context) (*domain.CorpusStats, error)

	// SearchFullText returns candidates with raw relevance scores
	// (unbounded, higher is better).
	SearchFullText(ctx context.Context, query string, limit int, req domain.SearchRequest) ([]domain.Candidate, error)
}

// GraphHit is one node reached by a relationship traversal.
type GraphHit struct {
	LawID     string
	ArticleID string
	Content   string
	Meta      domain.ArticleMeta
	Hops      int
}

// GraphStore maintains the citation graph and exposes bounded traversal
// from a set of seed passages.
type GraphStore interface {
	MergeArticles(ctx context.Context, law *domain.Law, articles []domain.Article) error
	Traverse(ctx context.Context, seeds []string, maxHops, limit int) ([]GraphHit, error)
	Ping(ctx context.Context) error
}

// Generation is the raw output of the external generation service before
// citation validation.
type Generation struct {
	Text       string
	Citations  []domain.Citation
	Confidence float64
	Model      string
}

// AnswerGenerator calls the external generation service with a bounded
// passage context.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, passages []domain.Candidate) (Generation, error)
}

// ObjectStorage stores raw law XML as fetched from the source.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes law ingestion events.
type MessageQueue interface {
	PublishLawFetched(ctx context.Context, lawID string) error
	SubscribeLawFetched(ctx context.Context, handler func(context.Context, string) error) error
}

// LawCollector fetches law XML from the upstream e-Gov API.
type LawCollector interface {
	FetchLawXML(ctx context.Context, lawID string) (io.ReadCloser, error)
}

// LawParser turns raw law XML into the law and its articles. The law ID is
// passed in because Standard Law XML does not carry it.
type LawParser interface {
	Parse(lawID string, r io.Reader) (*domain.Law, []domain.Article, error)
}
