package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

// IngestUseCase drives the e-Gov pipeline: fetch law XML, parse it into
// articles, embed and index them, and materialize citation edges.
type IngestUseCase struct {
	repo      ports.LawRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	collector ports.LawCollector
	parser    ports.LawParser
	embedder  ports.Embedder
	vectors   ports.VectorIndex
	graph     ports.GraphStore

	embedBatchSize int
	embedWorkers   int
	logger         *slog.Logger
}

func NewIngestUseCase(
	repo ports.LawRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	collector ports.LawCollector,
	parser ports.LawParser,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	graph ports.GraphStore,
	embedBatchSize, embedWorkers int,
	logger *slog.Logger,
) *IngestUseCase {
	if embedBatchSize <= 0 {
		embedBatchSize = 16
	}
	if embedWorkers <= 0 {
		embedWorkers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		repo:           repo,
		storage:        storage,
		queue:          queue,
		collector:      collector,
		parser:         parser,
		embedder:       embedder,
		vectors:        vectors,
		graph:          graph,
		embedBatchSize: embedBatchSize,
		embedWorkers:   embedWorkers,
		logger:         logger,
	}
}

// EnqueueFetch downloads one law's XML, stores the raw payload, records the
// law in fetched state and publishes the ingestion event the worker consumes.
func (uc *IngestUseCase) EnqueueFetch(ctx context.Context, lawID string) (*domain.Law, error) {
	body, err := uc.collector.FetchLawXML(ctx, lawID)
	if err != nil {
		return nil, fmt.Errorf("fetch law xml: %w", err)
	}
	defer body.Close()

	storageKey := lawID + ".xml"
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("store law xml: %w", err)
	}

	now := time.Now().UTC()
	law := &domain.Law{
		ID:          lawID,
		StoragePath: storageKey,
		Status:      domain.LawStatusFetched,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.UpsertLaw(ctx, law); err != nil {
		return nil, fmt.Errorf("record law: %w", err)
	}

	if err := uc.queue.PublishLawFetched(ctx, lawID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return law, nil
}

// ProcessByID runs the full pipeline for one fetched law and returns the
// number of articles indexed.
func (uc *IngestUseCase) ProcessByID(ctx context.Context, lawID string) (int, error) {
	if err := uc.repo.UpdateStatus(ctx, lawID, domain.LawStatusProcessing, ""); err != nil {
		return 0, fmt.Errorf("set status=processing: %w", err)
	}

	indexed, err := uc.processPipeline(ctx, lawID)
	if err != nil {
		if failErr := uc.markFailed(ctx, lawID, err); failErr != nil {
			return 0, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return 0, err
	}

	if err := uc.repo.UpdateStatus(ctx, lawID, domain.LawStatusReady, ""); err != nil {
		return 0, fmt.Errorf("set status=ready: %w", err)
	}
	return indexed, nil
}

func (uc *IngestUseCase) processPipeline(ctx context.Context, lawID string) (int, error) {
	stored, err := uc.repo.GetByID(ctx, lawID)
	if err != nil {
		return 0, fmt.Errorf("fetch law by id: %w", err)
	}

	raw, err := uc.storage.Open(ctx, stored.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("open stored xml: %w", err)
	}
	defer raw.Close()

	law, articles, err := uc.parser.Parse(lawID, raw)
	if err != nil {
		return 0, fmt.Errorf("parse law xml: %w", err)
	}
	if len(articles) == 0 {
		return 0, errors.New("parse law xml: law has no articles")
	}

	law.StoragePath = stored.StoragePath
	law.Status = domain.LawStatusProcessing
	law.ArticleCount = len(articles)
	law.CreatedAt = stored.CreatedAt
	law.UpdatedAt = time.Now().UTC()

	if err := uc.repo.UpsertLaw(ctx, law); err != nil {
		return 0, fmt.Errorf("upsert law: %w", err)
	}
	if err := uc.repo.ReplaceArticles(ctx, lawID, articles); err != nil {
		return 0, fmt.Errorf("replace articles: %w", err)
	}

	vectors, err := uc.embedArticles(ctx, articles)
	if err != nil {
		return 0, fmt.Errorf("embed articles: %w", err)
	}
	if err := uc.vectors.IndexArticles(ctx, law, articles, vectors); err != nil {
		return 0, fmt.Errorf("index article vectors: %w", err)
	}
	if err := uc.graph.MergeArticles(ctx, law, articles); err != nil {
		return 0, fmt.Errorf("merge citation graph: %w", err)
	}

	uc.logger.Info("law_processed",
		"law_id", lawID,
		"articles", len(articles),
	)
	return len(articles), nil
}

// embedArticles embeds article contents in batches with bounded concurrency;
// vector order stays aligned with the input articles.
func (uc *IngestUseCase) embedArticles(ctx context.Context, articles []domain.Article) ([][]float32, error) {
	vectors := make([][]float32, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.embedWorkers)

	for start := 0; start < len(articles); start += uc.embedBatchSize {
		end := start + uc.embedBatchSize
		if end > len(articles) {
			end = len(articles)
		}
		start, end := start, end

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, a := range articles[start:end] {
				texts = append(texts, a.Content)
			}
			batch, err := uc.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embed batch [%d:%d]: got %d vectors", start, end, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (uc *IngestUseCase) markFailed(ctx context.Context, lawID string, cause error) error {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return uc.repo.UpdateStatus(ctx, lawID, domain.LawStatusFailed, msg)
}
