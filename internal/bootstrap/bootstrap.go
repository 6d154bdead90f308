package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hokuto-sato/lawsearch/internal/config"
	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
	"github.com/hokuto-sato/lawsearch/internal/core/usecase"
	httpadapter "github.com/hokuto-sato/lawsearch/internal/adapters/http"
	collectoregov "github.com/hokuto-sato/lawsearch/internal/infrastructure/collector/egov"
	graphstore "github.com/hokuto-sato/lawsearch/internal/infrastructure/graph/neo4j"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/llm/ollama"
	parseregov "github.com/hokuto-sato/lawsearch/internal/infrastructure/parser/egov"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/queue/nats"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/repository/postgres"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/retriever"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/storage/localfs"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.LawRepository
	SearchUC ports.SearchService
	IngestUC ports.LawIngestor
	LawsUC   ports.LawReader
	Probes   []httpadapter.ReadinessProbe

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewLawRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	graph, err := graphstore.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		return nil, fmt.Errorf("open neo4j: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	upstreamExec := resilience.NewExecutor(resilience.DefaultConfig())
	retrievalExec := resilience.NewExecutor(resilience.RetrievalConfig())
	synthesisExec := resilience.NewExecutor(resilience.SynthesisConfig())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, upstreamExec)
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedCacheSize, time.Duration(cfg.EmbedCacheTTLSeconds)*time.Second)
	generator := ollama.NewGeneratorWithExecutor(ollamaClient, synthesisExec)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	collector := collectoregov.New(cfg.EGovBaseURL, cfg.EGovRatePerSec, cfg.EGovBurst)
	parser := parseregov.NewParser()

	lexical := retriever.NewLexical(repo, retrievalExec)
	vector := retriever.NewVector(embedder, vectorDB, retrievalExec)
	graphRetriever := retriever.NewGraph(graph, repo, cfg.GraphMaxHops, cfg.GraphSeedLimit, retrievalExec)

	pool, err := ants.NewPool(cfg.FanOutPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create fan-out pool: %w", err)
	}

	fanout := usecase.NewFanOutCoordinator(
		pool,
		time.Duration(cfg.FanOutTimeoutMS)*time.Millisecond,
		time.Duration(cfg.BackendTimeoutMS)*time.Millisecond,
		logger,
	)

	policy := usecase.DefaultFusionPolicy()
	policy.Weights = map[string]float64{
		domain.BackendLexical: cfg.FusionLexicalWeight,
		domain.BackendVector:  cfg.FusionVectorWeight,
		domain.BackendGraph:   cfg.FusionGraphWeight,
	}

	searchUC := usecase.NewSearchUseCase(
		lexical, vector, graphRetriever,
		fanout,
		policy,
		generator,
		usecase.SearchConfig{
			DefaultLimit:         cfg.SearchDefaultLimit,
			MaxLimit:             cfg.SearchMaxLimit,
			CandidatesPerBackend: cfg.CandidatesPerBackend,
			AnswerTopK:           cfg.AnswerTopK,
			ContextBudgetRunes:   cfg.ContextBudgetRunes,
		},
		logger,
	)

	ingestUC := usecase.NewIngestUseCase(
		repo, storage, queue, collector, parser,
		embedder, vectorDB, graph,
		0, 0,
		logger,
	)
	lawsUC := usecase.NewLawsUseCase(repo)

	probes := []httpadapter.ReadinessProbe{
		{Name: "postgres", Check: func(ctx context.Context) error { return db.PingContext(ctx) }},
		{Name: "neo4j", Check: graph.Ping},
		{Name: "qdrant", Check: vectorDB.Ping},
	}

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		SearchUC: searchUC,
		IngestUC: ingestUC,
		LawsUC:   lawsUC,
		Probes:   probes,

		closeFn: func() {
			queue.Close()
			pool.Release()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graph.Close(closeCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
