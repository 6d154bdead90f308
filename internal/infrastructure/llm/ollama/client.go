package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
	"github.com/hokuto-sato/lawsearch/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder calls the embedding model. Query embeddings go through a
// short-TTL cache keyed by normalized query text, so repeated questions
// within the window skip the embedding round-trip.
type Embedder struct {
	client *Client
	cache  *expirable.LRU[string, []float32]
}

func NewEmbedder(client *Client, cacheSize int, cacheTTL time.Duration) *Embedder {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Embedder{
		client: client,
		cache:  expirable.NewLRU[string, []float32](cacheSize, nil, cacheTTL),
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := normalizeQueryKey(text)
	if vector, ok := e.cache.Get(key); ok {
		return vector, nil
	}

	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}

func normalizeQueryKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Generator calls the generation model in strict-JSON mode and parses the
// answer/citations envelope. Citation validation against the passage set
// happens in the use case, not here.
type Generator struct {
	client   *Client
	executor *resilience.Executor
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// NewGeneratorWithExecutor overrides the client executor for generation
// calls, so synthesis can run under its own retry/breaker policy.
func NewGeneratorWithExecutor(client *Client, executor *resilience.Executor) *Generator {
	return &Generator{client: client, executor: executor}
}

type generatedCitation struct {
	LawID         string  `json:"law_id"`
	ArticleNumber string  `json:"article_number"`
	Quote         string  `json:"quote"`
	Relevance     float64 `json:"relevance"`
}

type generatedEnvelope struct {
	Answer     string              `json:"answer"`
	Citations  []generatedCitation `json:"citations"`
	Confidence float64             `json:"confidence"`
}

func (g *Generator) Generate(ctx context.Context, question string, passages []domain.Candidate) (ports.Generation, error) {
	raw, err := g.client.generateJSON(ctx, buildAnswerPrompt(question, passages), g.executor)
	if err != nil {
		return ports.Generation{}, err
	}

	var envelope generatedEnvelope
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &envelope); err != nil {
		return ports.Generation{}, fmt.Errorf("parse generation json: %w", err)
	}

	gen := ports.Generation{
		Text:       strings.TrimSpace(envelope.Answer),
		Confidence: envelope.Confidence,
		Model:      g.client.genModel,
	}
	for _, cit := range envelope.Citations {
		gen.Citations = append(gen.Citations, domain.Citation{
			LawID:     cit.LawID,
			ArticleID: cit.ArticleNumber,
			Quote:     cit.Quote,
			Relevance: cit.Relevance,
		})
	}
	return gen, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string, executor *resilience.Executor) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.callWith(ctx, "generate", executor, func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	}); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	return c.callWith(ctx, operation, nil, fn)
}

func (c *Client) callWith(ctx context.Context, operation string, executor *resilience.Executor, fn func(context.Context) error) error {
	if executor == nil {
		executor = c.executor
	}
	if executor == nil {
		return fn(ctx)
	}
	err := executor.Execute(ctx, "ollama_"+operation, fn, classifyOllamaError)
	return wrapTemporaryIfNeeded(operation, err)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
