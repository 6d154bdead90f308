package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
	"github.com/hokuto-sato/lawsearch/internal/observability/metrics"
)

const readinessTimeout = 2 * time.Second

// ReadinessProbe is a named dependency check run by /readyz.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Router struct {
	search   ports.SearchService
	laws     ports.LawReader
	ingestor ports.LawIngestor
	probes   []ReadinessProbe
	metrics  *metrics.HTTPServerMetrics
	service  string
}

func NewRouter(
	search ports.SearchService,
	laws ports.LawReader,
	ingestor ports.LawIngestor,
	probes []ReadinessProbe,
	httpMetrics *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		search:   search,
		laws:     laws,
		ingestor: ingestor,
		probes:   probes,
		metrics:  httpMetrics,
		service:  service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("POST /v1/search", rt.hybridSearch)
	mux.HandleFunc("POST /v1/qa", rt.questionAnswer)
	mux.HandleFunc("GET /v1/search/suggest", rt.suggest)
	mux.HandleFunc("GET /v1/laws", rt.listLaws)
	mux.HandleFunc("GET /v1/search/stats", rt.searchStats)
	mux.HandleFunc("GET /v1/laws/{law_id}", rt.getLaw)
	mux.HandleFunc("GET /v1/laws/{law_id}/articles/{number}", rt.getArticle)
	mux.HandleFunc("POST /v1/laws/{law_id}/fetch", rt.fetchLaw)
	mux.HandleFunc("GET /v1/categories", rt.listCategories)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(rt.probes))
	ready := true
	for _, probe := range rt.probes {
		if err := probe.Check(ctx); err != nil {
			checks[probe.Name] = err.Error()
			ready = false
			continue
		}
		checks[probe.Name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

type searchPayload struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	LawID         string `json:"law_id"`
	Category      string `json:"category"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
}

func (p searchPayload) toRequest(withAnswer bool) (domain.SearchRequest, error) {
	from, err := parseDate(p.EffectiveFrom)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("effective_from: %w", err)
	}
	to, err := parseDate(p.EffectiveTo)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("effective_to: %w", err)
	}

	return domain.SearchRequest{
		Query:      p.Query,
		Limit:      p.Limit,
		LawID:      strings.TrimSpace(p.LawID),
		WithAnswer: withAnswer,
		Filter: domain.SearchFilter{
			Category: strings.TrimSpace(p.Category),
			From:     from,
			To:       to,
		},
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func (rt *Router) hybridSearch(w http.ResponseWriter, r *http.Request) {
	rt.runSearch(w, r, "/v1/search", false)
}

func (rt *Router) questionAnswer(w http.ResponseWriter, r *http.Request) {
	rt.runSearch(w, r, "/v1/qa", true)
}

func (rt *Router) runSearch(w http.ResponseWriter, r *http.Request, endpoint string, withAnswer bool) {
	var payload searchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	req, err := payload.toRequest(withAnswer)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := rt.search.Search(r.Context(), req)
	if err != nil {
		rt.recordSearch(endpoint, "error", 0, time.Since(start), nil)
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	outcome := "ok"
	if len(result.Degraded) > 0 {
		outcome = "degraded"
	}
	rt.recordSearch(endpoint, outcome, len(result.Candidates), time.Since(start), result)

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordSearch(endpoint, outcome string, fused int, took time.Duration, result *domain.SearchResult) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordSearch(rt.service, endpoint, outcome, fused, took)
	if result == nil {
		return
	}
	for _, st := range result.Backends {
		rt.metrics.RecordBackend(rt.service, st.Backend, string(st.State), st.Took)
	}
	for _, backend := range result.Degraded {
		rt.metrics.RecordDegraded(rt.service, backend)
	}
	if result.Answer != nil {
		rt.metrics.RecordAnswer(rt.service, result.Answer.Model, "ok")
		rt.metrics.RecordDroppedCitations(result.Answer.DroppedCitations)
	}
}

func (rt *Router) suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := queryInt(r, "limit", 0)

	titles, err := rt.laws.Suggest(r.Context(), prefix, limit)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if titles == nil {
		titles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": titles})
}

func (rt *Router) listLaws(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	laws, err := rt.laws.List(r.Context(), category, limit, offset)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if laws == nil {
		laws = []domain.Law{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"laws": laws})
}

func (rt *Router) getLaw(w http.ResponseWriter, r *http.Request) {
	lawID := r.PathValue("law_id")
	law, articles, err := rt.laws.GetByID(r.Context(), lawID)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"law": law, "articles": articles})
}

func (rt *Router) getArticle(w http.ResponseWriter, r *http.Request) {
	lawID := r.PathValue("law_id")
	number := r.PathValue("number")

	article, err := rt.laws.GetArticle(r.Context(), lawID, number)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (rt *Router) fetchLaw(w http.ResponseWriter, r *http.Request) {
	lawID := strings.TrimSpace(r.PathValue("law_id"))
	if lawID == "" {
		writeError(w, r, http.StatusBadRequest, "law id is required")
		return
	}

	law, err := rt.ingestor.EnqueueFetch(r.Context(), lawID)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, law)
}

func (rt *Router) searchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.laws.Stats(r.Context())
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := rt.laws.Categories(r.Context())
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}
