package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

type fakeSearchService struct {
	lastReq domain.SearchRequest
	result  *domain.SearchResult
	err     error
}

func (f *fakeSearchService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLawReader struct {
	laws       []domain.Law
	law        *domain.Law
	articles   []domain.Article
	article    *domain.Article
	categories []string
	titles     []string
	stats      *domain.CorpusStats
	err        error
}

func (f *fakeLawReader) List(context.Context, string, int, int) ([]domain.Law, error) {
	return f.laws, f.err
}

func (f *fakeLawReader) GetByID(context.Context, string) (*domain.Law, []domain.Article, error) {
	return f.law, f.articles, f.err
}

func (f *fakeLawReader) GetArticle(context.Context, string, string) (*domain.Article, error) {
	return f.article, f.err
}

func (f *fakeLawReader) Categories(context.Context) ([]string, error) {
	return f.categories, f.err
}

func (f *fakeLawReader) Suggest(context.Context, string, int) ([]string, error) {
	return f.titles, f.err
}

func (f *fakeLawReader) Stats(context.Context) (*domain.CorpusStats, error) {
	return f.stats, f.err
}

type fakeIngestor struct {
	lastLawID string
	law       *domain.Law
	err       error
}

func (f *fakeIngestor) EnqueueFetch(_ context.Context, lawID string) (*domain.Law, error) {
	f.lastLawID = lawID
	return f.law, f.err
}

func (f *fakeIngestor) ProcessByID(context.Context, string) (int, error) {
	return 0, f.err
}

func newTestRouter(search *fakeSearchService, laws *fakeLawReader, ingestor *fakeIngestor) http.Handler {
	if search == nil {
		search = &fakeSearchService{}
	}
	if laws == nil {
		laws = &fakeLawReader{}
	}
	if ingestor == nil {
		ingestor = &fakeIngestor{}
	}
	return NewRouter(search, laws, ingestor, nil, nil, "test").Handler()
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzReportsFailingProbe(t *testing.T) {
	probes := []ReadinessProbe{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "neo4j", Check: func(context.Context) error { return errors.New("connection refused") }},
	}
	handler := NewRouter(&fakeSearchService{}, &fakeLawReader{}, &fakeIngestor{}, probes, nil, "test").Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "not_ready" {
		t.Fatalf("status field = %q, want not_ready", body.Status)
	}
	if body.Checks["postgres"] != "ok" {
		t.Fatalf("postgres check = %q, want ok", body.Checks["postgres"])
	}
	if !strings.Contains(body.Checks["neo4j"], "connection refused") {
		t.Fatalf("neo4j check = %q, want failure message", body.Checks["neo4j"])
	}
}

func TestSearchPassesRequestThrough(t *testing.T) {
	search := &fakeSearchService{
		result: &domain.SearchResult{
			Query: "所得税",
			Candidates: []domain.Candidate{
				{LawID: "340AC0000000033", ArticleID: "第1条", FusedScore: 0.8},
			},
			Phase: domain.PhaseRankedOnly,
		},
	}
	handler := newTestRouter(search, nil, nil)

	payload := `{"query":"所得税","limit":5,"category":"税法","effective_from":"2020-01-01"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(payload))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if search.lastReq.Query != "所得税" {
		t.Fatalf("query = %q, want 所得税", search.lastReq.Query)
	}
	if search.lastReq.Limit != 5 {
		t.Fatalf("limit = %d, want 5", search.lastReq.Limit)
	}
	if search.lastReq.WithAnswer {
		t.Fatal("search endpoint must not request synthesis")
	}
	if search.lastReq.Filter.Category != "税法" {
		t.Fatalf("filter = %+v", search.lastReq.Filter)
	}
	wantFrom := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !search.lastReq.Filter.From.Equal(wantFrom) {
		t.Fatalf("effective_from = %v, want %v", search.lastReq.Filter.From, wantFrom)
	}
}

func TestSearchRejectsBadDateFilter(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"q","effective_from":"01/02/2020"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestQARequestsSynthesis(t *testing.T) {
	search := &fakeSearchService{
		result: &domain.SearchResult{
			Phase:  domain.PhaseAnswered,
			Answer: &domain.Answer{Text: "非課税です。"},
		},
	}
	handler := newTestRouter(search, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/qa", strings.NewReader(`{"query":"通勤手当は課税対象ですか"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !search.lastReq.WithAnswer {
		t.Fatal("qa endpoint must request synthesis")
	}
}

func TestSearchErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid query", domain.WrapError(domain.ErrInvalidQuery, "search", errors.New("empty")), http.StatusBadRequest},
		{"total failure", domain.WrapError(domain.ErrBackendTotalFailure, "search", errors.New("all backends failed")), http.StatusServiceUnavailable},
		{"synthesis failure", domain.WrapError(domain.ErrSynthesisFailure, "answer", errors.New("empty answer")), http.StatusBadGateway},
		{"cancelled", domain.WrapError(domain.ErrCancelled, "search", context.Canceled), statusClientClosedRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(&fakeSearchService{err: tc.err}, nil, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"q"}`))
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSearchRejectsMalformedJSON(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte("{broken")))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetLawNotFound(t *testing.T) {
	laws := &fakeLawReader{err: domain.WrapError(domain.ErrLawNotFound, "get law", errors.New("no rows"))}
	handler := newTestRouter(nil, laws, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/laws/999AC0000000999", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestFetchLawAccepted(t *testing.T) {
	ingestor := &fakeIngestor{
		law: &domain.Law{ID: "340AC0000000033", Status: domain.LawStatusFetched},
	}
	handler := newTestRouter(nil, nil, ingestor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/laws/340AC0000000033/fetch", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if ingestor.lastLawID != "340AC0000000033" {
		t.Fatalf("law id = %q", ingestor.lastLawID)
	}
}

func TestSearchStatsReturnsCorpusCounts(t *testing.T) {
	laws := &fakeLawReader{stats: &domain.CorpusStats{
		Laws:       3,
		Articles:   120,
		Categories: 2,
		ByStatus:   map[string]int{"ready": 2, "failed": 1},
	}}
	handler := newTestRouter(nil, laws, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got domain.CorpusStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Laws != 3 || got.Articles != 120 || got.Categories != 2 {
		t.Fatalf("stats = %+v", got)
	}
	if got.ByStatus["ready"] != 2 {
		t.Fatalf("by_status = %v", got.ByStatus)
	}
}

func TestSuggestReturnsEmptyArray(t *testing.T) {
	handler := newTestRouter(nil, &fakeLawReader{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search/suggest?q=所得", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"suggestions":[]}` {
		t.Fatalf("body = %s", got)
	}
}

func TestRequestIDEchoedInHeader(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id header = %q, want req-123", got)
	}
}
