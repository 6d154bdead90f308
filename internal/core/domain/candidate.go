package domain

import "time"

// Backend names used as SourceScores keys and status labels.
const (
	BackendLexical = "lexical"
	BackendVector  = "vector"
	BackendGraph   = "graph"
)

// ArticleMeta carries structural attributes of a passage through
// retrieval and fusion unmodified.
type ArticleMeta struct {
	Chapter       string `json:"chapter,omitempty"`
	Section       string `json:"section,omitempty"`
	Paragraph     string `json:"paragraph,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

func (m ArticleMeta) IsZero() bool {
	return m == ArticleMeta{}
}

// Candidate is one normalized retrieval hit. Identity is (LawID, ArticleID);
// an empty ArticleID marks a law-level hit. SourceScores holds each
// backend's raw score in that backend's native scale; a missing entry means
// the backend did not return this candidate. FusedScore is zero until fusion.
type Candidate struct {
	LawID        string             `json:"law_id"`
	ArticleID    string             `json:"article_id,omitempty"`
	Content      string             `json:"content"`
	SourceScores map[string]float64 `json:"source_scores"`
	FusedScore   float64            `json:"fused_score"`
	Metadata     ArticleMeta        `json:"metadata"`
}

// Key returns the identity key. The separator cannot occur in e-Gov law IDs
// or article numbers, so the mapping is injective.
func (c Candidate) Key() string {
	return c.LawID + "#" + c.ArticleID
}

func (c Candidate) BackendCount() int {
	return len(c.SourceScores)
}

type SearchFilter struct {
	Category string
	From     time.Time
	To       time.Time
}

// SearchRequest is the inbound query for both search-only and QA mode.
// LawID, when set, scopes retrieval to one law's passages.
type SearchRequest struct {
	Query      string
	Limit      int
	LawID      string
	Filter     SearchFilter
	WithAnswer bool
}

type BackendState string

const (
	BackendOK      BackendState = "ok"
	BackendTimeout BackendState = "timeout"
	BackendError   BackendState = "error"
)

// BackendStatus reports one backend's outcome for a single fan-out.
type BackendStatus struct {
	Backend string        `json:"backend"`
	State   BackendState  `json:"state"`
	Error   string        `json:"error,omitempty"`
	Took    time.Duration `json:"took"`
	Hits    int           `json:"hits"`
}

// SearchPhase is the terminal state of a completed request: ranked_only
// when only the fused ranking is returned, answered when synthesis ran.
// Failed requests surface as errors, not as a phase.
type SearchPhase string

const (
	PhaseAnswered   SearchPhase = "answered"
	PhaseRankedOnly SearchPhase = "ranked_only"
)

// SearchResult is the per-request outcome: the fused ranking, per-backend
// statuses, and the synthesized answer when QA mode was requested.
// Degraded lists backends that failed or timed out while at least one
// other backend succeeded.
type SearchResult struct {
	Query      string          `json:"query"`
	Candidates []Candidate     `json:"results"`
	Backends   []BackendStatus `json:"backends"`
	Degraded   []string        `json:"degraded_backends,omitempty"`
	Phase      SearchPhase     `json:"phase"`
	Answer     *Answer         `json:"answer,omitempty"`
	Took       time.Duration   `json:"took"`
}
