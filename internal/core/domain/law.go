package domain

import "time"

type LawStatus string

const (
	LawStatusFetched    LawStatus = "fetched"
	LawStatusProcessing LawStatus = "processing"
	LawStatusReady      LawStatus = "ready"
	LawStatusFailed     LawStatus = "failed"
)

// Law is one statute as ingested from the e-Gov corpus.
type Law struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Number       string    `json:"number,omitempty"`
	Category     string    `json:"category,omitempty"`
	PromulgatedOn string   `json:"promulgated_on,omitempty"`
	EffectiveOn  string    `json:"effective_on,omitempty"`
	StoragePath  string    `json:"storage_path,omitempty"`
	Status       LawStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	ArticleCount int       `json:"article_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Article is one passage of a law; Number is the passage identity within
// the owning law (ArticleID on retrieval candidates).
type Article struct {
	LawID    string      `json:"law_id"`
	Number   string      `json:"number"`
	Caption  string      `json:"caption,omitempty"`
	Content  string      `json:"content"`
	Position int         `json:"position"`
	Meta     ArticleMeta `json:"metadata"`

	// References holds identity keys of passages this article cites,
	// extracted by the parser and materialized as graph edges.
	References []string `json:"references,omitempty"`
}

// CorpusStats summarizes the ingested corpus: catalogue totals plus a
// per-lifecycle-status breakdown of laws.
type CorpusStats struct {
	Laws       int            `json:"laws"`
	Articles   int            `json:"articles"`
	Categories int            `json:"categories"`
	ByStatus   map[string]int `json:"laws_by_status,omitempty"`
}
