package domain

// Citation links one answer span back to the candidate it was derived from.
// LawID and ArticleID always reference a candidate that was part of the
// synthesizer's input set.
type Citation struct {
	LawID     string  `json:"law_id"`
	ArticleID string  `json:"article_id,omitempty"`
	Quote     string  `json:"quote,omitempty"`
	Relevance float64 `json:"relevance"`
}

func (c Citation) Key() string {
	return c.LawID + "#" + c.ArticleID
}

type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	Model      string     `json:"model,omitempty"`

	// DroppedCitations counts citations the generator returned that did not
	// reference a passage it was given. Kept off the wire; consumed by
	// observability.
	DroppedCitations int `json:"-"`
}
