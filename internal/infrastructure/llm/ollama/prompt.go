package ollama

import (
	"fmt"
	"strings"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

func buildAnswerPrompt(question string, passages []domain.Candidate) string {
	var contextBuilder strings.Builder
	for idx, p := range passages {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] law_id=%s article_number=%s chapter=%s score=%.3f\n%s\n\n",
			idx+1,
			p.LawID,
			p.ArticleID,
			p.Metadata.Chapter,
			p.FusedScore,
			p.Content,
		))
	}

	return fmt.Sprintf(`You are a legal research assistant. Answer the user question only from the statutory passages below.
If the passages are insufficient, say so directly in the answer.
Return a strict JSON object with keys:
answer (string),
citations (array of objects with keys law_id, article_number, quote, relevance from 0 to 1),
confidence (number from 0 to 1).
Every citation must reference a law_id and article_number that appear in the passages. No markdown, no extra keys.

Question:
%s

Passages:
%s`, question, contextBuilder.String())
}
