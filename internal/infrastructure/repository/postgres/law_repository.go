package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// LawRepository persists the law catalogue and serves the full-text query
// the lexical backend consumes. Articles carry a generated tsvector over
// caption+content with a GIN index; ts_rank is the raw lexical score.
type LawRepository struct {
	db *sql.DB
}

func NewLawRepository(db *sql.DB) *LawRepository {
	return &LawRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *LawRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS laws (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	number TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	promulgated_on TEXT NOT NULL DEFAULT '',
	effective_on TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	article_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	law_id TEXT NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
	number TEXT NOT NULL,
	caption TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	chapter TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	paragraph TEXT NOT NULL DEFAULT '',
	effective_date TEXT NOT NULL DEFAULT '',
	refs JSONB NOT NULL DEFAULT '[]'::jsonb,
	position INTEGER NOT NULL DEFAULT 0,
	search_tsv tsvector GENERATED ALWAYS AS (
		to_tsvector('simple', coalesce(caption, '') || ' ' || content)
	) STORED,
	PRIMARY KEY (law_id, number)
);

CREATE INDEX IF NOT EXISTS idx_articles_search_tsv ON articles USING GIN (search_tsv);
CREATE INDEX IF NOT EXISTS idx_laws_category ON laws(category);
CREATE INDEX IF NOT EXISTS idx_laws_title ON laws(title);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *LawRepository) UpsertLaw(ctx context.Context, law *domain.Law) error {
	const query = `
INSERT INTO laws (id, title, number, category, promulgated_on, effective_on, storage_path, status, error_message, article_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	number = EXCLUDED.number,
	category = EXCLUDED.category,
	promulgated_on = EXCLUDED.promulgated_on,
	effective_on = EXCLUDED.effective_on,
	storage_path = EXCLUDED.storage_path,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	article_count = EXCLUDED.article_count,
	updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		law.ID, law.Title, law.Number, law.Category,
		law.PromulgatedOn, law.EffectiveOn, law.StoragePath,
		string(law.Status), law.Error, law.ArticleCount,
		law.CreatedAt, law.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert law: %w", err)
	}
	return nil
}

func (r *LawRepository) ReplaceArticles(ctx context.Context, lawID string, articles []domain.Article) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin articles tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE law_id = $1`, lawID); err != nil {
		return fmt.Errorf("delete stale articles: %w", err)
	}

	const insert = `
INSERT INTO articles (law_id, number, caption, content, chapter, section, paragraph, effective_date, refs, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, a := range articles {
		refs, err := json.Marshal(a.References)
		if err != nil {
			return fmt.Errorf("marshal article refs: %w", err)
		}
		if a.References == nil {
			refs = []byte("[]")
		}
		if _, err := tx.ExecContext(ctx, insert,
			lawID, a.Number, a.Caption, a.Content,
			a.Meta.Chapter, a.Meta.Section, a.Meta.Paragraph, a.Meta.EffectiveDate,
			refs, a.Position,
		); err != nil {
			return fmt.Errorf("insert article %s: %w", a.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit articles tx: %w", err)
	}
	return nil
}

func (r *LawRepository) UpdateStatus(ctx context.Context, lawID string, status domain.LawStatus, errMessage string) error {
	const query = `UPDATE laws SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, lawID, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update law status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrLawNotFound, "update law status", fmt.Errorf("law %s", lawID))
	}
	return nil
}

const lawColumns = `id, title, number, category, promulgated_on, effective_on, storage_path, status, error_message, article_count, created_at, updated_at`

func (r *LawRepository) GetByID(ctx context.Context, id string) (*domain.Law, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+lawColumns+` FROM laws WHERE id = $1`, id)

	law, err := scanLaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrLawNotFound, "get law", fmt.Errorf("law %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("scan law: %w", err)
	}
	return law, nil
}

func (r *LawRepository) List(ctx context.Context, category string, limit, offset int) ([]domain.Law, error) {
	query := `SELECT ` + lawColumns + ` FROM laws`
	args := make([]any, 0, 3)
	if category != "" {
		args = append(args, category)
		query += ` WHERE category = $1`
	}
	query += fmt.Sprintf(` ORDER BY title ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list laws: %w", err)
	}
	defer rows.Close()

	laws := make([]domain.Law, 0, limit)
	for rows.Next() {
		law, err := scanLaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan law: %w", err)
		}
		laws = append(laws, *law)
	}
	return laws, rows.Err()
}

func (r *LawRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM laws WHERE category <> '' ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *LawRepository) SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT title FROM laws WHERE title ILIKE $1 || '%' AND title <> '' ORDER BY title ASC LIMIT $2`,
		prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (r *LawRepository) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	stats := &domain.CorpusStats{ByStatus: make(map[string]int)}

	row := r.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM laws),
       (SELECT COUNT(*) FROM articles),
       (SELECT COUNT(DISTINCT category) FROM laws WHERE category <> '')`)
	if err := row.Scan(&stats.Laws, &stats.Articles, &stats.Categories); err != nil {
		return nil, fmt.Errorf("scan corpus totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM laws GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count laws by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

const articleColumns = `law_id, number, caption, content, chapter, section, paragraph, effective_date, refs, position`

func (r *LawRepository) ListArticles(ctx context.Context, lawID string) ([]domain.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE law_id = $1 ORDER BY position ASC`, lawID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

func (r *LawRepository) GetArticle(ctx context.Context, lawID, number string) (*domain.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE law_id = $1 AND number = $2`, lawID, number)

	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrLawNotFound, "get article",
			fmt.Errorf("article %s of law %s", number, lawID))
	}
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}
	return article, nil
}

// SearchFullText runs the inverted-index query; the raw score is ts_rank,
// unbounded with higher meaning better.
func (r *LawRepository) SearchFullText(
	ctx context.Context,
	query string,
	limit int,
	req domain.SearchRequest,
) ([]domain.Candidate, error) {
	var (
		conds = []string{`a.search_tsv @@ q`}
		args  = []any{query}
	)
	if req.LawID != "" {
		args = append(args, req.LawID)
		conds = append(conds, fmt.Sprintf(`a.law_id = $%d`, len(args)))
	}
	if req.Filter.Category != "" {
		args = append(args, req.Filter.Category)
		conds = append(conds, fmt.Sprintf(`l.category = $%d`, len(args)))
	}
	if !req.Filter.From.IsZero() {
		args = append(args, req.Filter.From.Format("2006-01-02"))
		conds = append(conds, fmt.Sprintf(`l.effective_on >= $%d`, len(args)))
	}
	if !req.Filter.To.IsZero() {
		args = append(args, req.Filter.To.Format("2006-01-02"))
		conds = append(conds, fmt.Sprintf(`l.effective_on <= $%d`, len(args)))
	}
	args = append(args, limit)

	sqlText := fmt.Sprintf(`
SELECT a.law_id, a.number, a.content, a.chapter, a.section, a.paragraph, a.effective_date,
       ts_rank(a.search_tsv, q) AS score
FROM articles a
JOIN laws l ON l.id = a.law_id,
     websearch_to_tsquery('simple', $1) q
WHERE %s
ORDER BY score DESC, a.law_id ASC, a.number ASC
LIMIT $%d`, strings.Join(conds, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("fulltext query: %w", err)
	}
	defer rows.Close()

	candidates := make([]domain.Candidate, 0, limit)
	for rows.Next() {
		var (
			c     domain.Candidate
			score float64
		)
		if err := rows.Scan(
			&c.LawID, &c.ArticleID, &c.Content,
			&c.Metadata.Chapter, &c.Metadata.Section, &c.Metadata.Paragraph, &c.Metadata.EffectiveDate,
			&score,
		); err != nil {
			return nil, fmt.Errorf("scan fulltext hit: %w", err)
		}
		c.SourceScores = map[string]float64{domain.BackendLexical: score}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLaw(row rowScanner) (*domain.Law, error) {
	var (
		law    domain.Law
		status string
	)
	if err := row.Scan(
		&law.ID, &law.Title, &law.Number, &law.Category,
		&law.PromulgatedOn, &law.EffectiveOn, &law.StoragePath,
		&status, &law.Error, &law.ArticleCount,
		&law.CreatedAt, &law.UpdatedAt,
	); err != nil {
		return nil, err
	}
	law.Status = domain.LawStatus(status)
	return &law, nil
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var (
		article domain.Article
		refs    []byte
	)
	if err := row.Scan(
		&article.LawID, &article.Number, &article.Caption, &article.Content,
		&article.Meta.Chapter, &article.Meta.Section, &article.Meta.Paragraph, &article.Meta.EffectiveDate,
		&refs, &article.Position,
	); err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &article.References); err != nil {
			return nil, fmt.Errorf("unmarshal article refs: %w", err)
		}
	}
	return &article, nil
}
