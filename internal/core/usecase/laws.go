package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
	"github.com/hokuto-sato/lawsearch/internal/core/ports"
)

// LawsUseCase is the read model over the ingested law catalogue.
type LawsUseCase struct {
	repo ports.LawRepository
}

func NewLawsUseCase(repo ports.LawRepository) *LawsUseCase {
	return &LawsUseCase{repo: repo}
}

func (uc *LawsUseCase) List(ctx context.Context, category string, limit, offset int) ([]domain.Law, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.repo.List(ctx, category, limit, offset)
}

func (uc *LawsUseCase) GetByID(ctx context.Context, id string) (*domain.Law, []domain.Article, error) {
	law, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	articles, err := uc.repo.ListArticles(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list articles: %w", err)
	}
	return law, articles, nil
}

func (uc *LawsUseCase) GetArticle(ctx context.Context, lawID, number string) (*domain.Article, error) {
	return uc.repo.GetArticle(ctx, lawID, number)
}

func (uc *LawsUseCase) Categories(ctx context.Context) ([]string, error) {
	return uc.repo.Categories(ctx)
}

func (uc *LawsUseCase) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	return uc.repo.Stats(ctx)
}

func (uc *LawsUseCase) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "suggest", fmt.Errorf("prefix is empty"))
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	return uc.repo.SuggestTitles(ctx, prefix, limit)
}
