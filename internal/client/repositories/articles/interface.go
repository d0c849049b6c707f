// Package articles gives typed access to the articles table, joined with
// the author's profile summary.
//
// Authorization is entirely the platform's: writes are attempted for any id
// and rows the caller may not see or touch are silently filtered remotely.
package articles

import (
	"context"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
)

type Repository interface {
	List(ctx context.Context, f models.ArticleFilter) ([]models.Article, error)
	Get(ctx context.Context, id string) (*models.Article, error)
	Create(ctx context.Context, authorID, title, body string, published bool) (*models.Article, error)
	Update(ctx context.Context, id string, patch models.ArticlePatch) (*models.Article, error)
	Delete(ctx context.Context, id string) error
}
