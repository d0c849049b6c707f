package articles

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// invalidTextRepresentation is the Postgres code for a malformed id.
const invalidTextRepresentation = "22P02"

var authorEmbed = platform.Embed{
	Table:      platform.TableProfiles,
	ForeignKey: "author_id",
	Columns:    []string{"username", "avatar_url"},
}

// RemoteRepository implements Repository over the platform tables.
type RemoteRepository struct {
	tables platform.Tables
}

// NewRemoteRepository returns a repository that queries through tables.
func NewRemoteRepository(tables platform.Tables) *RemoteRepository {
	return &RemoteRepository{tables: tables}
}

// Query is the selection List runs for f. Live queries watch the same table.
func Query(f models.ArticleFilter) platform.Query {
	q := platform.Query{
		Table:  platform.TableArticles,
		Embeds: []platform.Embed{authorEmbed},
		Order:  &platform.Order{Column: "created_at", Descending: true},
	}
	if !f.IncludeDrafts {
		q.Filters = append(q.Filters, platform.Eq("published", true))
	}
	return q
}

func (r *RemoteRepository) List(ctx context.Context, f models.ArticleFilter) ([]models.Article, error) {
	var out []models.Article
	if err := r.tables.Select(ctx, Query(f), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns NotFoundError for an absent, hidden or malformed id alike.
func (r *RemoteRepository) Get(ctx context.Context, id string) (*models.Article, error) {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return nil, err
	}

	q := Query(models.ArticleFilter{IncludeDrafts: true})
	q.Filters = []platform.Filter{platform.Eq("id", id)}
	q.Order = nil

	var out []models.Article
	if err := r.tables.Select(ctx, q, &out); err != nil {
		if isMalformedID(err) {
			return nil, notFound()
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound()
	}
	return &out[0], nil
}

func (r *RemoteRepository) Create(ctx context.Context, authorID, title, body string, published bool) (*models.Article, error) {
	if err := required(map[string]string{"author_id": authorID, "title": title, "content": body}); err != nil {
		return nil, err
	}

	record := map[string]any{
		"title":     title,
		"content":   body,
		"author_id": authorID,
		"published": published,
	}
	var out []models.Article
	if err := r.tables.Insert(ctx, platform.TableArticles, record, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &common.RemoteError{Message: "article created but not returned"}
	}
	return &out[0], nil
}

// Update applies patch and returns the updated article. Zero affected rows
// means the article is absent or not the caller's: NotFoundError.
func (r *RemoteRepository) Update(ctx context.Context, id string, patch models.ArticlePatch) (*models.Article, error) {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, &common.ValidationError{Message: "nothing to update"}
	}
	fields := map[string]string{}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Body != nil {
		fields["content"] = *patch.Body
	}
	if err := required(fields); err != nil {
		return nil, err
	}

	var out []models.Article
	err := r.tables.Update(ctx, platform.TableArticles, []platform.Filter{platform.Eq("id", id)}, patch.Record(), &out)
	if err != nil {
		if isMalformedID(err) {
			return nil, notFound()
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound()
	}
	return &out[0], nil
}

// Delete removes the article. Deleting nothing is not an error: the
// platform filters rows the caller cannot delete without saying so.
func (r *RemoteRepository) Delete(ctx context.Context, id string) error {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return err
	}
	err := r.tables.Delete(ctx, platform.TableArticles, []platform.Filter{platform.Eq("id", id)})
	if err != nil && isMalformedID(err) {
		return nil
	}
	return err
}

func notFound() error {
	return &common.NotFoundError{Entity: "article"}
}

func isMalformedID(err error) bool {
	var re *common.RemoteError
	return errors.As(err, &re) && re.Code == invalidTextRepresentation
}

// required checks fields in a fixed order so the first error is stable.
func required(fields map[string]string) error {
	for _, k := range []string{"author_id", "title", "content"} {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if err := common.Required(k, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}
