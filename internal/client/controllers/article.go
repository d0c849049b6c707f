package controllers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/articles"
	"github.com/dmitrijs2005/vulnblog/internal/common"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// ArticleForm holds the editable fields of an article.
type ArticleForm struct {
	Title     string
	Body      string
	Published bool
}

func formOf(a *models.Article) ArticleForm {
	return ArticleForm{Title: a.Title, Body: a.Body, Published: a.Published}
}

// Article backs the detail page: view, edit and delete one article.
type Article struct {
	repo     articles.Repository
	sessions Sessions
	logger   logging.Logger

	mu      sync.Mutex
	state   State
	article *models.Article
	form    ArticleForm
	editing bool
}

func NewArticle(repo articles.Repository, sessions Sessions, logger logging.Logger) *Article {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Article{repo: repo, sessions: sessions, logger: logger}
}

// Load fetches the article and resets the form to its values.
func (c *Article) Load(ctx context.Context, id string) bool {
	c.mu.Lock()
	c.state.begin()
	c.mu.Unlock()

	a, err := c.repo.Get(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Debug(ctx, "load article failed", "id", id, "error", err)
		c.article = nil
		return c.state.fail(err, msgLoadArticle)
	}
	c.article = a
	c.form = formOf(a)
	c.editing = false
	return c.state.succeed("")
}

func (c *Article) Article() *models.Article {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.article
}

func (c *Article) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthor decides whether edit and delete are offered. It only hides
// controls: Save and Delete do not consult it.
func (c *Article) IsAuthor(ctx context.Context) bool {
	id := c.sessions.CurrentIdentity(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.article != nil && c.article.IsOwnedBy(id)
}

// Edit enters edit mode.
func (c *Article) Edit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = true
}

func (c *Article) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing
}

func (c *Article) Form() ArticleForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

func (c *Article) SetForm(f ArticleForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = f
}

// Cancel leaves edit mode and restores the loaded values.
func (c *Article) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.article != nil {
		c.form = formOf(c.article)
	}
	c.editing = false
}

// Save writes the form and reloads the article.
func (c *Article) Save(ctx context.Context) bool {
	c.mu.Lock()
	if c.article == nil {
		defer c.mu.Unlock()
		return c.state.fail(&common.ValidationError{Message: msgNothingLoaded}, msgSave)
	}
	id, f := c.article.ID, c.form
	c.state.begin()
	c.mu.Unlock()

	_, err := c.repo.Update(ctx, id, models.ArticlePatch{
		Title:     &f.Title,
		Body:      &f.Body,
		Published: &f.Published,
	})
	if err != nil {
		c.logger.Debug(ctx, "save article failed", "id", id, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state.fail(err, msgSave)
	}
	return c.Load(ctx, id)
}

// Delete removes the article once confirm agrees to MsgConfirmDelete. On
// success the page has nothing left to show and the caller navigates away.
func (c *Article) Delete(ctx context.Context, confirm func(prompt string) bool) bool {
	c.mu.Lock()
	if c.article == nil {
		defer c.mu.Unlock()
		return c.state.fail(&common.ValidationError{Message: msgNothingLoaded}, msgDelete)
	}
	id := c.article.ID
	c.mu.Unlock()

	if confirm != nil && !confirm(MsgConfirmDelete) {
		return false
	}

	c.mu.Lock()
	c.state.begin()
	c.mu.Unlock()

	err := c.repo.Delete(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Debug(ctx, "delete article failed", "id", id, "error", err)
		return c.state.fail(err, msgDelete)
	}
	c.article = nil
	c.form = ArticleForm{}
	c.editing = false
	return c.state.succeed("")
}
