package controllers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/livequery"
	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/articles"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// ArticleList is a live list of articles, newest first. It re-fetches on
// every change to the articles table until Stop.
type ArticleList struct {
	repo   articles.Repository
	filter models.ArticleFilter
	query  *livequery.Query[models.Article]
	logger logging.Logger

	mu    sync.Mutex
	state State
	items []models.Article
}

// NewHome is the public list: published articles only.
func NewHome(repo articles.Repository, changes platform.Changes, logger logging.Logger) *ArticleList {
	return NewArticleList(repo, changes, models.ArticleFilter{}, logger)
}

// NewArticleList is a live list of the articles matching filter.
func NewArticleList(repo articles.Repository, changes platform.Changes, filter models.ArticleFilter, logger logging.Logger) *ArticleList {
	if logger == nil {
		logger = logging.Nop()
	}
	l := &ArticleList{repo: repo, filter: filter, logger: logger}
	l.query = livequery.New(changes, platform.TableArticles, func(ctx context.Context) ([]models.Article, error) {
		return repo.List(ctx, filter)
	}, logger)
	return l
}

// Start loads the list and keeps it fresh. onChange, when set, runs after
// every refresh, including the first one before Start returns. The list
// loads even when the change feed is down; it goes live once the feed opens.
func (l *ArticleList) Start(ctx context.Context, onChange func()) error {
	l.mu.Lock()
	l.state.begin()
	l.mu.Unlock()

	err := l.query.Start(ctx, func(items []models.Article, err error) {
		l.apply(items, err)
		if onChange != nil {
			onChange()
		}
	})
	if err != nil {
		l.mu.Lock()
		l.state.fail(err, msgLoadList)
		l.mu.Unlock()
		return err
	}
	return nil
}

// Stop releases the subscription. Safe to call more than once.
func (l *ArticleList) Stop() {
	l.query.Stop()
}

// Refresh re-runs the query outside the change feed.
func (l *ArticleList) Refresh(ctx context.Context) bool {
	l.mu.Lock()
	l.state.begin()
	l.mu.Unlock()

	items, err := l.repo.List(ctx, l.filter)
	l.apply(items, err)
	return err == nil
}

// Articles returns the last successful result.
func (l *ArticleList) Articles() []models.Article {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Article, len(l.items))
	copy(out, l.items)
	return out
}

func (l *ArticleList) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Live reports whether the list is subscribed to changes.
func (l *ArticleList) Live() bool {
	return l.query.Live()
}

func (l *ArticleList) apply(items []models.Article, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state.fail(err, msgLoadList)
		return
	}
	l.items = items
	l.state = State{}
}
