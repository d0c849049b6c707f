package controllers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/articles"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// Tab of the dashboard.
type Tab int

const (
	TabArticles Tab = iota
	TabCreate
	TabProfile
)

func (t Tab) String() string {
	switch t {
	case TabArticles:
		return "Mes Articles"
	case TabCreate:
		return "Créer un Article"
	case TabProfile:
		return "Mon Profil"
	default:
		return "?"
	}
}

// Dashboard is the signed-in area: the live list of every article the
// caller can see (drafts included), the create form and the profile editor.
type Dashboard struct {
	sessions Sessions
	articles articles.Repository
	profiles profiles.Repository
	changes  platform.Changes
	logger   logging.Logger

	mu       sync.Mutex
	identity *models.Identity
	tab      Tab
	state    State
	list     *ArticleList
	profile  *Profile
}

func NewDashboard(sessions Sessions, a articles.Repository, p profiles.Repository, changes platform.Changes, logger logging.Logger) *Dashboard {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dashboard{sessions: sessions, articles: a, profiles: p, changes: changes, logger: logger}
}

// Open starts the dashboard on the articles tab. Without an identity it
// returns ErrSignInRequired and nothing is started. A list that fails to
// load reports it through List().State(); the other tabs stay usable.
func (d *Dashboard) Open(ctx context.Context, onChange func()) error {
	id := d.sessions.CurrentIdentity(ctx)
	if id == nil {
		return ErrSignInRequired
	}

	d.Close()

	list := NewArticleList(d.articles, d.changes, models.ArticleFilter{IncludeDrafts: true}, d.logger)
	d.mu.Lock()
	d.identity = id
	d.tab = TabArticles
	d.state = State{}
	d.list = list
	d.profile = NewProfile(d.profiles, id.ID, d.logger)
	d.mu.Unlock()

	if err := list.Start(ctx, onChange); err != nil {
		d.logger.Warn(ctx, "dashboard list failed to start", "error", err)
	}
	return nil
}

// Close stops the live list. Safe to call more than once.
func (d *Dashboard) Close() {
	d.mu.Lock()
	list := d.list
	d.mu.Unlock()
	if list != nil {
		list.Stop()
	}
}

func (d *Dashboard) Tab() Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tab
}

func (d *Dashboard) SetTab(t Tab) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tab = t
	if t == TabCreate {
		d.state = State{}
	}
}

// List is nil before Open.
func (d *Dashboard) List() *ArticleList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.list
}

// Profile is nil before Open.
func (d *Dashboard) Profile() *Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profile
}

// State of the create form.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Create publishes or drafts a new article under the caller's name. On
// success the dashboard goes back to the articles tab and refreshes it.
func (d *Dashboard) Create(ctx context.Context, f ArticleForm) bool {
	d.mu.Lock()
	if d.identity == nil {
		defer d.mu.Unlock()
		return d.state.fail(ErrSignInRequired, msgCreate)
	}
	authorID, list := d.identity.ID, d.list
	d.state.begin()
	d.mu.Unlock()

	a, err := d.articles.Create(ctx, authorID, f.Title, f.Body, f.Published)
	if err != nil {
		d.logger.Debug(ctx, "create article failed", "error", err)
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.state.fail(err, msgCreate)
	}
	d.logger.Info(ctx, "article created", "id", a.ID, "published", a.Published)

	d.mu.Lock()
	d.state.succeed(MsgArticleCreated)
	d.tab = TabArticles
	d.mu.Unlock()

	if list != nil {
		list.Refresh(ctx)
	}
	return true
}
