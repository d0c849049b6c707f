package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/vulnblog/internal/client/config"
	"github.com/dmitrijs2005/vulnblog/internal/client/controllers"
	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform/supabase"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/articles"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/vulnblog/internal/client/session"
	"github.com/dmitrijs2005/vulnblog/internal/client/storage"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

type App struct {
	logger   logging.Logger
	sessions *session.Manager
	articles articles.Repository
	profiles profiles.Repository
	changes  platform.Changes
	auth     *controllers.Auth
	reader   *bufio.Reader
	out      io.Writer
	db       *sql.DB

	// outMu serialises writes from live views with the REPL.
	outMu sync.Mutex
	// listed holds the ids printed by the last list, for short-id lookup.
	listed []string
}

// NewApp opens the local session store and connects to the platform.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	db, err := storage.Open(ctx, c.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	client, err := supabase.New(supabase.Options{
		URL:        c.ServiceURL,
		APIKey:     c.APIKey,
		HTTPClient: &http.Client{Timeout: c.RequestTimeout},
		Logger:     logger,
		S3Region:   c.S3Region,

		S3AccessKeyID:     c.S3AccessKeyID,
		S3SecretAccessKey: c.S3SecretAccessKey,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mgr := session.New(client, credentials.NewSQLiteRepository(db), session.WithLogger(logger))
	app := newApp(mgr, client.WithTokens(mgr), logger, bufio.NewReader(os.Stdin), os.Stdout)
	app.db = db
	return app, nil
}

// remote is what the repositories and live views need from the platform.
type remote interface {
	platform.Tables
	platform.Blobs
	platform.Changes
}

func newApp(mgr *session.Manager, conn remote, logger logging.Logger, reader *bufio.Reader, out io.Writer) *App {
	pr := profiles.NewRemoteRepository(conn, conn)
	mgr.SetProfileCreator(pr)

	return &App{
		logger:   logger,
		sessions: mgr,
		articles: articles.NewRemoteRepository(conn),
		profiles: pr,
		changes:  conn,
		auth:     controllers.NewAuth(mgr, logger),
		reader:   reader,
		out:      out,
	}
}

// Run starts the session watcher and the REPL and returns when the user
// exits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return a.sessions.Watch(runCtx)
	})

	ids, unsubscribe := a.sessions.Subscribe()
	g.Go(func() error {
		defer unsubscribe()
		return a.followIdentity(runCtx, ids)
	})

	g.Go(func() error {
		defer stop()
		printlnFn("Bienvenue sur VulnBlog (tapez 'help' pour les commandes)")
		runREPL(runCtx, a, func() string { return a.getStatus(runCtx) }, a.reader)
		return nil
	})

	return g.Wait()
}

func (a *App) followIdentity(ctx context.Context, ids <-chan *models.Identity) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ids:
			if !ok {
				return nil
			}
			if id == nil {
				a.logger.Info(ctx, "signed out")
				continue
			}
			a.logger.Info(ctx, "signed in", "email", id.Email)
		}
	}
}

// Close releases the session store. Safe to call more than once.
func (a *App) Close() error {
	db := a.db
	a.db = nil
	if db == nil {
		return nil
	}
	return db.Close()
}

func (a *App) isLoggedIn(ctx context.Context) bool {
	return a.sessions.CurrentIdentity(ctx) != nil
}

func (a *App) getStatus(ctx context.Context) string {
	id := a.sessions.CurrentIdentity(ctx)
	if id == nil {
		return ""
	}
	return fmt.Sprintf("(%s) ", id.Email)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
