// Package provision installs and checks the schema the client expects on
// the platform's Postgres database.
package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/dbx"
	"github.com/dmitrijs2005/vulnblog/internal/provision/migrations"
)

const realtimePublication = "supabase_realtime"

// Open connects with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUpContext and gooseDownContext are seams for testing goose.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
)

func setup() error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.SetDialect("pgx")
}

// RunMigrations applies every pending embedded migration.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	if err := gooseDownContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// Report is the outcome of Check.
type Report struct {
	// RowSecurity is keyed by table; false means RLS is off or the table is
	// missing.
	RowSecurity map[string]bool
	// Realtime is keyed by table; true when it is in the realtime publication.
	Realtime map[string]bool
	// AvatarBucket is true when the avatars bucket exists and is public.
	AvatarBucket bool
	// AuthorEmbed is true when the articles→profiles computed relationship
	// exists.
	AuthorEmbed bool
}

// Problems lists what is missing, in a stable order.
func (r *Report) Problems() []string {
	var out []string
	for _, t := range []string{platform.TableProfiles, platform.TableArticles} {
		if !r.RowSecurity[t] {
			out = append(out, fmt.Sprintf("table %s is missing or has row-level security disabled", t))
		}
	}
	if !r.AuthorEmbed {
		out = append(out, "function public.profiles(public.articles) is missing")
	}
	if !r.AvatarBucket {
		out = append(out, fmt.Sprintf("bucket %s is missing or not public", platform.AvatarBucket))
	}
	if !r.Realtime[platform.TableArticles] {
		out = append(out, fmt.Sprintf("table %s is not in publication %s", platform.TableArticles, realtimePublication))
	}
	return out
}

func (r *Report) OK() bool {
	return len(r.Problems()) == 0
}

const (
	rowSecurityQuery = `SELECT c.relrowsecurity
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public' AND c.relname = $1`

	embedQuery = `SELECT count(*)
FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = 'public' AND p.proname = 'profiles'`

	bucketQuery = `SELECT public FROM storage.buckets WHERE id = $1`

	realtimeQuery = `SELECT count(*) FROM pg_publication_tables
WHERE pubname = $1 AND schemaname = 'public' AND tablename = $2`
)

// Check inspects the catalog. Missing objects show up in the report; only
// failed queries are errors.
func Check(ctx context.Context, db dbx.DBTX) (*Report, error) {
	r := &Report{RowSecurity: map[string]bool{}, Realtime: map[string]bool{}}

	for _, t := range []string{platform.TableProfiles, platform.TableArticles} {
		var on bool
		err := db.QueryRowContext(ctx, rowSecurityQuery, t).Scan(&on)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to inspect table %s: %w", t, err)
		}
		r.RowSecurity[t] = on
	}

	var n int
	if err := db.QueryRowContext(ctx, embedQuery).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to inspect functions: %w", err)
	}
	r.AuthorEmbed = n > 0

	err := db.QueryRowContext(ctx, bucketQuery, platform.AvatarBucket).Scan(&r.AvatarBucket)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to inspect buckets: %w", err)
	}

	if err := db.QueryRowContext(ctx, realtimeQuery, realtimePublication, platform.TableArticles).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to inspect publication: %w", err)
	}
	r.Realtime[platform.TableArticles] = n > 0

	return r, nil
}
