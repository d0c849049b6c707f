package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/vulnblog/internal/dbx"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
	"github.com/dmitrijs2005/vulnblog/internal/provision"
)

func main() {
	var (
		dsn     = flag.String("dsn", "", "Postgres connection string (default: DATABASE_URL)")
		command = flag.String("command", "up", "Migration command (up, down, check)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Could not load .env file", "error", err)
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.NewTextLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dsn == "" {
		logger.Error(ctx, "no database: set DATABASE_URL or -dsn")
		os.Exit(1)
	}

	db, err := provision.Open(ctx, *dsn)
	if err != nil {
		logger.Error(ctx, "failed to connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *command {
	case "up":
		err = provision.RunMigrations(ctx, db)
	case "down":
		err = provision.Rollback(ctx, db)
	case "check":
		err = check(ctx, db, logger)
	default:
		logger.Error(ctx, "unknown command", "command", *command)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(ctx, "migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "done", "command", *command)
}

func check(ctx context.Context, db dbx.DBTX, logger logging.Logger) error {
	r, err := provision.Check(ctx, db)
	if err != nil {
		return err
	}
	for _, p := range r.Problems() {
		logger.Warn(ctx, "schema problem", "problem", p)
	}
	if !r.OK() {
		return errors.New("schema is incomplete, run with -command up")
	}
	return nil
}
