package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. os.Args is
// filtered to the flags handled here with flagx.FilterArgs so the JSON
// file flag does not trip the parser.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-u", "-k", "-d", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServiceURL, "u", cfg.ServiceURL, "service URL")
	fs.StringVar(&cfg.APIKey, "k", cfg.APIKey, "public API key")
	fs.StringVar(&cfg.SessionDBPath, "d", cfg.SessionDBPath, "local session database")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
