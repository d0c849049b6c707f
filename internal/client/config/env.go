package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables, first match wins. The VITE_ names are what the
// web build of the blog uses, so an existing .env works unchanged.
var (
	envURL       = []string{"SUPABASE_URL", "VITE_SUPABASE_URL"}
	envKey       = []string{"SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"}
	envSessionDB = []string{"VULNBLOG_SESSION_DB"}
	envLogLevel  = []string{"VULNBLOG_LOG_LEVEL", "LOG_LEVEL"}
	envS3Region  = []string{"SUPABASE_S3_REGION"}
	envS3KeyID   = []string{"SUPABASE_S3_ACCESS_KEY_ID"}
	envS3Secret  = []string{"SUPABASE_S3_SECRET_ACCESS_KEY"}
)

var dotEnvFile = ".env"

// parseEnv loads .env when present, without overriding variables that are
// already set, then overlays cfg with the environment.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	setIf(&cfg.ServiceURL, lookup(envURL))
	setIf(&cfg.APIKey, lookup(envKey))
	setIf(&cfg.SessionDBPath, lookup(envSessionDB))
	setIf(&cfg.LogLevel, lookup(envLogLevel))
	setIf(&cfg.S3Region, lookup(envS3Region))
	setIf(&cfg.S3AccessKeyID, lookup(envS3KeyID))
	setIf(&cfg.S3SecretAccessKey, lookup(envS3Secret))
}

func lookup(names []string) string {
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok && v != "" {
			return v
		}
	}
	return ""
}
