// Package config loads runtime configuration for the VulnBlog CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. A .env file in the working directory, then the process environment.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-u string   service URL (SUPABASE_URL)
//	-k string   public API key (SUPABASE_ANON_KEY)
//	-d string   path of the local session database
//	-t int      request timeout (seconds)
//	-l string   log level: debug, info, warn, error
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "30s" or integer
// nanoseconds:
//
//	{
//	  "service_url": "https://abcd.supabase.co",
//	  "api_key": "eyJ...",
//	  "session_db": "vulnblog.db",
//	  "request_timeout": "30s",
//	  "log_level": "warn",
//	  "s3_region": "us-east-1",
//	  "s3_access_key_id": "",
//	  "s3_secret_access_key": ""
//	}
package config

import (
	"errors"
	"time"
)

type Config struct {
	ServiceURL     string
	APIKey         string
	SessionDBPath  string
	RequestTimeout time.Duration
	LogLevel       string
	S3Region       string

	// Optional project S3 access keys for avatar uploads.
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// LoadDefaults populates c with sensible defaults. There is no default
// service URL or API key.
func (c *Config) LoadDefaults() {
	c.SessionDBPath = "vulnblog.db"
	c.RequestTimeout = 30 * time.Second
	c.LogLevel = "warn"
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays the JSON
// file, the environment and the command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}

var (
	ErrMissingURL = errors.New("service URL is not set (SUPABASE_URL or -u)")
	ErrMissingKey = errors.New("API key is not set (SUPABASE_ANON_KEY or -k)")
)

// Validate reports missing connection parameters. The client cannot start
// without them.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceURL == "" {
		errs = append(errs, ErrMissingURL)
	}
	if c.APIKey == "" {
		errs = append(errs, ErrMissingKey)
	}
	return errors.Join(errs...)
}
