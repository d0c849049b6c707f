package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears every variable the loader reads and points it at a .env
// file in a temp dir. The original environment is restored on cleanup.
func isolate(t *testing.T) string {
	t.Helper()
	origArgs := os.Args
	origDotEnv := dotEnvFile
	t.Cleanup(func() {
		os.Args = origArgs
		dotEnvFile = origDotEnv
	})

	for _, group := range [][]string{envURL, envKey, envSessionDB, envLogLevel, envS3Region, envS3KeyID, envS3Secret} {
		for _, name := range group {
			if v, ok := os.LookupEnv(name); ok {
				t.Cleanup(func() { _ = os.Setenv(name, v) })
			} else {
				t.Cleanup(func() { _ = os.Unsetenv(name) })
			}
			require.NoError(t, os.Unsetenv(name))
		}
	}

	dir := t.TempDir()
	dotEnvFile = filepath.Join(dir, ".env")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "vulnblog.db", c.SessionDBPath)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Empty(t, c.ServiceURL)
	assert.Empty(t, c.APIKey)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := isolate(t)
	path := writeTempJSON(t, dir, "cfg.json", map[string]any{
		"service_url":     "https://json.example",
		"api_key":         "json-key",
		"request_timeout": "5s",
		"log_level":       "info",
	})
	require.NoError(t, os.WriteFile(dotEnvFile, []byte("SUPABASE_ANON_KEY=dotenv-key\n"), 0o600))
	os.Args = []string{"vulnblog", "-c", path, "-l", "debug"}

	cfg := LoadConfig()

	assert.Equal(t, "https://json.example", cfg.ServiceURL)
	assert.Equal(t, "dotenv-key", cfg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "vulnblog.db", cfg.SessionDBPath)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingURL)
	require.ErrorIs(t, err, ErrMissingKey)

	cfg.ServiceURL = "https://x.supabase.co"
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrMissingKey)
	assert.NotErrorIs(t, err, ErrMissingURL)

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())
}
