package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"service_url":     "https://abcd.supabase.co",
		"api_key":         "anon",
		"request_timeout": "10s",
		"s3_region":       "eu-west-3",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{LogLevel: "warn"}
		parseJson(cfg)

		assert.Equal(t, "https://abcd.supabase.co", cfg.ServiceURL)
		assert.Equal(t, "anon", cfg.APIKey)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
		assert.Equal(t, "eu-west-3", cfg.S3Region)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			ServiceURL:     "defaults",
			RequestTimeout: 42 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults", cfg.ServiceURL)
		assert.Equal(t, 42*time.Second, cfg.RequestTimeout)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
