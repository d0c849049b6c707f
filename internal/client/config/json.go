package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/vulnblog/internal/flagx"
	"github.com/dmitrijs2005/vulnblog/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Empty fields
// leave the current value alone.
type JsonConfig struct {
	ServiceURL     string          `json:"service_url"`
	APIKey         string          `json:"api_key"`
	SessionDBPath  string          `json:"session_db"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	LogLevel       string          `json:"log_level"`
	S3Region       string          `json:"s3_region"`

	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
}

// parseJson overlays cfg with the file named by -c or -config. It panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.ConfigFile(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIf(&cfg.ServiceURL, jc.ServiceURL)
	setIf(&cfg.APIKey, jc.APIKey)
	setIf(&cfg.SessionDBPath, jc.SessionDBPath)
	setIf(&cfg.LogLevel, jc.LogLevel)
	setIf(&cfg.S3Region, jc.S3Region)
	setIf(&cfg.S3AccessKeyID, jc.S3AccessKeyID)
	setIf(&cfg.S3SecretAccessKey, jc.S3SecretAccessKey)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
