package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	loader := NewLoader("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"all"}, cfg.Privacy.Categories)
	assert.True(t, cfg.Privacy.PreserveGrammar)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Empty(t, loader.ConfigFile())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
privacy:
  categories: [name, id]
  preserve_grammar: false
sessions:
  ttl: 5m
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"name", "id"}, cfg.Privacy.Categories)
	assert.False(t, cfg.Privacy.PreserveGrammar)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched sections keep their defaults
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ANONYMIZER_SERVER_PORT", "7070")
	t.Setenv("ANONYMIZER_LOGGING_LEVEL", "warn")

	path := writeConfig(t, "server:\n  read_timeout: 10s\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero session ttl", func(c *Config) { c.Sessions.TTL = 0 }},
		{"zero rate", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }},
		{"cache without url", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisURL = "" }},
		{"audit without url", func(c *Config) { c.Audit.Enabled = true; c.Audit.DatabaseURL = "" }},
		{"ner without model", func(c *Config) { c.NER.Enabled = true; c.NER.ModelPath = "" }},
		{"ner without labels", func(c *Config) { c.NER.Enabled = true; c.NER.Labels = nil }},
		{"zero workers", func(c *Config) { c.Batch.WorkerCount = 0 }},
	}

	assert.NoError(t, validateConfig(GetDefaults()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: verbose\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
