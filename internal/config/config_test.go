package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "k"
	cfg.Search.APIKey = "s"
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: ark
  api_key: from-file
search:
  provider: tavily
  api_key: search-key
pipeline:
  slides_dir: out/slides
  theme: slate
export:
  scale: 2
  settle_delay: 500ms
cache:
  driver: memory
`), 0o644))

	t.Setenv("ARK_API_KEY", "from-env")
	t.Setenv("ARK_MOCK", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "out/slides", cfg.Pipeline.SlidesDir)
	assert.Equal(t, "slate", cfg.Pipeline.Theme)
	assert.Equal(t, 2, cfg.Export.Scale)
	assert.Equal(t, 500*time.Millisecond, cfg.Export.SettleDelay)
	// untouched defaults survive
	assert.Equal(t, 1280, cfg.Export.Width)
	assert.Equal(t, "presentation.pdf", cfg.Pipeline.ArtifactName)
}

func TestMockModeNeedsNoKeys(t *testing.T) {
	t.Setenv("ARK_MOCK", "1")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "mock", cfg.Search.Provider)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown llm", func(c *Config) { c.LLM.Provider = "other" }},
		{"max slides above cap", func(c *Config) { c.Pipeline.MaxSlides = 13 }},
		{"request bounds inverted", func(c *Config) { c.Pipeline.MinRequest = 30 }},
		{"zero canvas", func(c *Config) { c.Export.Width = 0 }},
		{"scale", func(c *Config) { c.Export.Scale = 0 }},
		{"cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM.Provider = "mock"
			cfg.Search.Provider = "mock"
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInitLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	closer, err := InitLogging(LogConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })
	require.NoError(t, closer.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = InitLogging(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
