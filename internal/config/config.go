// Package config loads deckflow settings from YAML, .env and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deckflow/internal/model"
)

// Config holds all configuration for a deckflow process.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Export   ExportConfig   `yaml:"export"`
	Cache    CacheConfig    `yaml:"cache"`
	Runs     RunsConfig     `yaml:"runs"`
	Publish  PublishConfig  `yaml:"publish"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig selects the chat model used by every generation stage.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // ark or mock
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Region      string        `yaml:"region"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
}

// SearchConfig configures the research backend.
type SearchConfig struct {
	Provider     string        `yaml:"provider"` // tavily or mock
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	WebResults   int           `yaml:"web_results"`
	ImageResults int           `yaml:"image_results"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	SlidesDir     string `yaml:"slides_dir"`
	ArtifactName  string `yaml:"artifact_name"`
	MaxSlides     int    `yaml:"max_slides"`
	MinRequest    int    `yaml:"min_request"`
	MaxRequest    int    `yaml:"max_request"`
	IsolateRuns   bool   `yaml:"isolate_runs"`
	MaxFileBytes  int64  `yaml:"max_file_bytes"`
	Theme         string `yaml:"theme"`
	UseCopywriter bool   `yaml:"use_copywriter"`
}

// ExportConfig holds capture and assembly settings.
type ExportConfig struct {
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	Scale            int           `yaml:"scale"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	CaptureTimeout   time.Duration `yaml:"capture_timeout"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	ProbeRetries     int           `yaml:"probe_retries"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	BrowserBin       string        `yaml:"browser_bin"`
	NoSandbox        bool          `yaml:"no_sandbox"`
}

// CacheConfig selects where asset reachability decisions are remembered.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RunsConfig locates the run ledger.
type RunsConfig struct {
	DBPath string `yaml:"db_path"`
}

// PublishConfig enables uploading the exported artifact to GCS.
type PublishConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration suitable for local runs.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ark",
			Model:       "ep-20250220181854-c8s82",
			Region:      "cn-beijing",
			Timeout:     120 * time.Second,
			Temperature: 0.7,
		},
		Search: SearchConfig{
			Provider:     "tavily",
			BaseURL:      "https://api.tavily.com",
			WebResults:   2,
			ImageResults: 5,
			Timeout:      30 * time.Second,
			Retries:      2,
		},
		Pipeline: PipelineConfig{
			SlidesDir:     "slides",
			ArtifactName:  "presentation.pdf",
			MaxSlides:     model.MaxSlides,
			MinRequest:    5,
			MaxRequest:    20,
			MaxFileBytes:  25 << 20,
			Theme:         "ocean",
			UseCopywriter: true,
		},
		Export: ExportConfig{
			Width:            model.CanvasWidth,
			Height:           model.CanvasHeight,
			Scale:            3,
			SettleDelay:      2 * time.Second,
			CaptureTimeout:   30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			ProbeRetries:     1,
			ProbeConcurrency: 8,
			NoSandbox:        true,
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    10 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "deckflow:probe:",
			},
		},
		Runs: RunsConfig{
			DBPath: "deckflow.db",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "app.log",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.LLM.Provider != "ark" && c.LLM.Provider != "mock" {
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Provider == "ark" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required for the ark provider (set ARK_API_KEY or ARK_MOCK=1)")
	}
	if c.Search.Provider != "tavily" && c.Search.Provider != "mock" {
		return fmt.Errorf("invalid search provider: %s", c.Search.Provider)
	}
	if c.Search.Provider == "tavily" && c.Search.APIKey == "" {
		return fmt.Errorf("search api key is required for the tavily provider")
	}
	if c.Pipeline.SlidesDir == "" {
		return fmt.Errorf("pipeline slides_dir must be set")
	}
	if c.Pipeline.MaxSlides < model.MinSlides || c.Pipeline.MaxSlides > model.MaxSlides {
		return fmt.Errorf("pipeline max_slides must be between %d and %d", model.MinSlides, model.MaxSlides)
	}
	if c.Pipeline.MinRequest < model.MinSlides || c.Pipeline.MinRequest > c.Pipeline.MaxRequest {
		return fmt.Errorf("invalid request bounds [%d,%d]", c.Pipeline.MinRequest, c.Pipeline.MaxRequest)
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export canvas must be positive, got %dx%d", c.Export.Width, c.Export.Height)
	}
	if c.Export.Scale < 1 || c.Export.Scale > 12 {
		return fmt.Errorf("export scale must be between 1 and 12, got %d", c.Export.Scale)
	}
	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ARK_CHAT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.ToLower(os.Getenv("ARK_MOCK")); v == "1" || v == "true" {
		cfg.LLM.Provider = "mock"
		cfg.Search.Provider = "mock"
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("DECKFLOW_SLIDES_DIR"); v != "" {
		cfg.Pipeline.SlidesDir = v
	}
	if v := os.Getenv("DECKFLOW_EXPORT_SCALE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Export.Scale = n
		}
	}
	if v := os.Getenv("ROD_BROWSER_BIN"); v != "" {
		cfg.Export.BrowserBin = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("DECKFLOW_DB"); v != "" {
		cfg.Runs.DBPath = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		cfg.Publish.Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}
