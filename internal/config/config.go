package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`

	// Storage
	DatabasePath string `mapstructure:"database_path"`
	LibraryDir   string `mapstructure:"library_dir"`

	// Auth
	APIKey string `mapstructure:"bookshelf_api_key"`

	// External full-text search engine (optional)
	SearchURL    string `mapstructure:"search_url"`
	SearchAPIKey string `mapstructure:"search_api_key"`
	SearchIndex  string `mapstructure:"search_index"`

	// External TOC extraction service (optional)
	TOCServiceURL     string        `mapstructure:"toc_service_url"`
	TOCServiceTimeout time.Duration `mapstructure:"toc_service_timeout"`
	TOCServiceRetries int           `mapstructure:"toc_service_retries"`

	// Note generation: "anthropic", "openai" or "" to disable
	LLMProvider     string `mapstructure:"llm_provider"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIModel     string `mapstructure:"openai_model"`

	// Worker pool
	WorkerCount  int `mapstructure:"worker_count"`
	MaxQueueSize int `mapstructure:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `mapstructure:"job_ttl"`

	// Enrichment
	PDFFallbackPdftotext bool   `mapstructure:"pdf_fallback_pdftotext"`
	CoverLookup          bool   `mapstructure:"cover_lookup"`
	CoverLookupURL       string `mapstructure:"cover_lookup_url"`
}

var defaults = map[string]any{
	"port":                   "8090",
	"database_path":          "bookshelf.db",
	"library_dir":            "library",
	"search_index":           "books",
	"toc_service_timeout":    120 * time.Second,
	"toc_service_retries":    3,
	"anthropic_model":        "claude-sonnet-4-5-20250929",
	"openai_model":           "gpt-4o-mini",
	"worker_count":           4,
	"max_queue_size":         100,
	"max_upload_bytes":       int64(209715200), // 200MB
	"job_ttl":                time.Hour,
	"pdf_fallback_pdftotext": true,
	"cover_lookup":           true,
	"cover_lookup_url":       "https://openlibrary.org",
}

// Load reads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence. Environment
// variables use the upper-cased key, e.g. PORT or TOC_SERVICE_URL.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	// Keys without a default still need binding so AutomaticEnv sees them.
	for _, key := range []string{
		"bookshelf_api_key", "search_url", "search_api_key", "toc_service_url",
		"llm_provider", "anthropic_api_key", "openai_api_key",
	} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("bookshelf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 209715200
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.TOCServiceTimeout <= 0 {
		c.TOCServiceTimeout = 120 * time.Second
	}
	if c.TOCServiceRetries <= 0 {
		c.TOCServiceRetries = 3
	}
	if c.SearchIndex == "" {
		c.SearchIndex = "books"
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("BOOKSHELF_API_KEY is required")
	}
	switch c.LLMProvider {
	case "":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}
