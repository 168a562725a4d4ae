// Package config assembles the immutable configuration snapshot for a
// scout process. Values come from the environment, optionally overlaid on
// a YAML file named by SCOUT_CONFIG; the environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the reasoning model client.
type LLMConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	InferenceModel string        `yaml:"inference_model"`
	Timeout        time.Duration `yaml:"timeout"`
	AuxTimeout     time.Duration `yaml:"aux_timeout"`
}

// SearchConfig selects and configures the web-search backend.
type SearchConfig struct {
	Provider     string        `yaml:"provider"` // tavily or serpapi
	TavilyKey    string        `yaml:"tavily_key"`
	SerpAPIKey   string        `yaml:"serpapi_key"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ResearchConfig caps the agent loop. Zero means "no further cap": the
// intensity bucket alone decides.
type ResearchConfig struct {
	MaxSteps       int `yaml:"max_steps"`
	MaxWebSearches int `yaml:"max_web_searches"`
	MemoryWindow   int `yaml:"memory_window"`
}

// Config is the full process configuration snapshot.
type Config struct {
	Addr        string         `yaml:"addr"`
	DatabaseURL string         `yaml:"database_url"`
	Debug       bool           `yaml:"debug"`
	LLM         LLMConfig      `yaml:"llm"`
	Search      SearchConfig   `yaml:"search"`
	Research    ResearchConfig `yaml:"research"`
}

// Defaults returns the baseline configuration before any overlay.
func Defaults() Config {
	return Config{
		Addr: ":8080",
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    60 * time.Second,
			AuxTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			Provider:     "tavily",
			FetchTimeout: 15 * time.Second,
		},
		Research: ResearchConfig{
			MemoryWindow: 8,
		},
	}
}

// Load builds the configuration from the YAML overlay (if any) and the
// environment. It does not validate connectivity; callers decide what is
// fatal.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SCOUT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.LLM.InferenceModel == "" {
		cfg.LLM.InferenceModel = cfg.LLM.Model
	}
	if cfg.Research.MemoryWindow <= 0 {
		cfg.Research.MemoryWindow = 8
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "SCOUT_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setBool(&cfg.Debug, "SCOUT_DEBUG")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "OPENAI_MODEL")
	setString(&cfg.LLM.InferenceModel, "OPENAI_INFERENCE_MODEL")

	setString(&cfg.Search.Provider, "SEARCH_PROVIDER")
	setString(&cfg.Search.TavilyKey, "TAVILY_API_KEY")
	setString(&cfg.Search.SerpAPIKey, "SERPAPI_API_KEY")

	setInt(&cfg.Research.MemoryWindow, "CHAT_MEMORY_WINDOW")
	setInt(&cfg.Research.MaxSteps, "RESEARCH_MAX_STEPS")
	setInt(&cfg.Research.MaxWebSearches, "RESEARCH_MAX_WEB_SEARCHES")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
