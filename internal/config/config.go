// Package config loads and validates the agent subsystem configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all forumagent configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Master switch. When false no tasks are registered and all scheduler
	// operations are no-ops.
	Enabled bool `yaml:"enabled"`

	// Test mode substitutes short fixed intervals for all trigger
	// expressions so behavior can be verified without waiting for
	// real-world scheduled times.
	TestMode bool `yaml:"test_mode"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Q&A front-end
	QA QAConfig `yaml:"qa"`

	// Persistent forum store
	Store StoreConfig `yaml:"store"`

	// Illustrative images
	Images ImagesConfig `yaml:"images"`

	// Per-task trigger expressions
	Schedules SchedulesConfig `yaml:"schedules"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generative text service.
type LLMConfig struct {
	APIKey string `yaml:"api_key"`
	// DefaultModel is the tier used for games released before the
	// knowledge cutoff.
	DefaultModel string `yaml:"default_model"`
	// FreshModel is the newer-knowledge tier used for post-cutoff releases
	// and for games with an unknown release date.
	FreshModel string `yaml:"fresh_model"`
	// KnowledgeCutoff in YYYY-MM-DD form.
	KnowledgeCutoff string `yaml:"knowledge_cutoff"`
	Timeout         string `yaml:"timeout"`
	// ReleaseDates maps game title to YYYY-MM-DD release date.
	ReleaseDates map[string]string `yaml:"release_dates"`
}

// QAConfig configures the Q&A front-end endpoint.
type QAConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// StoreConfig configures the sqlite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ImagesConfig configures illustrative image discovery.
type ImagesConfig struct {
	Directory string `yaml:"directory"`
}

// SchedulesConfig holds the 5-field cron expressions for the named tasks.
// Invalid values are replaced with documented defaults at registration time.
type SchedulesConfig struct {
	AskQuestion string `yaml:"ask_question"`
	ForumPost   string `yaml:"forum_post"`
	Reply       string `yaml:"reply"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "forumagent",
		Version: "1.2.0",
		Enabled: true,
		LLM: LLMConfig{
			DefaultModel:    "gemini-2.0-flash",
			FreshModel:      "gemini-2.5-pro",
			KnowledgeCutoff: "2024-06-01",
			Timeout:         "45s",
		},
		QA: QAConfig{
			BaseURL: "http://localhost:8085",
			Timeout: "30s",
		},
		Store: StoreConfig{
			DatabasePath: ".forumagent/forum.db",
		},
		Images: ImagesConfig{
			Directory: "static/images/games",
		},
		Schedules: SchedulesConfig{
			AskQuestion: "15 9 * * *",
			ForumPost:   "30 13 * * *",
			Reply:       "45 17 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, layered over defaults. A missing file
// is not an error; environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override secrets and
// switches without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORUMAGENT_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FORUMAGENT_ENABLED"); v != "" {
		cfg.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("FORUMAGENT_TEST_MODE"); v != "" {
		cfg.TestMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("FORUMAGENT_DB_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v := os.Getenv("FORUMAGENT_QA_URL"); v != "" {
		cfg.QA.BaseURL = v
	}
}

// ValidExpression reports whether expr looks like a 5-field cron expression.
// The scheduler performs full parsing; this catches the common case of a
// value pasted from a 6-field (seconds-bearing) source.
func ValidExpression(expr string) bool {
	return len(strings.Fields(expr)) == 5
}
