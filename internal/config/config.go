package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// PromptsConfig holds fmt templates for every LLM call. Empty values fall back
// to the built-in defaults of the component that owns the prompt.
type PromptsConfig struct {
	EntityColumn      string `toml:"entity_column"`
	DescriptiveColumn string `toml:"descriptive_column"`
	LLMFormat         string `toml:"llm_format"`
	ColumnAnalysis    string `toml:"column_analysis"`
	TableSummary      string `toml:"table_summary"`
}

type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Temperature float32 `toml:"temperature"`
}

type ConcurrencyConfig struct {
	StrategyWorkers        int `toml:"strategy_workers"`
	StrategyRetries        int `toml:"strategy_retries"`
	StrategyTimeoutSeconds int `toml:"strategy_timeout_seconds"`
	LLMRetries             int `toml:"llm_retries"`
	LLMTimeoutSeconds      int `toml:"llm_timeout_seconds"`
}

func (c ConcurrencyConfig) StrategyTimeout() time.Duration {
	return time.Duration(c.StrategyTimeoutSeconds) * time.Second
}

func (c ConcurrencyConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

type MatchingConfig struct {
	Threshold float64 `toml:"threshold"`
}

type AnalysisConfig struct {
	SampleRows int  `toml:"sample_rows"`
	UseLLM     bool `toml:"use_llm"`
}

// StoreConfig selects where the target table lives. For the csv driver the
// table is a file path; for database drivers it is a table name.
type StoreConfig struct {
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
	Table    string `toml:"table"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	JSON       bool   `toml:"json"`
	File       string `toml:"file"`
	LLMCallDir string `toml:"llm_call_dir"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Matching    MatchingConfig    `toml:"matching"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Store       StoreConfig       `toml:"store"`
	Logging     LoggingConfig     `toml:"logging"`
	Server      ServerConfig      `toml:"server"`
	Prompts     PromptsConfig     `toml:"prompts"`
}

var (
	providers = []string{"openai", "claude", "gemini", "ollama"}
	drivers   = []string{"csv", "sqlite", "mysql", "postgres", "memgraph"}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
		},
		Concurrency: ConcurrencyConfig{
			StrategyWorkers:        5,
			StrategyRetries:        3,
			StrategyTimeoutSeconds: 30,
			LLMRetries:             2,
			LLMTimeoutSeconds:      30,
		},
		Matching: MatchingConfig{Threshold: 1.0},
		Analysis: AnalysisConfig{SampleRows: 5, UseLLM: true},
		Store:    StoreConfig{Driver: "csv"},
		Logging:  LoggingConfig{Level: "info"},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Load reads a TOML file on top of Default. Keys that do not map to a field
// are rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is non-empty and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("INTABULAR_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("INTABULAR_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("INTABULAR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INTABULAR_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.JSON = b
		}
	}
	if v := os.Getenv("INTABULAR_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("INTABULAR_LLM_LOG_DIR"); v != "" {
		c.Logging.LLMCallDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
}

func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if !contains(providers, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be one of: %s", strings.Join(providers, ", "))
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if !contains(drivers, c.Store.Driver) {
		return fmt.Errorf("store.driver must be one of: %s", strings.Join(drivers, ", "))
	}
	if c.Concurrency.StrategyWorkers <= 0 {
		return fmt.Errorf("concurrency.strategy_workers must be positive")
	}
	if c.Concurrency.StrategyRetries < 0 || c.Concurrency.LLMRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if c.Concurrency.StrategyTimeoutSeconds <= 0 || c.Concurrency.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Matching.Threshold <= 0 {
		return fmt.Errorf("matching.threshold must be positive")
	}
	if c.Analysis.SampleRows <= 0 {
		return fmt.Errorf("analysis.sample_rows must be positive")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
