// ABOUTME: Configuration loading and parsing for pricewise
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Checkpoint backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config represents the complete pricewise configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Search     SearchConfig     `yaml:"search" toml:"search"`
	Agent      AgentConfig      `yaml:"agent" toml:"agent"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr" toml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// CheckpointConfig selects where conversation state is persisted
type CheckpointConfig struct {
	Backend     string `yaml:"backend" toml:"backend"` // memory, sqlite, postgres
	Path        string `yaml:"path" toml:"path"`       // sqlite database file
	PostgresURI string `yaml:"postgres_uri" toml:"postgres_uri"`
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Model      string `yaml:"model" toml:"model"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`
}

// SearchConfig holds Tavily search configuration
type SearchConfig struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	MaxResults int    `yaml:"max_results" toml:"max_results"`
	Topic      string `yaml:"topic" toml:"topic"`

	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl"`
}

// AgentConfig holds runtime behavior
type AgentConfig struct {
	SystemPrompt         string   `yaml:"system_prompt" toml:"system_prompt"`
	KeepRecent           int      `yaml:"keep_recent" toml:"keep_recent"`
	MaxSteps             int      `yaml:"max_steps" toml:"max_steps"`
	InterruptBeforeTools bool     `yaml:"interrupt_before_tools" toml:"interrupt_before_tools"`
	RequireApproval      []string `yaml:"require_approval" toml:"require_approval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// TracingConfig holds OTLP trace export configuration
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           "0.0.0.0:8000",
			AllowedOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeoutRaw: "10s",
		},
		Checkpoint: CheckpointConfig{
			Backend: BackendSQLite,
			Path:    "./data/pricewise.db",
		},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
		},
		Search: SearchConfig{
			MaxResults:  5,
			Topic:       "general",
			CacheTTLRaw: "10m",
		},
		Agent: AgentConfig{
			KeepRecent:      5,
			MaxSteps:        25,
			RequireApproval: []string{"search_product", "add_to_wishlist"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "pricewise",
		},
	}
}

// DefaultPath returns the first configuration file that exists, or "" when
// none does. Priority: PRICEWISE_CONFIG > ./pricewise.yaml > ./pricewise.toml >
// $XDG_CONFIG_HOME/pricewise/config.yaml
func DefaultPath() string {
	if p := os.Getenv("PRICEWISE_CONFIG"); p != "" {
		return p
	}
	candidates := []string{"pricewise.yaml", "pricewise.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "pricewise", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides and validates the result. An empty path loads
// defaults and environment only. Environment variables in the format
// ${VAR_NAME} inside the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg, os.Getenv)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, data string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(data, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(data), cfg)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the environment variables the deployment scripts set.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PRICEWISE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := getenv("PRICEWISE_DB_PATH"); v != "" {
		cfg.Checkpoint.Path = v
	}
	backendSet := false
	if v := getenv("CHECKPOINT_POSTGRES_URI"); v != "" {
		cfg.Checkpoint.PostgresURI = v
	}
	if v := getenv("CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoint.Backend = strings.ToLower(v)
		backendSet = true
	}
	if ok, _ := strconv.ParseBool(getenv("USE_MEMORY_SAVER")); ok {
		cfg.Checkpoint.Backend = BackendMemory
		backendSet = true
	}
	// a connection string alone selects postgres
	if !backendSet && getenv("CHECKPOINT_POSTGRES_URI") != "" {
		cfg.Checkpoint.Backend = BackendPostgres
	}

	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := getenv("PRICEWISE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Checkpoint.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Checkpoint.PostgresURI == "" {
			return fmt.Errorf("checkpoint.postgres_uri (or CHECKPOINT_POSTGRES_URI) is required for the postgres backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend %q must be one of memory, sqlite, postgres", c.Checkpoint.Backend)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key (or OPENAI_API_KEY) is required")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key (or TAVILY_API_KEY) is required")
	}

	if c.Agent.KeepRecent < 0 {
		return fmt.Errorf("agent.keep_recent must not be negative")
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent.max_steps must not be negative")
	}
	if c.Search.MaxResults < 0 || c.Search.MaxResults > 20 {
		return fmt.Errorf("search.max_results must be between 0 and 20")
	}

	if !slices.Contains([]string{"", "text", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Search.CacheTTLRaw != "" {
		cfg.Search.CacheTTL, err = time.ParseDuration(cfg.Search.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache_ttl %q: %w", cfg.Search.CacheTTLRaw, err)
		}
	}

	return nil
}
