// Package config loads and validates the Sentinel gateway configuration.
//
// DESIGN: A single YAML file describes the server, the upstream providers,
// and the interception tunables. Environment references in the form
// ${VAR} or ${VAR:-default} are expanded before parsing so credentials
// never need to live in the file itself. The resulting Config is immutable
// after Load and shared read-only across all request handlers.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "1h" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProviderType selects how requests are forwarded to a provider.
type ProviderType string

const (
	// ProviderOpenAI is any OpenAI-compatible HTTP endpoint (OpenAI, Groq,
	// Together, vLLM, ...). Auth is a bearer API key.
	ProviderOpenAI ProviderType = "openai"
	// ProviderBedrock is an AWS Bedrock runtime endpoint. Requests are
	// signed with SigV4 instead of carrying an API key.
	ProviderBedrock ProviderType = "bedrock"
)

// ProviderConfig describes one upstream LLM backend.
// Immutable after load; provider selection never mutates it.
type ProviderConfig struct {
	Type          ProviderType `yaml:"type"`
	Endpoint      string       `yaml:"endpoint"`
	APIKey        string       `yaml:"api_key"`
	Region        string       `yaml:"region"`
	ModelPrefixes []string     `yaml:"model_prefixes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen       string   `yaml:"listen"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// TerminalPolicy controls what happens to a session after an intervention
// marked it terminal.
type TerminalPolicy string

const (
	// TerminalBlock short-circuits every later request on the session with
	// a blocking response.
	TerminalBlock TerminalPolicy = "block"
	// TerminalReset clears the session history on the next request and
	// lets it proceed fresh.
	TerminalReset TerminalPolicy = "reset"
)

// SessionConfig holds session store settings.
type SessionConfig struct {
	HistoryLimit   int            `yaml:"history_limit"`
	TTL            Duration       `yaml:"ttl"`
	MaxSessions    int            `yaml:"max_sessions"`
	TerminalPolicy TerminalPolicy `yaml:"terminal_policy"`
	Backend        string         `yaml:"backend"` // "memory" (default) or "redis"
	RedisURL       string         `yaml:"redis_url"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Model    string   `yaml:"model"`
	APIKey   string   `yaml:"api_key"`
	Timeout  Duration `yaml:"timeout"`
}

// LoopConfig holds loop detection tunables.
type LoopConfig struct {
	Window    int             `yaml:"window"`
	Threshold float64         `yaml:"threshold"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// LeakConfig holds the leak scanner denylist. Patterns are regular
// expressions matched against both the inbound prompt and provider output.
type LeakConfig struct {
	Patterns []string `yaml:"patterns"`
}

// CostConfig holds the economic throttle settings.
type CostConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SessionCap  float64 `yaml:"session_cap"`
	SpikeFactor float64 `yaml:"spike_factor"`
	SpikeFloor  float64 `yaml:"spike_floor"`
}

// MonitoringConfig holds observability settings.
type MonitoringConfig struct {
	AuditPath string `yaml:"audit_path"` // sqlite file; empty disables auditing
	Metrics   bool   `yaml:"metrics"`    // expose /metrics (Prometheus)
}

// Config is the top-level gateway configuration.
type Config struct {
	Server          ServerConfig              `yaml:"server"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	DefaultProvider string                    `yaml:"default_provider"`
	Session         SessionConfig             `yaml:"session"`
	Loop            LoopConfig                `yaml:"loop"`
	Leak            LeakConfig                `yaml:"leak"`
	Cost            CostConfig                `yaml:"cost"`
	Monitoring      MonitoringConfig          `yaml:"monitoring"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		groups := envRefPattern.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[3]
	})
}

// Load reads, expands, parses, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses config bytes. Split from Load so tests can feed YAML directly.
func Parse(data []byte) (*Config, error) {
	expanded := ExpandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListenAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(DefaultServerReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(DefaultServerWriteTimeout)
	}
	if c.Session.HistoryLimit <= 0 {
		c.Session.HistoryLimit = DefaultHistoryLimit
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = Duration(DefaultSessionTTL)
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = DefaultMaxSessions
	}
	if c.Session.TerminalPolicy == "" {
		c.Session.TerminalPolicy = TerminalBlock
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Loop.Window <= 0 {
		c.Loop.Window = DefaultLoopWindow
	}
	if c.Loop.Threshold <= 0 {
		c.Loop.Threshold = DefaultLoopThreshold
	}
	if c.Loop.Embedding.Model == "" {
		c.Loop.Embedding.Model = DefaultEmbeddingModel
	}
	if c.Loop.Embedding.Timeout == 0 {
		c.Loop.Embedding.Timeout = Duration(DefaultEmbeddingTimeout)
	}
	if c.Cost.SessionCap <= 0 {
		c.Cost.SessionCap = DefaultSessionCostCap
	}
	if c.Cost.SpikeFactor <= 0 {
		c.Cost.SpikeFactor = DefaultSpikeFactor
	}
	if c.Cost.SpikeFloor <= 0 {
		c.Cost.SpikeFloor = DefaultSpikeFloor
	}
	for name, p := range c.Providers {
		if p.Type == "" {
			p.Type = ProviderOpenAI
			c.Providers[name] = p
		}
	}
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	for name, p := range c.Providers {
		if p.Endpoint == "" {
			return fmt.Errorf("config: provider %q has no endpoint", name)
		}
		switch p.Type {
		case ProviderOpenAI, ProviderBedrock:
		default:
			return fmt.Errorf("config: provider %q has unknown type %q", name, p.Type)
		}
		if p.Type == ProviderBedrock && p.Region == "" {
			return fmt.Errorf("config: bedrock provider %q requires a region", name)
		}
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("config: default_provider %q is not configured", c.DefaultProvider)
		}
	}
	switch c.Session.TerminalPolicy {
	case TerminalBlock, TerminalReset:
	default:
		return fmt.Errorf("config: terminal_policy must be %q or %q", TerminalBlock, TerminalReset)
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("config: session backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Loop.Threshold >= 1.0 {
		return fmt.Errorf("config: loop threshold must be below 1.0")
	}
	return nil
}
