package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration shared by all interceptor variants.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithName("checkout-frontend"),
//	    core.WithDiscoveryBudget(3, 250*time.Millisecond),
//	)
type Config struct {
	// Name identifies the host application in diagnostics.
	Name string `json:"name" yaml:"name"`

	// Discovery configuration
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`

	// Breadcrumb configuration
	Breadcrumbs BreadcrumbConfig `json:"breadcrumbs" yaml:"breadcrumbs"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// DiscoveryConfig controls the lazy-bind retry loop. MaxAttempts counts
// every poll including the immediate one, so the default budget is one
// immediate poll plus four scheduled retries.
type DiscoveryConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `json:"delay" yaml:"delay"`
}

// UnmarshalYAML accepts delay values written as duration strings
// ("500ms", "2s") rather than raw nanosecond counts.
func (d *DiscoveryConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Enabled     *bool  `yaml:"enabled"`
		MaxAttempts *int   `yaml:"max_attempts"`
		Delay       string `yaml:"delay"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		d.Enabled = *raw.Enabled
	}
	if raw.MaxAttempts != nil {
		d.MaxAttempts = *raw.MaxAttempts
	}
	if raw.Delay != "" {
		parsed, err := time.ParseDuration(raw.Delay)
		if err != nil {
			return fmt.Errorf("invalid discovery delay %q: %w", raw.Delay, err)
		}
		d.Delay = parsed
	}
	return nil
}

// BreadcrumbConfig controls how breadcrumb payloads are captured.
type BreadcrumbConfig struct {
	// CloneData deep-copies action/state payloads at capture time so the
	// host mutating them later cannot corrupt the recorded trail.
	CloneData bool `json:"clone_data" yaml:"clone_data"`
}

// TelemetryConfig enables metric emission for interceptor events.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// Option is a functional option for Config
type Option func(*Config)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Name: "statetap",
		Discovery: DiscoveryConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Delay:       500 * time.Millisecond,
		},
		Breadcrumbs: BreadcrumbConfig{
			CloneData: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "statetap",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// NewConfig creates a Config applying defaults, then environment
// variables, then the provided options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays STATETAP_* environment variables
func (c *Config) applyEnvironment() {
	if v := os.Getenv("STATETAP_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("STATETAP_DISCOVERY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Discovery.Enabled = b
		}
	}
	if v := os.Getenv("STATETAP_DISCOVERY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Discovery.MaxAttempts = n
		}
	}
	if v := os.Getenv("STATETAP_DISCOVERY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Discovery.Delay = d
		}
	}
	if v := os.Getenv("STATETAP_TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("STATETAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToUpper(v)
	}
	if v := os.Getenv("STATETAP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Discovery.MaxAttempts < 0 {
		return fmt.Errorf("discovery max_attempts must be non-negative, got %d: %w",
			c.Discovery.MaxAttempts, ErrInvalidConfiguration)
	}
	if c.Discovery.Delay <= 0 {
		return fmt.Errorf("discovery delay must be positive, got %v: %w",
			c.Discovery.Delay, ErrInvalidConfiguration)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q: %w", c.Logging.Format, ErrInvalidConfiguration)
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file and applies
// it on top of the receiver.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config extension %q: %w", ext, ErrInvalidConfiguration)
	}

	return c.Validate()
}

// Functional options

// WithName sets the host application name used in diagnostics
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithDiscoveryBudget sets the lazy-bind retry budget
func WithDiscoveryBudget(maxAttempts int, delay time.Duration) Option {
	return func(c *Config) {
		c.Discovery.MaxAttempts = maxAttempts
		c.Discovery.Delay = delay
	}
}

// WithDiscoveryDisabled turns off automatic store discovery; the host
// must bind targets explicitly via SetStore.
func WithDiscoveryDisabled() Option {
	return func(c *Config) { c.Discovery.Enabled = false }
}

// WithTelemetry enables metric emission under the given service name
func WithTelemetry(serviceName string) Option {
	return func(c *Config) {
		c.Telemetry.Enabled = true
		if serviceName != "" {
			c.Telemetry.ServiceName = serviceName
		}
	}
}

// WithLogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
func WithLogLevel(level string) Option {
	return func(c *Config) { c.Logging.Level = strings.ToUpper(level) }
}

// WithoutDataCloning disables deep-copying of breadcrumb payloads.
// Use only when payloads are immutable or capture overhead matters.
func WithoutDataCloning() Option {
	return func(c *Config) { c.Breadcrumbs.CloneData = false }
}
