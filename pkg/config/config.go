// Package config provides configuration structures and loading logic for the
// gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/highstation/gateway/pkg/domain"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Platform  PlatformConfig  `yaml:"platform"`
	Registry  RegistryConfig  `yaml:"registry"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	OpenSeal  OpenSealConfig  `yaml:"openseal"`
	Policy    PolicyConfig    `yaml:"policy"`
	Feed      FeedConfig      `yaml:"feed"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`

	// RateLimits holds per-service token bucket settings keyed by slug.
	// Services without an entry are never throttled.
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
}

// RateLimitConfig defines one service's token bucket.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// ServerConfig holds configuration for the HTTP servers.
type ServerConfig struct {
	AdminAddress string `yaml:"admin_address"`
	DataAddress  string `yaml:"data_address"`
}

// PlatformConfig identifies the managed root domains for subdomain routing.
type PlatformConfig struct {
	// RootDomain is the production root (e.g. highstation.dev).
	RootDomain string `yaml:"root_domain"`
	// LocalRootDomain is the local-dev variant (e.g. localhost).
	LocalRootDomain string `yaml:"local_root_domain"`
}

// RootDomains returns the non-empty managed root domains.
func (p PlatformConfig) RootDomains() []string {
	var domains []string
	if p.RootDomain != "" {
		domains = append(domains, p.RootDomain)
	}
	if p.LocalRootDomain != "" {
		domains = append(domains, p.LocalRootDomain)
	}
	return domains
}

// RegistryConfig holds configuration for the service registry.
type RegistryConfig struct {
	// File is the YAML service registry path, hot-reloaded on change.
	// Empty selects an empty in-memory registry.
	File string `yaml:"file"`
}

// UpstreamConfig bounds outbound calls.
type UpstreamConfig struct {
	ForwardTimeoutSeconds int `yaml:"forward_timeout_seconds"`
	ProbeTimeoutSeconds   int `yaml:"probe_timeout_seconds"`
}

// ForwardTimeout returns the configured forward bound.
func (u UpstreamConfig) ForwardTimeout() time.Duration {
	return time.Duration(u.ForwardTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the configured per-attempt probe bound.
func (u UpstreamConfig) ProbeTimeout() time.Duration {
	return time.Duration(u.ProbeTimeoutSeconds) * time.Second
}

// OpenSealConfig selects the verification strategy.
type OpenSealConfig struct {
	// VerifierBinary is an explicit path to the canonical verifier. Empty
	// probes PATH; a missing binary falls back to native verification.
	VerifierBinary string `yaml:"verifier_binary"`
}

// PolicyConfig holds the optional trust policy module.
type PolicyConfig struct {
	// ModuleFile points at a Rego module replacing the built-in trust
	// policy.
	ModuleFile string `yaml:"module_file"`
}

// FeedConfig holds configuration for the reputation feed.
type FeedConfig struct {
	// WebhookURL receives latency observations. Empty logs them instead.
	WebhookURL string `yaml:"webhook_url"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		Server: ServerConfig{
			AdminAddress: ":19090",
			DataAddress:  ":8090",
		},
		Platform: PlatformConfig{
			RootDomain:      "highstation.dev",
			LocalRootDomain: "localhost",
		},
		Upstream: UpstreamConfig{
			ForwardTimeoutSeconds: 30,
			ProbeTimeoutSeconds:   5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("GATEWAY_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}
	if val := os.Getenv("GATEWAY_DATA_ADDR"); val != "" {
		cfg.Server.DataAddress = val
	}

	if val := os.Getenv("GATEWAY_ROOT_DOMAIN"); val != "" {
		cfg.Platform.RootDomain = val
	}
	if val := os.Getenv("GATEWAY_REGISTRY_FILE"); val != "" {
		cfg.Registry.File = val
	}

	if val := os.Getenv("GATEWAY_FORWARD_TIMEOUT"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			cfg.Upstream.ForwardTimeoutSeconds = secs
		}
	}

	if val := os.Getenv("GATEWAY_VERIFIER_BINARY"); val != "" {
		cfg.OpenSeal.VerifierBinary = val
	}
	if val := os.Getenv("GATEWAY_FEED_WEBHOOK"); val != "" {
		cfg.Feed.WebhookURL = val
	}

	if val := os.Getenv("GATEWAY_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("GATEWAY_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("GATEWAY_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.DataAddress == "" {
		return fmt.Errorf("%w: data address must be set", domain.ErrConfigInvalid)
	}
	if c.Server.AdminAddress == "" {
		return fmt.Errorf("%w: admin address must be set", domain.ErrConfigInvalid)
	}
	if len(c.Platform.RootDomains()) == 0 {
		return fmt.Errorf("%w: at least one root domain must be set", domain.ErrConfigInvalid)
	}
	if c.Upstream.ForwardTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: forward timeout must be positive", domain.ErrConfigInvalid)
	}
	if c.Upstream.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: probe timeout must be positive", domain.ErrConfigInvalid)
	}
	return nil
}
