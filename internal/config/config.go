package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smsgate/smsgate/internal/sms"
)

// DefaultFileName is the config file read when no path is given.
const DefaultFileName = "smsgate.toml"

// Config is the top-level smsgate configuration.
type Config struct {
	Server   ServerConfig             `toml:"server"`
	Routing  RoutingConfig            `toml:"routing"`
	Retry    RetryConfig              `toml:"retry"`
	Logging  LoggingConfig            `toml:"logging"`
	Metrics  MetricsConfig            `toml:"metrics"`
	Gateways map[string]GatewayConfig `toml:"gateways"`
}

type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ShutdownTimeout int    `toml:"shutdown_timeout"` // seconds
	// APIToken, when set, is required as a Bearer token on /api routes.
	APIToken string `toml:"api_token,omitempty"`
}

// RoutingConfig selects how phone numbers are mapped to carriers.
type RoutingConfig struct {
	Strategy string            `toml:"strategy"` // "prefix" (default), "carrier", "chain"
	Prefixes map[string]string `toml:"prefixes"` // DEF prefix -> provider name; empty uses the built-in table
}

type RetryConfig struct {
	Enabled     bool `toml:"enabled"`
	MaxAttempts int  `toml:"max_attempts"`
	BaseDelayMs int  `toml:"base_delay_ms"`
}

// BaseDelay returns base_delay_ms as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

type LoggingConfig struct {
	Enabled bool   `toml:"enabled"` // send events
	Level   string `toml:"level"`
	Format  string `toml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// GatewayConfig configures the gateway for one carrier. Which fields apply
// depends on Backend.
type GatewayConfig struct {
	Backend string `toml:"backend"` // "exolve", "sns", "ledger", "static"

	// exolve
	Token   string `toml:"token,omitempty"`
	Sender  string `toml:"sender,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`

	// sns
	Region string `toml:"region,omitempty"`

	// ledger
	Path           string  `toml:"path,omitempty"`
	OpeningBalance float64 `toml:"opening_balance,omitempty"`

	// static
	Balance float64 `toml:"balance,omitempty"`

	// Pricing. exolve and sns charge per segment; ledger and static per byte.
	PricePerSegment float64 `toml:"price_per_segment,omitempty"`
	PricePerUnit    float64 `toml:"price_per_unit,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8095,
			ShutdownTimeout: 10,
		},
		Routing: RoutingConfig{
			Strategy: "prefix",
		},
		Retry: RetryConfig{
			Enabled:     false,
			MaxAttempts: 3,
			BaseDelayMs: 200,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration with priority: defaults → smsgate.toml → env vars → CLI flags.
// The flags parameter allows CLI flag overrides to be passed in.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	// Load from TOML file if it exists.
	if configPath == "" {
		configPath = DefaultFileName
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}
	normalizeGatewayKeys(cfg)

	// Apply environment variables.
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Apply CLI flag overrides.
	applyFlags(cfg, flags)

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be non-negative, got %d", c.Server.ShutdownTimeout)
	}
	switch c.Routing.Strategy {
	case "", "prefix", "carrier", "chain":
	default:
		return fmt.Errorf("routing.strategy must be \"prefix\", \"carrier\", or \"chain\", got %q", c.Routing.Strategy)
	}
	for prefix, name := range c.Routing.Prefixes {
		if prefix == "" || strings.Trim(prefix, "0123456789") != "" {
			return fmt.Errorf("routing.prefixes: %q is not a numeric prefix", prefix)
		}
		if _, err := sms.ParseProvider(name); err != nil {
			return fmt.Errorf("routing.prefixes.%s: %w", prefix, err)
		}
	}
	if c.Retry.Enabled {
		if c.Retry.MaxAttempts < 1 {
			return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
		}
		if c.Retry.BaseDelayMs < 0 {
			return fmt.Errorf("retry.base_delay_ms must be non-negative, got %d", c.Retry.BaseDelayMs)
		}
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with \"/\", got %q", c.Metrics.Path)
	}
	for _, name := range c.GatewayNames() {
		if err := validateGateway(name, c.Gateways[name]); err != nil {
			return err
		}
	}
	return nil
}

// nonNegative rejects negatives, NaN and +Inf.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

func validateGateway(name string, g GatewayConfig) error {
	if _, err := sms.ParseProvider(name); err != nil {
		return fmt.Errorf("gateways.%s: %w", name, err)
	}
	if !nonNegative(g.PricePerSegment) || !nonNegative(g.PricePerUnit) {
		return fmt.Errorf("gateways.%s: prices must be non-negative and finite", name)
	}
	switch g.Backend {
	case "exolve":
		if g.Token == "" {
			return fmt.Errorf("gateways.%s.token is required when backend is \"exolve\"", name)
		}
		if g.Sender == "" {
			return fmt.Errorf("gateways.%s.sender is required when backend is \"exolve\"", name)
		}
	case "sns":
	case "ledger":
		if g.Path == "" {
			return fmt.Errorf("gateways.%s.path is required when backend is \"ledger\"", name)
		}
		if !nonNegative(g.OpeningBalance) {
			return fmt.Errorf("gateways.%s.opening_balance must be non-negative and finite", name)
		}
	case "static":
		if !nonNegative(g.Balance) {
			return fmt.Errorf("gateways.%s.balance must be non-negative and finite", name)
		}
	default:
		return fmt.Errorf("gateways.%s.backend must be \"exolve\", \"sns\", \"ledger\", or \"static\", got %q", name, g.Backend)
	}
	return nil
}

// normalizeGatewayKeys lower-cases gateway table names so "[gateways.MTS]"
// and SMSGATE_GATEWAYS_MTS_* address the same entry.
func normalizeGatewayKeys(cfg *Config) {
	for name, g := range cfg.Gateways {
		if lower := strings.ToLower(name); lower != name {
			delete(cfg.Gateways, name)
			cfg.Gateways[lower] = g
		}
	}
}

// GatewayNames returns the configured gateway keys in sorted order.
func (c *Config) GatewayNames() []string {
	names := make([]string, 0, len(c.Gateways))
	for name := range c.Gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GenerateDefault writes a commented default smsgate.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envInt reads an integer from the named environment variable.
// Returns an error if the value is set but not a valid integer.
func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

// envFloat reads a float from the named environment variable.
func envFloat(name string, dest *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not a number", name, v)
	}
	*dest = n
	return nil
}

func envBool(name string, dest *bool) {
	if v := os.Getenv(name); v != "" {
		*dest = v == "true" || v == "1"
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SMSGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := envInt("SMSGATE_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("SMSGATE_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("SMSGATE_ROUTING_STRATEGY"); v != "" {
		cfg.Routing.Strategy = v
	}
	envBool("SMSGATE_RETRY_ENABLED", &cfg.Retry.Enabled)
	if err := envInt("SMSGATE_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts); err != nil {
		return err
	}
	if err := envInt("SMSGATE_RETRY_BASE_DELAY_MS", &cfg.Retry.BaseDelayMs); err != nil {
		return err
	}
	envBool("SMSGATE_LOGGING_ENABLED", &cfg.Logging.Enabled)
	if v := os.Getenv("SMSGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SMSGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	envBool("SMSGATE_METRICS_ENABLED", &cfg.Metrics.Enabled)
	if v := os.Getenv("SMSGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
	for _, p := range sms.Providers() {
		if err := applyGatewayEnv(cfg, p.String()); err != nil {
			return err
		}
	}
	return nil
}

// applyGatewayEnv reads SMSGATE_GATEWAYS_<PROVIDER>_* variables. Secrets such
// as the exolve token usually arrive this way rather than through the file.
func applyGatewayEnv(cfg *Config, provider string) error {
	prefix := "SMSGATE_GATEWAYS_" + strings.ToUpper(provider) + "_"
	backend := os.Getenv(prefix + "BACKEND")
	token := os.Getenv(prefix + "TOKEN")
	sender := os.Getenv(prefix + "SENDER")
	region := os.Getenv(prefix + "REGION")
	_, existing := cfg.Gateways[provider]
	if backend == "" && token == "" && sender == "" && region == "" && !existing {
		return nil
	}
	if cfg.Gateways == nil {
		cfg.Gateways = make(map[string]GatewayConfig)
	}
	g := cfg.Gateways[provider]
	if backend != "" {
		g.Backend = backend
	}
	if token != "" {
		g.Token = token
	}
	if sender != "" {
		g.Sender = sender
	}
	if region != "" {
		g.Region = region
	}
	if err := envFloat(prefix+"BALANCE", &g.Balance); err != nil {
		return err
	}
	cfg.Gateways[provider] = g
	return nil
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["port"]; ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := flags["host"]; ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := flags["routing"]; ok && v != "" {
		cfg.Routing.Strategy = v
	}
	if v, ok := flags["log-level"]; ok && v != "" {
		cfg.Logging.Level = v
	}
}

// validKeys is the complete set of dot-separated config keys outside the
// per-gateway tables.
var validKeys = map[string]bool{
	"server.host": true, "server.port": true, "server.shutdown_timeout": true, "server.api_token": true,
	"routing.strategy": true,
	"retry.enabled": true, "retry.max_attempts": true, "retry.base_delay_ms": true,
	"logging.enabled": true, "logging.level": true, "logging.format": true,
	"metrics.enabled": true, "metrics.path": true,
}

// gatewayFields lists the keys valid under gateways.<provider>.
var gatewayFields = map[string]bool{
	"backend": true, "token": true, "sender": true, "base_url": true, "region": true,
	"path": true, "opening_balance": true, "balance": true,
	"price_per_segment": true, "price_per_unit": true,
}

// IsValidKey returns true if the dotted key is a recognized config key.
func IsValidKey(key string) bool {
	if validKeys[key] {
		return true
	}
	_, field, ok := splitGatewayKey(key)
	return ok && gatewayFields[field]
}

// splitGatewayKey splits "gateways.<provider>.<field>".
func splitGatewayKey(key string) (provider, field string, ok bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "gateways" {
		return "", "", false
	}
	if _, err := sms.ParseProvider(parts[1]); err != nil {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// GetValue returns the value for a dotted config key (e.g. "server.port").
func GetValue(cfg *Config, key string) (any, error) {
	switch key {
	case "server.host":
		return cfg.Server.Host, nil
	case "server.port":
		return cfg.Server.Port, nil
	case "server.api_token":
		return cfg.Server.APIToken, nil
	case "server.shutdown_timeout":
		return cfg.Server.ShutdownTimeout, nil
	case "routing.strategy":
		return cfg.Routing.Strategy, nil
	case "retry.enabled":
		return cfg.Retry.Enabled, nil
	case "retry.max_attempts":
		return cfg.Retry.MaxAttempts, nil
	case "retry.base_delay_ms":
		return cfg.Retry.BaseDelayMs, nil
	case "logging.enabled":
		return cfg.Logging.Enabled, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "metrics.enabled":
		return cfg.Metrics.Enabled, nil
	case "metrics.path":
		return cfg.Metrics.Path, nil
	}

	provider, field, ok := splitGatewayKey(key)
	if !ok || !gatewayFields[field] {
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
	g := cfg.Gateways[provider]
	switch field {
	case "backend":
		return g.Backend, nil
	case "token":
		return g.Token, nil
	case "sender":
		return g.Sender, nil
	case "base_url":
		return g.BaseURL, nil
	case "region":
		return g.Region, nil
	case "path":
		return g.Path, nil
	case "opening_balance":
		return g.OpeningBalance, nil
	case "balance":
		return g.Balance, nil
	case "price_per_segment":
		return g.PricePerSegment, nil
	default: // price_per_unit
		return g.PricePerUnit, nil
	}
}

// SetValue reads the existing TOML file, updates a single key, and writes it back.
// Creates the file with just the key if it doesn't exist.
func SetValue(configPath, key, value string) error {
	// Read existing TOML as a generic map.
	var data map[string]any
	if raw, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}
	if data == nil {
		data = make(map[string]any)
	}

	// Split key into section(s) and field.
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return fmt.Errorf("invalid key format: %s (expected section.field)", key)
	}

	// Walk or create the nested tables.
	table := data
	for _, section := range parts[:len(parts)-1] {
		next, ok := table[section].(map[string]any)
		if !ok {
			next = make(map[string]any)
			table[section] = next
		}
		table = next
	}

	// Convert value to appropriate type.
	table[parts[len(parts)-1]] = coerceValue(key, value)

	// Marshal back to TOML and write.
	out, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(configPath, out, 0o644)
}

// coerceValue converts a string value to the appropriate Go type for TOML serialization.
func coerceValue(key, value string) any {
	// Boolean fields.
	switch key {
	case "retry.enabled", "logging.enabled", "metrics.enabled":
		return value == "true" || value == "1"
	}
	// Integer fields.
	switch key {
	case "server.port", "server.shutdown_timeout", "retry.max_attempts", "retry.base_delay_ms":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	// Float gateway fields.
	if _, field, ok := splitGatewayKey(key); ok {
		switch field {
		case "opening_balance", "balance", "price_per_segment", "price_per_unit":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
	}
	return value
}

const defaultTOML = `# smsgate configuration

[server]
# Address for 'smsgate serve' to listen on.
host = "0.0.0.0"
port = 8095

# Seconds to wait for in-flight requests during shutdown.
shutdown_timeout = 10

# Require "Authorization: Bearer <token>" on /api routes. Also SMSGATE_API_TOKEN.
# api_token = ""

[routing]
# How phone numbers map to carriers:
#   "prefix"  - DEF code table (built-in, overridable below)
#   "carrier" - libphonenumber carrier database
#   "chain"   - prefix table first, carrier database as fallback
strategy = "prefix"

# Override the built-in DEF table. Keys are the digits after the country code.
# [routing.prefixes]
# "925" = "megafon"
# "9585" = "mts"

[retry]
# Retry sends that fail with a transient gateway error.
enabled = false
max_attempts = 3

# Delay before the first retry; doubles on each further attempt.
base_delay_ms = 200

[logging]
# Emit a structured event for every send.
enabled = true

# Log level: debug, info, warn, error.
level = "info"

# Log format: json or text.
format = "json"

[metrics]
# Expose Prometheus metrics on the serve listener.
enabled = false
path = "/metrics"

# One table per carrier: mts, beeline, megafon, tele2.
# Backends:
#   "exolve" - MTS Exolve HTTP API (token, sender, base_url, price_per_segment)
#   "sns"    - AWS SNS (region, price_per_segment); balance is the monthly spend limit
#   "ledger" - local SQLite prepaid account (path, opening_balance, price_per_unit)
#   "static" - fixed balance, nothing sent (balance, price_per_unit)
#
# [gateways.mts]
# backend = "exolve"
# token = ""            # or SMSGATE_GATEWAYS_MTS_TOKEN
# sender = "79990000000"
# price_per_segment = 2.0
#
# [gateways.megafon]
# backend = "ledger"
# path = "./smsgate_ledger.db"
# opening_balance = 100.0
# price_per_unit = 2.0
#
# [gateways.tele2]
# backend = "sns"
# region = "eu-central-1"
# price_per_segment = 0.05
#
# [gateways.beeline]
# backend = "static"
# balance = 100.0
# price_per_unit = 2.0
`
