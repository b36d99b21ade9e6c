// =============================================================================
// 📦 Agent Mail configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTMAIL").
//	    Load()
//
// Precedence: defaults -> YAML file -> AGENTMAIL_*-prefixed env vars ->
// the handful of bare, un-prefixed names named literally (AGENT_MAIL_GUARD_MODE,
// CIRCUIT_DB_THRESHOLD, ...), applied last so they always win.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 Core configuration structure
// =============================================================================

// Config is the complete configuration for one agentmail process.
type Config struct {
	// Server configures the HTTP and stdio boundary transports.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent identifies the local agent when no --agent flag is given.
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Redis configures the optional event-stream mirror.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configures the embedded SQLite store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Breakers configures the four per-subsystem circuit breakers.
	Breakers BreakerConfig `yaml:"breakers" env:"BREAKERS"`

	// Retry configures the shared exponential-backoff retry policy.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// LLM configures the OpenAI-compatible model client used for thread
	// summarization.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Reservation configures file-reservation enforcement.
	Reservation ReservationConfig `yaml:"reservation" env:"RESERVATION"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OTLP tracing/metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP boundary listener and the stdio
// transport's enablement.
type ServerConfig struct {
	// HTTPAddr is the bind address for the HTTP/JSON boundary, e.g. ":8793".
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	// MetricsPort serves Prometheus metrics, separate from the op surface.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// StdioEnabled starts the newline-delimited RPC transport on stdin/stdout.
	StdioEnabled bool `yaml:"stdio_enabled" env:"STDIO_ENABLED"`
	// ReadTimeout bounds a single HTTP request.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds a single HTTP response.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout bounds graceful drain on SIGTERM/SIGINT.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// AdminAuthSecret, when set, requires a valid HS256 bearer token on the
	// admin_reset_project/admin_reset_breaker operations. Empty disables it.
	AdminAuthSecret string `yaml:"admin_auth_secret" env:"ADMIN_AUTH_SECRET"`
	// RateLimitRPS/RateLimitBurst bound the per-IP request rate on the HTTP
	// boundary. RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AgentConfig identifies the local agent process.
type AgentConfig struct {
	// Name is this agent's default display name, overridden by AGENT_NAME.
	Name string `yaml:"name" env:"NAME"`
	// ProjectKey is the default project slug used when a caller omits one.
	ProjectKey string `yaml:"project_key" env:"PROJECT_KEY"`
}

// RedisConfig configures the optional eventstream.RedisBackend mirror.
// An empty Addr disables the mirror; the in-process ring remains the
// source of truth for sequence assignment regardless.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	TLS       bool          `yaml:"tls" env:"TLS"`
}

// DatabaseConfig configures the embedded SQLite pool (store.PoolConfig).
type DatabaseConfig struct {
	Path                string        `yaml:"path" env:"PATH"`
	MaxOpenConns        int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns        int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	BusyTimeout         time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// BreakerConfig bundles the four independent circuit breakers: store
// ("db"), archive ("git"), signal, and model ("llm"). Defaults come from
// the literal numbers named for each subsystem; CIRCUIT_* env vars (read
// directly, not through the AGENTMAIL_ prefix) override them last.
type BreakerConfig struct {
	DB     SubsystemBreakerConfig `yaml:"db" env:"DB"`
	Git    SubsystemBreakerConfig `yaml:"git" env:"GIT"`
	Signal SubsystemBreakerConfig `yaml:"signal" env:"SIGNAL"`
	LLM    SubsystemBreakerConfig `yaml:"llm" env:"LLM"`
}

// SubsystemBreakerConfig is one breaker.Config's YAML/env-overridable form.
type SubsystemBreakerConfig struct {
	Threshold    int           `yaml:"threshold" env:"THRESHOLD"`
	ResetSeconds time.Duration `yaml:"reset_seconds" env:"RESET_SECS"`
}

// RetryConfig is retry.Policy's YAML/env-overridable form.
type RetryConfig struct {
	BaseMillis int     `yaml:"base_millis" env:"BASE_MILLIS"`
	CapSeconds int     `yaml:"cap_seconds" env:"CAP_SECONDS"`
	MaxRetries int     `yaml:"max_retries" env:"MAX_RETRIES"`
	Jitter     float64 `yaml:"jitter" env:"JITTER"`
}

// LLMConfig configures modelclient.HTTPConfig for thread summarization.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	RPS         float64       `yaml:"rps" env:"RPS"`
}

// ReservationConfig configures reservation.Engine's enforcement mode.
// GuardMode is normally set by the bare AGENT_MAIL_GUARD_MODE env var,
// not the AGENTMAIL_ prefix path; the YAML/prefixed field exists so a
// config file can still pin a default for local runs.
type ReservationConfig struct {
	GuardMode string `yaml:"guard_mode" env:"GUARD_MODE"`
}

// LogConfig configures the shared zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export. No operation in the op table
// names a tracing surface explicitly, but the ambient stack is carried
// regardless of which features are in scope, same as every other service
// built on this stack.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader builds a Config via the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the module's default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTMAIL",
		validators: make([]func(*Config) error, 0),
	}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load applies defaults, then the YAML file, then AGENTMAIL_*-prefixed
// env overrides, then the bare named env vars, then runs validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	applyNamedEnvVars(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively applies AGENTMAIL_*-prefixed env overrides
// for every field carrying an `env` tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// applyNamedEnvVars overrides the handful of fields named as bare
// environment variables rather than AGENTMAIL_*-prefixed ones — these
// are the names an operator or launching agent harness actually sets, so
// they are read literally and applied last, winning over both the YAML
// file and the prefixed overrides above.
func applyNamedEnvVars(cfg *Config) {
	if v := os.Getenv("AGENT_MAIL_GUARD_MODE"); v != "" {
		cfg.Reservation.GuardMode = v
	}
	if v := os.Getenv("AGENT_NAME"); v != "" {
		cfg.Agent.Name = v
	}

	applyNamedBreaker("CIRCUIT_DB", &cfg.Breakers.DB)
	applyNamedBreaker("CIRCUIT_GIT", &cfg.Breakers.Git)
	applyNamedBreaker("CIRCUIT_SIGNAL", &cfg.Breakers.Signal)
	applyNamedBreaker("CIRCUIT_LLM", &cfg.Breakers.LLM)
}

func applyNamedBreaker(envPrefix string, b *SubsystemBreakerConfig) {
	if v := os.Getenv(envPrefix + "_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.Threshold = n
		}
	}
	if v := os.Getenv(envPrefix + "_RESET_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.ResetSeconds = time.Duration(n) * time.Second
		}
	}
}

// setFieldValue converts a raw env string into the destination field's kind.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// MustLoad loads config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks invariants Load's caller can't easily express as YAML
// schema: a configured store path, positive breaker thresholds, a
// recognized guard mode.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path must be set")
	}

	for name, b := range map[string]SubsystemBreakerConfig{
		"db": c.Breakers.DB, "git": c.Breakers.Git, "signal": c.Breakers.Signal, "llm": c.Breakers.LLM,
	} {
		if b.Threshold <= 0 {
			problems = append(problems, fmt.Sprintf("breakers.%s.threshold must be positive", name))
		}
	}

	switch strings.ToLower(c.Reservation.GuardMode) {
	case "block", "warn", "advisory", "adv":
	default:
		problems = append(problems, "reservation.guard_mode must be one of block, warn, advisory, adv")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(problems, "; "))
	}

	return nil
}
