// =============================================================================
// 📦 Default configuration
// =============================================================================
// Supplies sane defaults for every configuration section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the baseline configuration, before any YAML file
// or environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Agent:       DefaultAgentConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Breakers:    DefaultBreakerConfig(),
		Retry:       DefaultRetryConfig(),
		LLM:         DefaultLLMConfig(),
		Reservation: DefaultReservationConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8793",
		MetricsPort:     9091,
		StdioEnabled:    true,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		AdminAuthSecret: "",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:       "",
		ProjectKey: "default",
	}
}

// DefaultRedisConfig leaves Addr empty: the event-stream mirror is opt-in.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "",
		DB:        0,
		KeyPrefix: "agentmail:events",
		TTL:       24 * time.Hour,
		TLS:       false,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path:                "agentmail.db",
		MaxOpenConns:        8,
		MaxIdleConns:        4,
		ConnMaxLifetime:     time.Hour,
		BusyTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultBreakerConfig mirrors the per-subsystem threshold/reset pairs:
// store 5/30s, archive (git) 8/45s, signal 5/30s, model (llm) 3/60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		DB:     SubsystemBreakerConfig{Threshold: 5, ResetSeconds: 30 * time.Second},
		Git:    SubsystemBreakerConfig{Threshold: 8, ResetSeconds: 45 * time.Second},
		Signal: SubsystemBreakerConfig{Threshold: 5, ResetSeconds: 30 * time.Second},
		LLM:    SubsystemBreakerConfig{Threshold: 3, ResetSeconds: 60 * time.Second},
	}
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseMillis: 50,
		CapSeconds: 8,
		MaxRetries: 7,
		Jitter:     0.25,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai-compat",
		BaseURL:     "",
		Timeout:     2 * time.Minute,
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		MaxTokens:   1024,
		RPS:         1,
	}
}

func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		GuardMode: "block",
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentmail",
		SampleRate:   0.1,
	}
}
