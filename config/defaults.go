package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		OpenAI:     DefaultOpenAIConfig(),
		Resilience: DefaultResilienceConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Safety:     DefaultSafetyConfig(),
		Storage:    DefaultStorageConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultOpenAIConfig returns the default provider settings. The API key has
// no default and must come from the file or environment.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Timeout: 60 * time.Second,
	}
}

// DefaultResilienceConfig returns the default retry and breaker settings.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:          3,
		BaseDelay:           1 * time.Second,
		MaxBackoff:          30 * time.Second,
		BreakerThreshold:    5,
		BreakerOpenDuration: 60 * time.Second,
	}
}

// DefaultPipelineConfig returns the default orchestrator settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PrioritizeCost:     true,
		HistoryTokenBudget: 2000,
		HistoryLimit:       50,
		RateEvery:          2 * time.Second,
		RateBurst:          3,
	}
}

// DefaultSafetyConfig returns the default safety posture: strict, with
// educational exceptions on and parental blocks engaged.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		StrictMode:                 true,
		AllowEducationalExceptions: true,
		BlockSensitiveTopics:       true,
		BlockExternalLinks:         false,
	}
}

// DefaultStorageConfig returns the in-memory store; production deployments
// switch to redis or database.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend: "memory",
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			KeyPrefix:  "tutorflow:",
			TTL:        24 * time.Hour,
			SessionCap: 200,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Name:    "tutorflow.db",
			SSLMode: "disable",
		},
	}
}

// DefaultLogConfig returns JSON logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns telemetry disabled.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "tutorflow",
		SampleRate:   1.0,
	}
}
