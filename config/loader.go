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

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	OpenAI     OpenAIConfig     `yaml:"openai" env:"OPENAI"`
	Resilience ResilienceConfig `yaml:"resilience" env:"RESILIENCE"`
	Pipeline   PipelineConfig   `yaml:"pipeline" env:"PIPELINE"`
	Safety     SafetyConfig     `yaml:"safety" env:"SAFETY"`
	Storage    StorageConfig    `yaml:"storage" env:"STORAGE"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// OpenAIConfig configures the upstream completion provider.
type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Organization string        `yaml:"organization" env:"ORGANIZATION"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ResilienceConfig shapes the retry policy and the circuit breaker wrapped
// around the provider.
type ResilienceConfig struct {
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay           time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxBackoff          time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	BreakerOpenDuration time.Duration `yaml:"breaker_open_duration" env:"BREAKER_OPEN_DURATION"`
}

// PipelineConfig tunes the response orchestrator.
type PipelineConfig struct {
	// PrioritizeCost keeps simple and moderate conversations on the cheapest
	// model tier.
	PrioritizeCost     bool          `yaml:"prioritize_cost" env:"PRIORITIZE_COST"`
	HistoryTokenBudget int           `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
	HistoryLimit       int           `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// RateEvery is the minimum spacing between requests from one child;
	// RateBurst is the burst allowance on top of it.
	RateEvery time.Duration `yaml:"rate_every" env:"RATE_EVERY"`
	RateBurst int           `yaml:"rate_burst" env:"RATE_BURST"`
	// ExactTokens switches token counting from the length heuristic to the
	// model's real tokenizer.
	ExactTokens bool `yaml:"exact_tokens" env:"EXACT_TOKENS"`
}

// SafetyConfig is the service-wide default safety posture; the per-call age
// group is filled in by the orchestrator.
type SafetyConfig struct {
	StrictMode                 bool `yaml:"strict_mode" env:"STRICT_MODE"`
	AllowEducationalExceptions bool `yaml:"allow_educational_exceptions" env:"ALLOW_EDUCATIONAL_EXCEPTIONS"`
	BlockSensitiveTopics       bool `yaml:"block_sensitive_topics" env:"BLOCK_SENSITIVE_TOPICS"`
	BlockExternalLinks         bool `yaml:"block_external_links" env:"BLOCK_EXTERNAL_LINKS"`
}

// StorageConfig selects and configures the conversation store.
type StorageConfig struct {
	// Backend is one of memory, redis, database.
	Backend  string         `yaml:"backend" env:"BACKEND"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig configures the redis-backed conversation store.
type RedisConfig struct {
	Addr       string        `yaml:"addr" env:"ADDR"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	DB         int           `yaml:"db" env:"DB"`
	KeyPrefix  string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	SessionCap int           `yaml:"session_cap" env:"SESSION_CAP"`
}

// DatabaseConfig configures the SQL-backed conversation store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader assembles a Config. Precedence: defaults, then the YAML file, then
// environment variables.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the TUTORFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "TUTORFLOW"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
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
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// setFieldsFromEnv walks the struct, overriding any field whose
// prefix-joined env tag names a set environment variable.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
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
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

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
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

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
		// Comma-separated string slices only.
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

// MustLoad loads from path and panics on failure. Intended for main.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Resilience.MaxRetries < 0 {
		errs = append(errs, "max_retries must not be negative")
	}
	if c.Resilience.BreakerThreshold <= 0 {
		errs = append(errs, "breaker_threshold must be positive")
	}
	if c.Pipeline.HistoryTokenBudget <= 0 {
		errs = append(errs, "history_token_budget must be positive")
	}
	switch c.Storage.Backend {
	case "memory", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "database" {
		switch c.Storage.Database.Driver {
		case "sqlite", "mysql", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Storage.Database.Driver))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN renders the driver-specific connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
