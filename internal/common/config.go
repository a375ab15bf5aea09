package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Telegram    TelegramConfig  `toml:"telegram"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Worker      WorkerConfig    `toml:"worker"`
	Preview     PreviewConfig   `toml:"preview"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// TelegramConfig contains the webhook secret and outbound bot credentials
type TelegramConfig struct {
	BotToken    string `toml:"bot_token"`    // Bot API token for outbound sends (empty disables sending)
	SecretToken string `toml:"secret_token" validate:"required"` // Expected X-Telegram-Bot-Api-Secret-Token header value
	SendTimeout string `toml:"send_timeout"` // Outbound sendMessage timeout (default: "30s")
	RateLimit   string `toml:"rate_limit"`   // Minimum interval between outbound sends (default: "50ms")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for template generation (default: "gemini-2.0-flash-001")
	Timeout     string  `toml:"timeout"`     // Per-call timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`    // Anthropic API key
	Model       string  `toml:"model"`      // Model for template generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"` // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`    // Per-call timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the provider used for template generation
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"` // "gemini" or "claude"
}

// WorkerConfig contains the retry policy and stale-job detection settings
type WorkerConfig struct {
	MaxRetries        int    `toml:"max_retries" validate:"min=1,max=10"` // Max attempts before a job goes FAILED
	RetryBaseDelay    string `toml:"retry_base_delay"`                    // First retry delay, doubles each attempt (default: "5s")
	RetryMaxDelay     string `toml:"retry_max_delay"`                     // Backoff cap (default: "5m")
	StaleJobThreshold string `toml:"stale_job_threshold"`                 // Jobs RUNNING longer than this are failed (default: "10m")
	StaleJobInterval  string `toml:"stale_job_interval"`                  // How often to sweep for stale jobs (default: "1m")
}

// PreviewConfig contains bundle storage and preview URL settings
type PreviewConfig struct {
	Path            string `toml:"path"`             // Root directory for preview bundles (default: "./data/previews")
	BaseURL         string `toml:"base_url"`         // Absolute URL prefix used in outbound notifications
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron schedule for bundle retention sweeps (empty disables)
	Retention       string `toml:"retention"`        // Bundles older than this are removed by the sweep (default: "168h")
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in pagesmith.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // One in-flight job per worker goroutine
			VisibilityTimeout: "5m",
			MaxReceive:        5,
			QueueName:         "pagesmith_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Telegram: TelegramConfig{
			BotToken:    "", // User must provide bot token to enable outbound sends
			SecretToken: "",
			SendTimeout: "30s",
			RateLimit:   "50ms", // Well under the Bot API 30 msg/s global limit
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.0-flash-001",
			Timeout:     "2m",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "2m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Worker: WorkerConfig{
			MaxRetries:        3,
			RetryBaseDelay:    "5s",
			RetryMaxDelay:     "5m",
			StaleJobThreshold: "10m",
			StaleJobInterval:  "1m",
		},
		Preview: PreviewConfig{
			Path:            "./data/previews",
			BaseURL:         "",
			CleanupSchedule: "", // Disabled by default
			Retention:       "168h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// Validate checks the loaded configuration against struct-level constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for name, value := range map[string]string{
		"queue.poll_interval":       c.Queue.PollInterval,
		"queue.visibility_timeout":  c.Queue.VisibilityTimeout,
		"worker.retry_base_delay":   c.Worker.RetryBaseDelay,
		"worker.retry_max_delay":    c.Worker.RetryMaxDelay,
		"worker.stale_job_threshold": c.Worker.StaleJobThreshold,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PAGESMITH_ENV, fallback: GO_ENV)
	if env := os.Getenv("PAGESMITH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PAGESMITH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PAGESMITH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("PAGESMITH_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("PAGESMITH_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("PAGESMITH_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("PAGESMITH_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if queueName := os.Getenv("PAGESMITH_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Storage configuration
	if badgerPath := os.Getenv("PAGESMITH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Telegram configuration
	if botToken := os.Getenv("PAGESMITH_TELEGRAM_BOT_TOKEN"); botToken != "" {
		config.Telegram.BotToken = botToken
	}
	if secretToken := os.Getenv("PAGESMITH_TELEGRAM_SECRET_TOKEN"); secretToken != "" {
		config.Telegram.SecretToken = secretToken
	}
	if sendTimeout := os.Getenv("PAGESMITH_TELEGRAM_SEND_TIMEOUT"); sendTimeout != "" {
		config.Telegram.SendTimeout = sendTimeout
	}

	// Gemini configuration
	if apiKey := os.Getenv("PAGESMITH_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("PAGESMITH_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("PAGESMITH_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("PAGESMITH_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // PAGESMITH_ prefix takes priority
	}
	if model := os.Getenv("PAGESMITH_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("PAGESMITH_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("PAGESMITH_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}

	// LLM provider configuration
	if provider := os.Getenv("PAGESMITH_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Worker configuration
	if maxRetries := os.Getenv("PAGESMITH_WORKER_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Worker.MaxRetries = mr
		}
	}
	if baseDelay := os.Getenv("PAGESMITH_WORKER_RETRY_BASE_DELAY"); baseDelay != "" {
		config.Worker.RetryBaseDelay = baseDelay
	}
	if maxDelay := os.Getenv("PAGESMITH_WORKER_RETRY_MAX_DELAY"); maxDelay != "" {
		config.Worker.RetryMaxDelay = maxDelay
	}

	// Preview configuration
	if previewsPath := os.Getenv("PAGESMITH_PREVIEW_PATH"); previewsPath != "" {
		config.Preview.Path = previewsPath
	}
	if baseURL := os.Getenv("PAGESMITH_PREVIEW_BASE_URL"); baseURL != "" {
		config.Preview.BaseURL = baseURL
	}
	if schedule := os.Getenv("PAGESMITH_PREVIEW_CLEANUP_SCHEDULE"); schedule != "" {
		config.Preview.CleanupSchedule = schedule
	}

	// Logging configuration
	if level := os.Getenv("PAGESMITH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PAGESMITH_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PAGESMITH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDurationOr parses a duration string, falling back to a default on error
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
