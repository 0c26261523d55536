package quizbank

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RetryConfig is the YAML form of RetryPolicy.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" validate:"min=0,max=10"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"min=0"`
}

// Config holds everything the binaries need. Load fills it from an optional
// YAML file, then .env, then the process environment.
type Config struct {
	Provider     string `yaml:"provider" validate:"oneof=openai gemini"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	Temperature      float32 `yaml:"temperature" validate:"min=0,max=2"`
	TopP             float32 `yaml:"top_p" validate:"min=0,max=1"`
	MaxOutputTokens  int     `yaml:"max_output_tokens" validate:"min=0"`
	StructuredOutput bool    `yaml:"structured_output"`

	DBPath            string   `yaml:"db_path" validate:"required"`
	Port              int      `yaml:"port" validate:"min=1,max=65535"`
	SessionSecret     string   `yaml:"session_secret"`
	AdminPasswordHash string   `yaml:"admin_password_hash"`
	CORSOrigins       []string `yaml:"cors_origins"`

	Retry            RetryConfig `yaml:"retry"`
	PlanConcurrency  int         `yaml:"plan_concurrency" validate:"min=1,max=10"`
	ChunkSize        int         `yaml:"chunk_size" validate:"min=1,max=50"`
	ChunkConcurrency int         `yaml:"chunk_concurrency" validate:"min=1,max=10"`

	TranscriptDir     string        `yaml:"transcript_dir"`
	LogMode           string        `yaml:"log_mode" validate:"oneof=dev prod"`
	Verbose           bool          `yaml:"verbose"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" validate:"min=0"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Provider:         "openai",
		Temperature:      0.7,
		TopP:             0.9,
		MaxOutputTokens:  8000,
		DBPath:           "quizbank.db",
		Port:             8080,
		CORSOrigins:      []string{"http://localhost:3000"},
		Retry:            RetryConfig{MaxRetries: 3, BaseDelay: time.Second},
		PlanConcurrency:  5,
		ChunkSize:        10,
		ChunkConcurrency: 3,
		LogMode:          "dev",
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped
// when path is empty), a .env file if present and environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	envString("QUIZBANK_PROVIDER", &c.Provider)
	envString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	envString("OPENAI_MODEL", &c.OpenAIModel)
	envString("GEMINI_API_KEY", &c.GeminiAPIKey)
	envString("GEMINI_MODEL", &c.GeminiModel)
	envFloat("QUIZBANK_TEMPERATURE", &c.Temperature)
	envFloat("QUIZBANK_TOP_P", &c.TopP)
	envInt("QUIZBANK_MAX_OUTPUT_TOKENS", &c.MaxOutputTokens)
	envBool("QUIZBANK_STRUCTURED_OUTPUT", &c.StructuredOutput)
	envString("QUIZBANK_DB_PATH", &c.DBPath)
	envInt("PORT", &c.Port)
	envString("SESSION_SECRET", &c.SessionSecret)
	envString("ADMIN_PASSWORD_HASH", &c.AdminPasswordHash)
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		c.CORSOrigins = splitList(v)
	}
	envInt("QUIZBANK_MAX_RETRIES", &c.Retry.MaxRetries)
	envDuration("QUIZBANK_RETRY_BASE_DELAY", &c.Retry.BaseDelay)
	envInt("QUIZBANK_PLAN_CONCURRENCY", &c.PlanConcurrency)
	envInt("QUIZBANK_CHUNK_SIZE", &c.ChunkSize)
	envInt("QUIZBANK_CHUNK_CONCURRENCY", &c.ChunkConcurrency)
	envString("QUIZBANK_TRANSCRIPT_DIR", &c.TranscriptDir)
	envString("QUIZBANK_LOG_MODE", &c.LogMode)
	envBool("QUIZBANK_VERBOSE", &c.Verbose)
	envDuration("QUIZBANK_RECONCILE_INTERVAL", &c.ReconcileInterval)
}

// Validate checks field ranges and that the selected provider has a key.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return newValidationError(verrs[0].Namespace(), "failed %q validation", verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireCompleter checks that the selected provider can be constructed.
func (c *Config) RequireCompleter() error {
	switch c.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return newValidationError("gemini_api_key", "is required for provider gemini (set GEMINI_API_KEY)")
		}
	default:
		if c.OpenAIAPIKey == "" {
			return newValidationError("openai_api_key", "is required for provider openai (set OPENAI_API_KEY)")
		}
	}
	return nil
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: c.Retry.MaxRetries, BaseDelay: c.Retry.BaseDelay}
}

// GeneratorOptions converts the generation tuning keys.
func (c *Config) GeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Retry:            c.RetryPolicy(),
		ChunkSize:        c.ChunkSize,
		ChunkConcurrency: c.ChunkConcurrency,
		PlanConcurrency:  c.PlanConcurrency,
		TranscriptDir:    c.TranscriptDir,
	}
}

// NewCompleter constructs the configured completion client. The returned
// close function releases it and is never nil.
func (c *Config) NewCompleter(ctx context.Context) (TextCompleter, func() error, error) {
	if err := c.RequireCompleter(); err != nil {
		return nil, nil, err
	}
	opts := CompletionOptions{
		Temperature:     c.Temperature,
		TopP:            c.TopP,
		MaxOutputTokens: c.MaxOutputTokens,
		Structured:      c.StructuredOutput,
	}
	if c.Provider == "gemini" {
		opts.Model = c.GeminiModel
		gc, err := NewGeminiCompleter(ctx, c.GeminiAPIKey, opts)
		if err != nil {
			return nil, nil, err
		}
		return gc, gc.Close, nil
	}
	opts.Model = c.OpenAIModel
	return NewOpenAICompleter(c.OpenAIAPIKey, opts), func() error { return nil }, nil
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float32) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			*dst = float32(f)
		}
	}
}

func envBool(name string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
