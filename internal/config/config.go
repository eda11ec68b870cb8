package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvGeminiBaseURL = "GEMINI_BASE_URL"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvTextProvider  = "TEXT_PROVIDER"
	EnvTextModel     = "TEXT_MODEL"

	EnvAccessKey = "VOLC_ACCESSKEY"
	EnvSecretKey = "VOLC_SECRETKEY"
	EnvRegion    = "VOLC_REGION"
	EnvHost      = "VOLC_HOST"
	EnvTimeout   = "VOLC_TIMEOUT"

	EnvPollInterval  = "STORYVIDEO_POLL_INTERVAL"
	EnvMaxWait       = "STORYVIDEO_MAX_WAIT"
	EnvModelRegistry = "STORYVIDEO_MODEL_REGISTRY"
	EnvDefaultModel  = "STORYVIDEO_DEFAULT_MODEL"
	EnvDownloadDir   = "STORYVIDEO_DOWNLOAD_DIR"
	EnvDebug         = "STORYVIDEO_DEBUG"

	EnvDatabaseType = "DATABASE_TYPE"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvServerPort   = "SERVER_PORT"
)

const (
	DefaultRegion       = "cn-north-1"
	DefaultHost         = "visual.volcengineapi.com"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 6 * time.Minute
	DefaultModel        = "veo-3.0-generate-001"
	DefaultTextModel    = "gemini-2.5-flash"
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultServerPort   = 8080
)

type TextProvider string

const (
	TextProviderGemini TextProvider = "gemini"
	TextProviderOpenAI TextProvider = "openai"
)

// DefaultTextModel is the model used when TEXT_MODEL is unset.
func (p TextProvider) DefaultTextModel() string {
	if p == TextProviderOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultTextModel
}

const (
	DatabaseTypeMemory   = "memory"
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypePostgres = "postgres"
)

type VolcConfig struct {
	Credentials
	Region  string        `env:"VOLC_REGION" envDefault:"cn-north-1"`
	Host    string        `env:"VOLC_HOST" envDefault:"visual.volcengineapi.com"`
	Timeout time.Duration `env:"VOLC_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether both Volcengine keys are present.
func (v VolcConfig) Enabled() bool {
	return v.AccessKey != "" && v.SecretKey != ""
}

type Config struct {
	GeminiAPIKey  string       `env:"GEMINI_API_KEY"`
	GeminiBaseURL string       `env:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string       `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string       `env:"OPENAI_BASE_URL"`
	TextProvider  TextProvider `env:"TEXT_PROVIDER" envDefault:"gemini"`
	TextModel     string       `env:"TEXT_MODEL"`

	Volc VolcConfig

	PollInterval time.Duration `env:"STORYVIDEO_POLL_INTERVAL" envDefault:"5s"`
	MaxWait      time.Duration `env:"STORYVIDEO_MAX_WAIT" envDefault:"6m"`
	RegistryFile string        `env:"STORYVIDEO_MODEL_REGISTRY"`
	DefaultModel string        `env:"STORYVIDEO_DEFAULT_MODEL" envDefault:"veo-3.0-generate-001"`
	DownloadDir  string        `env:"STORYVIDEO_DOWNLOAD_DIR"`

	DatabaseType string `env:"DATABASE_TYPE"`
	DatabaseURL  string `env:"DATABASE_URL"`
	ServerPort   int    `env:"SERVER_PORT" envDefault:"8080"`

	Debug bool `env:"STORYVIDEO_DEBUG"`
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("gemini_api_key", RedactKey(c.GeminiAPIKey)),
		slog.String("openai_api_key", RedactKey(c.OpenAIAPIKey)),
		slog.String("text_provider", string(c.TextProvider)),
		slog.String("text_model", c.TextModel),
		slog.Any("volc_credentials", c.Volc.Credentials),
		slog.String("volc_region", c.Volc.Region),
		slog.String("volc_host", c.Volc.Host),
		slog.String("poll_interval", c.PollInterval.String()),
		slog.String("max_wait", c.MaxWait.String()),
		slog.String("default_model", c.DefaultModel),
		slog.String("database_type", c.DatabaseType),
	)
}

type Options struct {
	GeminiAPIKey *string
	OpenAIAPIKey *string
	TextProvider *string
	TextModel    *string
	AccessKey    *string
	SecretKey    *string
	PollInterval *time.Duration
	MaxWait      *time.Duration
	RegistryFile *string
	DefaultModel *string
	DownloadDir  *string
	DatabaseType *string
	DatabaseURL  *string
	ServerPort   *int
	ConfigFile   *string
	Debug        bool
}

func Load(opts Options) (Config, error) {
	envFile := ".env"
	if opts.ConfigFile != nil && *opts.ConfigFile != "" {
		envFile = *opts.ConfigFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.Volc.Host = normalizeHost(cfg.Volc.Host)

	applyString(&cfg.GeminiAPIKey, opts.GeminiAPIKey)
	applyString(&cfg.OpenAIAPIKey, opts.OpenAIAPIKey)
	applyString(&cfg.TextModel, opts.TextModel)
	applyString(&cfg.RegistryFile, opts.RegistryFile)
	applyString(&cfg.DownloadDir, opts.DownloadDir)
	applyString(&cfg.DatabaseType, opts.DatabaseType)
	applyString(&cfg.DatabaseURL, opts.DatabaseURL)
	if opts.TextProvider != nil {
		cfg.TextProvider = TextProvider(strings.ToLower(strings.TrimSpace(*opts.TextProvider)))
	}
	cfg.TextModel = strings.TrimSpace(cfg.TextModel)
	if cfg.TextModel == "" {
		cfg.TextModel = cfg.TextProvider.DefaultTextModel()
	}
	if opts.DefaultModel != nil {
		v := strings.TrimSpace(*opts.DefaultModel)
		if v == "" {
			return Config{}, fmt.Errorf("model must not be empty")
		}
		cfg.DefaultModel = v
	}
	if opts.PollInterval != nil {
		cfg.PollInterval = *opts.PollInterval
	}
	if opts.MaxWait != nil {
		cfg.MaxWait = *opts.MaxWait
	}
	if opts.ServerPort != nil {
		cfg.ServerPort = *opts.ServerPort
	}
	if opts.Debug {
		cfg.Debug = true
	}

	creds, err := LoadCredentials(CredentialsOptions{
		AccessKey: opts.AccessKey,
		SecretKey: opts.SecretKey,
	})
	if err != nil {
		return Config{}, err
	}
	cfg.Volc.Credentials = creds

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireVideoBackend fails unless at least one video vendor can be reached.
func (c Config) RequireVideoBackend() error {
	if c.GeminiAPIKey != "" || c.Volc.Enabled() {
		return nil
	}
	return &MissingCredentialsError{Missing: []string{EnvGeminiAPIKey, EnvAccessKey + "+" + EnvSecretKey}}
}

func (c Config) validate() error {
	switch c.TextProvider {
	case TextProviderGemini, TextProviderOpenAI:
	default:
		return fmt.Errorf("invalid %s: %q (must be gemini or openai)", EnvTextProvider, c.TextProvider)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxWait < c.PollInterval {
		return fmt.Errorf("max wait (%s) must not be shorter than poll interval (%s)", c.MaxWait, c.PollInterval)
	}
	if c.Volc.Timeout <= 0 {
		return fmt.Errorf("invalid %s: must be positive", EnvTimeout)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid %s: %d", EnvServerPort, c.ServerPort)
	}
	switch strings.ToLower(c.DatabaseType) {
	case "", DatabaseTypeMemory:
	case DatabaseTypeSQLite, DatabaseTypePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDatabaseURL, EnvDatabaseType, c.DatabaseType)
		}
	default:
		return fmt.Errorf("invalid %s: %q (supported: sqlite|postgres)", EnvDatabaseType, c.DatabaseType)
	}
	return nil
}

func applyString(dst *string, v *string) {
	if v == nil {
		return
	}
	*dst = strings.TrimSpace(*v)
}

func normalizeHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")
	return host
}

func lookupEnvNonEmpty(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return nil
}
