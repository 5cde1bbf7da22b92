package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"makedeal/internal/models"
)

const (
	DefaultPath = "config/config.yaml"
	EnvPrefix   = "DEALPIPE_"
)

type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port" validate:"gt=0,lt=65536"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `yaml:"url" koanf:"url"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" koanf:"driver" validate:"oneof=memory postgres"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" koanf:"jwt_secret" validate:"required"`
}

type EmailConfig struct {
	SMTPHost     string   `yaml:"smtp_host" koanf:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port" koanf:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user" koanf:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password" koanf:"smtp_password"`
	FromEmail    string   `yaml:"from_email" koanf:"from_email" validate:"omitempty,email"`
	Recipients   []string `yaml:"recipients" koanf:"recipients" validate:"dive,email"`
}

func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && len(e.Recipients) > 0
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" koanf:"bot_token"`
	ChatID   int64  `yaml:"chat_id" koanf:"chat_id"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type NATSConfig struct {
	URL           string `yaml:"url" koanf:"url"`
	Stream        string `yaml:"stream" koanf:"stream"`
	SubjectPrefix string `yaml:"subject_prefix" koanf:"subject_prefix"`
}

type FilesConfig struct {
	RootDir  string `yaml:"root_dir" koanf:"root_dir"`
	FontPath string `yaml:"font_path" koanf:"font_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" koanf:"format" validate:"oneof=text json"`
}

type PipelineConfig struct {
	ProbabilityTolerance int                      `yaml:"probability_tolerance" koanf:"probability_tolerance" validate:"gte=0,lte=100"`
	AsyncHooks           bool                     `yaml:"async_hooks" koanf:"async_hooks"`
	HookTimeout          time.Duration            `yaml:"hook_timeout" koanf:"hook_timeout"`
	Stages               []models.StageDefinition `yaml:"stages" koanf:"stages" validate:"required,min=1,dive"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Database DatabaseConfig `yaml:"database" koanf:"database"`
	Storage  StorageConfig  `yaml:"storage" koanf:"storage"`
	Auth     AuthConfig     `yaml:"auth" koanf:"auth"`
	Email    EmailConfig    `yaml:"email" koanf:"email"`
	Telegram TelegramConfig `yaml:"telegram" koanf:"telegram"`
	NATS     NATSConfig     `yaml:"nats" koanf:"nats"`
	Files    FilesConfig    `yaml:"files" koanf:"files"`
	Logging  LoggingConfig  `yaml:"logging" koanf:"logging"`
	Pipeline PipelineConfig `yaml:"pipeline" koanf:"pipeline"`
}

// Default returns a configuration that runs the service in memory with the
// standard M&A stage catalog.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Storage: StorageConfig{Driver: "memory"},
		Auth:    AuthConfig{JWTSecret: "change-me"},
		NATS:    NATSConfig{Stream: "DEAL_PIPELINE", SubjectPrefix: "pipeline.transitions"},
		Files:   FilesConfig{RootDir: "./files", FontPath: "assets/fonts/DejaVuSans.ttf"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{
			ProbabilityTolerance: 10,
			HookTimeout:          30 * time.Second,
			Stages:               DefaultStages(),
		},
	}
}

// Load reads path over the defaults, then applies DEALPIPE_ environment
// overrides and validates the result. A missing file at DefaultPath is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays variables such as DEALPIPE_DATABASE__URL onto cfg; a
// double underscore separates nesting levels.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	return nil
}

func envTransform(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Storage.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("config validation failed: database.url is required for the postgres driver")
	}
	return nil
}
