// Package config loads studypad settings.
//
// Values are layered, later sources winning:
//   - built-in defaults
//   - an optional TOML file (--config or STUDYPAD_CONFIG)
//   - a .env file in the working directory, if present
//   - environment variables (OPENAI_API_KEY and STUDYPAD_*)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/RichardoC/studypad/internal/llm"
)

const envPrefix = "STUDYPAD_"

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Storage  StorageConfig  `toml:"storage"`
	OCR      OCRConfig      `toml:"ocr"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	StaticDir       string   `toml:"static_dir"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// MaxUploadBytes bounds multipart document uploads.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	// Provider is "langchain" or "openai".
	Provider   string   `toml:"provider"`
	BaseURL    string   `toml:"base_url"`
	Token      string   `toml:"token"`
	Model      string   `toml:"model"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay Duration `toml:"retry_delay"`
}

type StorageConfig struct {
	// Backend is "memory" or "gcs".
	Backend     string   `toml:"backend"`
	Bucket      string   `toml:"bucket"`
	Credentials string   `toml:"credentials"`
	URLTTL      Duration `toml:"url_ttl"`
}

type OCRConfig struct {
	// Backend is "none", "llm" or "vision".
	Backend string   `toml:"backend"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

type LogConfig struct {
	// Mode is "production" or "development".
	Mode string `toml:"mode"`
}

// Duration decodes TOML strings such as "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8100",
			StaticDir:       "web",
			ShutdownTimeout: Duration{10 * time.Second},
			MaxUploadBytes:  20 << 20,
		},
		Database: DatabaseConfig{Path: "studypad.db"},
		LLM: LLMConfig{
			Provider:   "langchain",
			BaseURL:    "http://localhost:11434/v1/",
			Token:      "ollama",
			Model:      "llama3.1:8b",
			Timeout:    Duration{60 * time.Second},
			MaxRetries: 2,
			RetryDelay: Duration{500 * time.Millisecond},
		},
		Storage: StorageConfig{
			Backend: "memory",
			Bucket:  "studypad",
			URLTTL:  Duration{15 * time.Minute},
		},
		OCR: OCRConfig{
			Backend: "none",
			Timeout: Duration{90 * time.Second},
		},
		Log: LogConfig{Mode: "production"},
	}
}

// Load builds the configuration. path may be empty; STUDYPAD_CONFIG is used then.
func Load(path string) (Config, error) {
	cfg := Default()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs error
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			dst.Duration = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("OPENAI_API_KEY", &c.LLM.Token)
	str(envPrefix+"ADDR", &c.Server.Addr)
	str(envPrefix+"STATIC_DIR", &c.Server.StaticDir)
	str(envPrefix+"DB_PATH", &c.Database.Path)
	str(envPrefix+"LLM_PROVIDER", &c.LLM.Provider)
	str(envPrefix+"LLM_BASE_URL", &c.LLM.BaseURL)
	str(envPrefix+"LLM_TOKEN", &c.LLM.Token)
	str(envPrefix+"LLM_MODEL", &c.LLM.Model)
	dur(envPrefix+"LLM_TIMEOUT", &c.LLM.Timeout)
	integer(envPrefix+"LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	str(envPrefix+"STORAGE_BACKEND", &c.Storage.Backend)
	str(envPrefix+"GCS_BUCKET", &c.Storage.Bucket)
	str(envPrefix+"GCS_CREDENTIALS", &c.Storage.Credentials)
	str(envPrefix+"OCR_BACKEND", &c.OCR.Backend)
	str(envPrefix+"OCR_MODEL", &c.OCR.Model)
	str(envPrefix+"LOG_MODE", &c.Log.Mode)
	return errs
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = multierr.Append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = multierr.Append(errs, errors.New("database.path is required"))
	}
	switch c.LLM.Provider {
	case "langchain", "openai":
	default:
		errs = multierr.Append(errs, fmt.Errorf("llm.provider %q must be langchain or openai", c.LLM.Provider))
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		errs = multierr.Append(errs, errors.New("llm.base_url is required"))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = multierr.Append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = multierr.Append(errs, errors.New("llm.max_retries must not be negative"))
	}
	switch c.Storage.Backend {
	case "memory":
	case "gcs":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			errs = multierr.Append(errs, errors.New("storage.bucket is required for gcs"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("storage.backend %q must be memory or gcs", c.Storage.Backend))
	}
	switch c.OCR.Backend {
	case "none", "llm", "vision":
	default:
		errs = multierr.Append(errs, fmt.Errorf("ocr.backend %q must be none, llm or vision", c.OCR.Backend))
	}
	switch c.Log.Mode {
	case "production", "development":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.mode %q must be production or development", c.Log.Mode))
	}
	return errs
}

// BackendConfig maps the llm section onto llm.NewBackend's input.
func (c LLMConfig) BackendConfig() llm.BackendConfig {
	return llm.BackendConfig{
		Provider:   c.Provider,
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		Model:      c.Model,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay.Duration,
	}
}
