package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studypad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
shutdown_timeout = "3s"

[llm]
provider = "openai"
model = "qwen3:8b"
retry_delay = "250ms"

[storage]
backend = "gcs"
bucket = "class-notes"
`), 0o600))

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STUDYPAD_LLM_MODEL", "deepseek-r1:7b")
	t.Setenv("STUDYPAD_LLM_TIMEOUT", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "deepseek-r1:7b", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.Token)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RetryDelay.Duration)
	assert.Equal(t, "class-notes", cfg.Storage.Bucket)
	assert.Equal(t, "studypad.db", cfg.Database.Path, "defaults survive")
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \"/tmp/pad.db\"\n"), 0o600))
	t.Setenv("STUDYPAD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pad.db", cfg.Database.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[llm]\ntimeout = \"soon\"\n"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("STUDYPAD_LLM_MAX_RETRIES", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "STUDYPAD_LLM_MAX_RETRIES")
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "carrier-pigeon"
	cfg.Storage.Backend = "gcs"
	cfg.Storage.Bucket = ""
	cfg.OCR.Backend = "magic"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}

func TestNewLogger(t *testing.T) {
	for _, mode := range []string{"production", "development"} {
		logger, err := LogConfig{Mode: mode}.NewLogger()
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}

func TestBackendConfig(t *testing.T) {
	cfg := Default().LLM
	bc := cfg.BackendConfig()
	assert.Equal(t, "langchain", bc.Provider)
	assert.Equal(t, cfg.BaseURL, bc.BaseURL)
	assert.Equal(t, 500*time.Millisecond, bc.RetryDelay)
	assert.Equal(t, 2, bc.MaxRetries)
}
