package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := secretsDir
	secretsDir = dir
	t.Cleanup(func() { secretsDir = old })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "gemini", cfg.AIClientType)
	assert.Equal(t, "gemini-2.5-flash", cfg.AITextModel)
	assert.Equal(t, "imagen-3.0-generate-002", cfg.AIImageModel)
	assert.Equal(t, 180*time.Second, cfg.AITimeout)
	assert.Equal(t, 4, cfg.ImageConcurrency)
	assert.False(t, cfg.JournalEnabled())
	assert.Nil(t, cfg.GetAllowedOrigins())
}

func TestLoadConfig_APIKeyFromSecret(t *testing.T) {
	dir := withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai_api_key"), []byte("  from-secret\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-secret", cfg.AIAPIKey)
}

func TestLoadConfig_MissingKey(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_OllamaNeedsNoKey(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")
	t.Setenv("AI_CLIENT_TYPE", "Ollama")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.AIClientType)
}

func TestLoadConfig_UnknownClientType(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "k")
	t.Setenv("AI_CLIENT_TYPE", "bard")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_Helpers(t *testing.T) {
	cfg := &Config{
		DBHost:             "db",
		DBPort:             "5432",
		DBUser:             "u",
		DBPassword:         "secret",
		DBName:             "n",
		DBSSLMode:          "disable",
		CORSAllowedOrigins: "http://a.test, ,http://b.test",
	}
	assert.True(t, cfg.JournalEnabled())
	assert.Equal(t, "postgres://u:secret@db:5432/n?sslmode=disable", cfg.GetDSN())
	assert.NotContains(t, cfg.getMaskedDSN(), "secret")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetAllowedOrigins())
	assert.Equal(t, "amqp://********@mq:5672/", maskURL("amqp://guest:guest@mq:5672/"))
	assert.Equal(t, "disabled", maskURL(""))
}
