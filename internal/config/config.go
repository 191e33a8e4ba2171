package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// secretsDir - стандартный путь Docker Secrets. Переменная, чтобы тесты могли подменить.
var secretsDir = "/run/secrets"

// Config содержит конфигурацию сервиса CineGenius
type Config struct {
	// Настройки сервера
	ServerPort         string `envconfig:"SERVER_PORT" default:"8080"`
	Env                string `envconfig:"ENV" default:"development"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding        string `envconfig:"LOG_ENCODING" default:"json"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
	MaxBodyBytes       int64  `envconfig:"MAX_BODY_BYTES" default:"26214400"` // 25MB, файлы сценариев приходят в base64

	// Настройки AI
	AIClientType string        `envconfig:"AI_CLIENT_TYPE" default:"gemini"` // gemini | openai | ollama
	AITextModel  string        `envconfig:"AI_TEXT_MODEL" default:"gemini-2.5-flash"`
	AIImageModel string        `envconfig:"AI_IMAGE_MODEL" default:"imagen-3.0-generate-002"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:""`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"180s"`
	// Ключ можно задать через AI_API_KEY, иначе читается секрет ai_api_key
	AIAPIKey string `envconfig:"AI_API_KEY" default:""`

	// Сессии и раскадровка
	ImageConcurrency int           `envconfig:"IMAGE_CONCURRENCY" default:"4"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"2h"`

	// Настройки Redis (пустой адрес - снапшоты сессий отключены)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Настройки PostgreSQL (пустой DB_HOST - журнал генераций отключен)
	DBHost        string        `envconfig:"DB_HOST" default:""`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"cinegenius"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword    string        `envconfig:"DB_PASSWORD" default:""`

	// Настройки RabbitMQ (пустой URL - события в очередь не публикуются)
	RabbitMQURL         string `envconfig:"RABBITMQ_URL" default:""`
	ArtifactEventsQueue string `envconfig:"ARTIFACT_EVENTS_QUEUE" default:"cinegenius_artifact_events"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// JournalEnabled - true, если задан хост PostgreSQL.
func (c *Config) JournalEnabled() bool { return c.DBHost != "" }

// GetAllowedOrigins разбирает CORS_ALLOWED_ORIGINS (через запятую).
func (c *Config) GetAllowedOrigins() []string {
	if strings.TrimSpace(c.CORSAllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	switch strings.ToLower(cfg.AIClientType) {
	case "gemini", "openai", "ollama":
		cfg.AIClientType = strings.ToLower(cfg.AIClientType)
	default:
		return nil, fmt.Errorf("неизвестный AI_CLIENT_TYPE %q (ожидается gemini, openai или ollama)", cfg.AIClientType)
	}
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = 1
	}

	// Ключ обязателен для облачных бэкендов; для Ollama не нужен.
	if cfg.AIAPIKey == "" && cfg.AIClientType != "ollama" {
		key, err := ReadSecret("ai_api_key")
		if err != nil {
			return nil, fmt.Errorf("AI API key is not configured: %w", err)
		}
		cfg.AIAPIKey = key
	}
	if cfg.JournalEnabled() && cfg.DBPassword == "" {
		if pwd, err := ReadSecret("db_password"); err == nil {
			cfg.DBPassword = pwd
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	log.Printf("Конфигурация загружена:")
	log.Printf("  Server Port: %s, Env: %s, Log Level: %s", cfg.ServerPort, cfg.Env, cfg.LogLevel)
	log.Printf("  AI Client: %s, Text Model: %s, Image Model: %s", cfg.AIClientType, cfg.AITextModel, cfg.AIImageModel)
	log.Printf("  AI Base URL: %q, Timeout: %v", cfg.AIBaseURL, cfg.AITimeout)
	log.Printf("  Image Concurrency: %d, Session TTL: %v", cfg.ImageConcurrency, cfg.SessionTTL)
	log.Printf("  Redis: %q (db %d)", cfg.RedisAddr, cfg.RedisDB)
	if cfg.JournalEnabled() {
		log.Printf("  DB DSN: %s", cfg.getMaskedDSN())
	} else {
		log.Printf("  DB: disabled (journal off)")
	}
	log.Printf("  RabbitMQ: %s, Events Queue: %s", maskURL(cfg.RabbitMQURL), cfg.ArtifactEventsQueue)
	if cfg.AIAPIKey != "" {
		log.Println("  AI API Key: [ЗАГРУЖЕН]")
	}

	return &cfg, nil
}

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(secretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// getMaskedDSN возвращает DSN с замаскированным паролем для логирования
func (c *Config) getMaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}

func maskURL(raw string) string {
	if raw == "" {
		return "disabled"
	}
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "********" + raw[at:]
}
