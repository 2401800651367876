package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Auth struct {
		// JWK публичного ключа OIDC-провайдера (JSON с kty/n/e).
		JWK string `envconfig:"OIDC_JWK"`
		// HS256-секрет для dev-окружения, когда провайдер не настроен.
		DevSecret string `envconfig:"AUTH_DEV_SECRET"`
		Issuer    string `envconfig:"OIDC_ISSUER"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Studio struct {
		SessionSaveDelay  time.Duration `envconfig:"SESSION_SAVE_DELAY" default:"3s"`
		PostPatchDelay    time.Duration `envconfig:"POST_PATCH_DELAY" default:"2s"`
		SuggestionTimeout time.Duration `envconfig:"SUGGESTION_TIMEOUT" default:"60s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. .env подхватывается, если есть.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env не загружен: %v", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
