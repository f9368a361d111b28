package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	GoEnv    string `envconfig:"GO_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DATABASE_URLがあれば最優先
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"app"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	// セッション層が署名したJWTの検証用
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// 空ならキャッシュ無効
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// 空なら通知無効
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"storefront.orders"`

	PaymentAPIBase       string        `envconfig:"PAYMENT_API_BASE" default:"https://api.stripe.com"`
	PaymentSecretKey     string        `envconfig:"PAYMENT_SECRET_KEY" required:"true"`
	PaymentWebhookSecret string        `envconfig:"PAYMENT_WEBHOOK_SECRET" required:"true"`
	PaymentTimeout       time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"10s"`
	WebhookTimeout       time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	WebhookTolerance     time.Duration `envconfig:"WEBHOOK_TOLERANCE" default:"5m"`

	Currency string        `envconfig:"CURRENCY" default:"usd"`
	CartTTL  time.Duration `envconfig:"CART_TTL" default:"720h"`

	// カート表示キャッシュの寿命。CART_TTLとは別に短く持つ。
	CartCacheTTL time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`
}

// Loadは.envを読み込んでから環境変数をConfigに詰める
func Load() (Config, error) {
	// .envが無いのは本番では普通
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if len(cfg.Currency) != 3 {
		return Config{}, fmt.Errorf("CURRENCY must be a 3-letter code")
	}
	if cfg.PaymentTimeout <= 0 {
		return Config{}, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if cfg.CartCacheTTL <= 0 || cfg.CartCacheTTL > cfg.CartTTL {
		return Config{}, fmt.Errorf("CART_CACHE_TTL must be positive and not longer than CART_TTL")
	}
	if cfg.WebhookTimeout <= 0 {
		return Config{}, fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}

	return cfg, nil
}

// Addrはechoに渡すlisten先
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// PostgresDSNはDATABASE_URLが無いときに個別の値から組み立てる
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
