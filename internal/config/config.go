// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- HTTP ---
	HTTPAddr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPRequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"2m"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"leaderboard"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"leaderboard"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Admin ---
	// Argon2id-хеш токена администратора, генерируется scripts/generate_hash.go
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH" required:"true"`

	// --- Platform API ---
	PlatformAPIURL   string        `envconfig:"PLATFORM_API_URL" required:"true"`
	PlatformAPIKey   string        `envconfig:"PLATFORM_API_KEY" required:"true"`
	PlatformRPS      float64       `envconfig:"PLATFORM_RPS" default:"10"`
	PlatformBurst    int           `envconfig:"PLATFORM_BURST" default:"20"`
	PlatformTimeout  time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"15s"`
	PlatformPageSize int           `envconfig:"PLATFORM_PAGE_SIZE" default:"100"`
	PlatformMaxPages int           `envconfig:"PLATFORM_MAX_PAGES" default:"500"`

	// --- Sync ---
	SyncCron        string        `envconfig:"SYNC_CRON" default:"*/15 * * * *"`
	SyncConcurrency int           `envconfig:"SYNC_CONCURRENCY" default:"4"`
	SyncStaleAfter  time.Duration `envconfig:"SYNC_STALE_AFTER" default:"5m"`

	// --- Payouts ---
	PayoutCurrency string `envconfig:"PAYOUT_CURRENCY" default:"usd"`

	// --- Redis (блокировки на сообщество). Пусто: блокировки внутри процесса ---
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"10m"`

	// --- Telegram (уведомления администратору). Пусто: уведомления выключены ---
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramAdminChatID int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID" default:"0"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureScheduledSync  bool `envconfig:"FEATURE_SCHEDULED_SYNC" default:"true"`
	FeaturePayoutsEnabled bool `envconfig:"FEATURE_PAYOUTS_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// TelegramEnabled: заданы ли токен и чат для уведомлений.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAdminChatID != 0
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if !strings.HasPrefix(c.AdminTokenHash, "$argon2id$") {
		return fmt.Errorf("ADMIN_TOKEN_HASH должен быть в формате argon2id")
	}
	if !strings.HasPrefix(c.PlatformAPIURL, "http://") && !strings.HasPrefix(c.PlatformAPIURL, "https://") {
		return fmt.Errorf("PLATFORM_API_URL должен начинаться с http:// или https://")
	}
	if c.PlatformRPS <= 0 || c.PlatformBurst <= 0 {
		return fmt.Errorf("PLATFORM_RPS и PLATFORM_BURST должны быть > 0")
	}
	if c.PlatformPageSize <= 0 || c.PlatformPageSize > 1000 {
		return fmt.Errorf("PLATFORM_PAGE_SIZE должен быть в диапазоне 1..1000")
	}
	if c.PlatformMaxPages <= 0 {
		return fmt.Errorf("PLATFORM_MAX_PAGES должен быть > 0")
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("SYNC_CONCURRENCY должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	if c.PayoutCurrency == "" {
		return fmt.Errorf("PAYOUT_CURRENCY не задан")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.PayoutCurrency = strings.ToLower(strings.TrimSpace(cfg.PayoutCurrency))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
