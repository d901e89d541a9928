// Package app инициализирует все компоненты приложения.
// app.go: точка сборки, создаёт БД-пул, клиент платформы, репозитории,
// сервисы, HTTP-сервер и планировщик.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/api"
	"serotonyl.ru/community-leaderboard/internal/config"
	"serotonyl.ru/community-leaderboard/internal/db/postgres"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/engagement"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/features/streak"
	"serotonyl.ru/community-leaderboard/internal/jobs"
	"serotonyl.ru/community-leaderboard/internal/lock"
	"serotonyl.ru/community-leaderboard/internal/notify"
	"serotonyl.ru/community-leaderboard/internal/platform"
)

// App содержит все компоненты приложения.
type App struct {
	HTTP      *http.Server
	Scheduler *jobs.Scheduler // nil, если FEATURE_SCHEDULED_SYNC выключен
	DB        *pgxpool.Pool

	api     *api.Server
	closers []func() error
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	a := &App{DB: pool}

	if err := postgres.Migrate(ctx, pool, postgres.Migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Внешние системы ===
	client := platform.New(platform.Options{
		BaseURL:  cfg.PlatformAPIURL,
		APIKey:   cfg.PlatformAPIKey,
		Timeout:  cfg.PlatformTimeout,
		RPS:      cfg.PlatformRPS,
		Burst:    cfg.PlatformBurst,
		PageSize: cfg.PlatformPageSize,
		MaxPages: cfg.PlatformMaxPages,
	})

	locker, err := newLocker(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === 3. Репозитории ===
	activityRepo := activity.NewRepository(pool)
	memberRepo := members.NewRepository(pool)
	boardRepo := leaderboard.NewRepository(pool)
	streakRepo := streak.NewRepository(pool)
	poolRepo := prizepool.NewRepository(pool)
	runRepo := engagement.NewRepository(pool)

	// === 4. Сервисы ===
	memberService := members.NewService(memberRepo)
	boardService := leaderboard.NewService(boardRepo, activityRepo)
	streakService := streak.NewService(streakRepo, activityRepo)
	engine := engagement.NewEngine(engagement.Deps{
		Source:     client,
		Posts:      activityRepo,
		Users:      memberRepo,
		Channels:   memberService,
		Aggregator: boardService,
		Streaks:    streakService,
		Runs:       runRepo,
		Locker:     locker,
		Notifier:   notifier,
	}, cfg.SyncConcurrency)
	poolService := prizepool.NewService(poolRepo, client, memberService, boardService).
		WithNotifier(notifier).
		WithDefaultCurrency(cfg.PayoutCurrency).
		WithPayoutsEnabled(cfg.FeaturePayoutsEnabled)

	// === 5. HTTP ===
	a.api = api.NewServer(api.Services{
		Engine:      engine,
		Members:     memberService,
		Leaderboard: boardService,
		Streaks:     streakService,
		Pools:       poolService,
		Locker:      locker,
	}, api.Options{
		AdminTokenHash:    cfg.AdminTokenHash,
		RequestTimeout:    cfg.HTTPRequestTimeout,
		StaleAfter:        cfg.SyncStaleAfter,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})
	a.HTTP = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// === 6. Планировщик задач ===
	if cfg.FeatureScheduledSync {
		// проход должен закончиться раньше, чем истечёт блокировка сообщества
		a.Scheduler = jobs.NewScheduler(engine, cfg.SyncCron, cfg.LockTTL)
	} else {
		log.Info("Плановая синхронизация выключена (FEATURE_SCHEDULED_SYNC=false)")
	}

	return a, nil
}

// newLocker выбирает Redis, если он настроен, иначе блокировки в памяти процесса.
func newLocker(ctx context.Context, cfg *config.Config, a *App) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR не задан, блокировки работают только внутри одного процесса")
		return lock.NewLocal(cfg.LockTTL), nil
	}
	r, err := lock.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	a.closers = append(a.closers, r.Close)
	return r, nil
}

// notifier: общий интерфейс уведомлений движка и призовых фондов.
type notifier interface {
	engagement.Notifier
	prizepool.Notifier
}

func newNotifier(cfg *config.Config) (notifier, error) {
	if !cfg.TelegramEnabled() {
		log.Info("Уведомления в Telegram выключены")
		return notify.Noop{}, nil
	}
	t, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Close освобождает ресурсы. HTTP-сервер и планировщик останавливаются раньше.
func (a *App) Close() {
	if a.api != nil {
		a.api.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.WithError(err).Warn("Ошибка при закрытии ресурса")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
