// Package api реализует HTTP-интерфейс сервиса: запуск синхронизации, рейтинг,
// статистика участника, призовые фонды и вебхук оплаты.
//
// Все ответы в формате {success, data, error, details}. Изменяющие
// маршруты доступны только администратору.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"serotonyl.ru/community-leaderboard/internal/features/engagement"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/features/streak"
	"serotonyl.ru/community-leaderboard/internal/lock"
)

// Services: сервисы, которые обслуживает HTTP-слой.
type Services struct {
	Engine      *engagement.Engine
	Members     *members.Service
	Leaderboard *leaderboard.Service
	Streaks     *streak.Service
	Pools       *prizepool.Service
	Locker      lock.Locker
}

// Options: настройки HTTP-слоя.
type Options struct {
	AdminTokenHash    string
	RequestTimeout    time.Duration
	StaleAfter        time.Duration // Возраст синхронизации, после которого refresh=true запускает новую
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server: HTTP API.
type Server struct {
	svc      Services
	opts     Options
	auth     *AdminAuth
	limiter  *RateLimiter
	validate *Validator
	now      func() time.Time
}

func NewServer(svc Services, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 60
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	return &Server{
		svc:      svc,
		opts:     opts,
		auth:     NewAdminAuth(opts.AdminTokenHash),
		limiter:  NewRateLimiter(opts.RateLimitRequests, opts.RateLimitWindow),
		validate: NewValidator(),
		now:      time.Now,
	}
}

// Close останавливает фоновые горутины лимитеров.
func (s *Server) Close() {
	s.limiter.Close()
	s.auth.Close()
}

// Handler возвращает роутер со всеми маршрутами.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// уведомления платёжной системы: ответ всегда 200
	r.Post("/webhooks/payments", s.handlePaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.limiter))

		r.Route("/communities/{communityID}", func(r chi.Router) {
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/members/{userID}", s.handleMemberStats)
			r.Get("/pools", s.handleListPools)
			r.Get("/pools/active", s.handleActivePool)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Put("/", s.handleRegisterCommunity)
				r.Put("/channels", s.handleSetChannels)
				r.Put("/levels/{level}", s.handleSetLevelName)
				r.Post("/sync", s.handleSync)
			})
		})

		r.Get("/pools/{poolID}", s.handleGetPool)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/pools", s.handleCreatePool)
			r.Post("/pools/{poolID}/distribute", s.handleDistribute)
		})
	})

	return r
}
