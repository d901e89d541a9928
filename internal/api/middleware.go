package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/metrics"
)

// requestLogger пишет запрос в лог и в гистограмму HTTPRequests.
// Маршрут берётся шаблоном chi, чтобы ID в пути не раздували метку.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		log.WithFields(log.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"elapsed_ms": elapsed.Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP-запрос")
	})
}

// recoverer перехватывает панику обработчика и отвечает 500.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithFields(log.Fields{
				"component": "panic_recovery",
				"panic":     fmt.Sprintf("%v", rec),
				"stack":     string(debug.Stack()),
				"path":      r.URL.Path,
			}).Error("ПАНИКА в обработчике, восстановлено")
			writeJSON(w, http.StatusInternalServerError, envelope{Error: "внутренняя ошибка сервера"})
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit отвечает 429, когда клиент исчерпал лимит окна.
func rateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, envelope{Error: "слишком много запросов"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
