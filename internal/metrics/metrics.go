// Package metrics: метрики Prometheus для синхронизации, рейтинга и выплат.
// Отдаются на /metrics через promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leaderboard"

// SyncRuns: завершённые синхронизации по итоговому статусу (success, partial, failed).
var SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "runs_total",
	Help:      "Total engagement sync runs by final status.",
}, []string{"status"})

// SyncDuration: длительность синхронизации одного сообщества.
var SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "duration_seconds",
	Help:      "Duration of a full community sync pass.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
})

// SyncItems: обработанные посты: synced (записаны) или skipped (без изменений).
var SyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "items_total",
	Help:      "Activity items processed by sync, by outcome.",
}, []string{"kind", "outcome"})

// ChannelErrors: ошибки загрузки или обработки канала.
var ChannelErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "channel_errors_total",
	Help:      "Channels that failed during sync, by kind.",
}, []string{"kind"})

// Payouts: попытки выплат по статусу (completed, failed).
var Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "prizepool",
	Name:      "payouts_total",
	Help:      "Prize pool payouts by status.",
}, []string{"status"})

// PaidCents: сумма успешно выплаченных центов.
var PaidCents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "prizepool",
	Name:      "paid_cents_total",
	Help:      "Total amount paid out to winners, in minor currency units.",
}, []string{"currency"})

// PlatformRequests: запросы к API платформы по операции и результату.
var PlatformRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "platform",
	Name:      "requests_total",
	Help:      "Requests made to the community platform API.",
}, []string{"operation", "result"})

// HTTPRequests: входящие HTTP-запросы по маршруту и коду ответа.
var HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Incoming HTTP request duration by route and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})
