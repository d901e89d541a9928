// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание синхронизации всех сообществ.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/features/engagement"
)

// Syncer синхронизирует все сообщества с отслеживаемыми каналами.
type Syncer interface {
	SyncAll(ctx context.Context) ([]*engagement.SyncReport, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	schedule string
	timeout  time.Duration
}

// NewScheduler создаёт планировщик в UTC: дни стриков и окна рейтинга тоже в UTC.
// schedule: стандартное cron-выражение (SYNC_CRON). timeout ограничивает один проход.
func NewScheduler(syncer Syncer, schedule string, timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		// следующий проход не стартует, пока не закончился предыдущий
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, syncer: syncer, schedule: schedule, timeout: timeout}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunSync(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание SYNC_CRON %q: %w", s.schedule, err)
	}
	s.cron.Start()
	log.WithField("schedule", s.schedule).Info("Планировщик задач запущен (UTC)")
	return nil
}

// RunSync: один проход синхронизации всех сообществ.
func (s *Scheduler) RunSync(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Info("[CRON] Синхронизация сообществ")
	start := time.Now()
	reports, err := s.syncer.SyncAll(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка синхронизации")
	}

	counts := map[engagement.RunStatus]int{}
	for _, r := range reports {
		counts[r.Status]++
	}
	log.WithFields(log.Fields{
		"communities": len(reports),
		"success":     counts[engagement.StatusSuccess],
		"partial":     counts[engagement.StatusPartial],
		"failed":      counts[engagement.StatusFailed],
		"elapsed":     time.Since(start).Round(time.Millisecond).String(),
	}).Info("[CRON] Синхронизация завершена")
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
