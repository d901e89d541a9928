// Package engagement: engine.go выполняет проход синхронизации.
//
// Порядок прохода:
//  1. загрузка всех каналов (параллельно, не больше concurrency одновременно)
//  2. обработка каналов по очереди: новые и изменённые посты записываются
//  3. суммы рейтинга всех авторов сообщества, затем места
//  4. стрики всех авторов
//
// Ошибка канала попадает в его ChannelResult и не останавливает остальные.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/lock"
	"serotonyl.ru/community-leaderboard/internal/metrics"
	"serotonyl.ru/community-leaderboard/internal/platform"
)

// Source: платформа, откуда загружается активность.
type Source interface {
	ListForumPosts(ctx context.Context, channelID string) ([]platform.ForumPost, error)
	ListChatMessages(ctx context.Context, channelID string) ([]platform.ChatMessage, error)
}

// Posts: хранилище записей активности.
type Posts interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*activity.Post, error)
	Create(ctx context.Context, p *activity.Post) error
	UpdateEngagement(ctx context.Context, p *activity.Post) error
	ListAuthorIDs(ctx context.Context, communityID string) ([]string, error)
}

// Users: хранилище авторов и членства в сообществах.
type Users interface {
	UpsertUser(ctx context.Context, u *members.User) error
	EnsureMembership(ctx context.Context, userID, communityID string) error
}

// Channels отдаёт отслеживаемые каналы сообществ.
type Channels interface {
	Channels(ctx context.Context, communityID string) (members.ChannelSet, error)
	CommunitiesToSync(ctx context.Context) ([]string, error)
}

// Aggregator пересчитывает рейтинг.
type Aggregator interface {
	RefreshUserTotals(ctx context.Context, userID, communityID string) (int, error)
	RecalculateRanks(ctx context.Context, communityID string) (int, error)
}

// Streaks пересчитывает стрики.
type Streaks interface {
	Recompute(ctx context.Context, userID, communityID string) (bool, error)
}

// RunLog: журнал проходов.
type RunLog interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	LastRun(ctx context.Context, communityID string) (*Run, error)
}

// Notifier сообщает администраторам о неудачных проходах.
type Notifier interface {
	SyncFinished(ctx context.Context, report *SyncReport)
}

// Deps: зависимости движка. Locker и Notifier могут быть nil.
type Deps struct {
	Source     Source
	Posts      Posts
	Users      Users
	Channels   Channels
	Aggregator Aggregator
	Streaks    Streaks
	Runs       RunLog
	Locker     lock.Locker
	Notifier   Notifier
}

// Engine выполняет синхронизацию.
type Engine struct {
	deps        Deps
	concurrency int
	now         func() time.Time
}

// NewEngine создаёт движок синхронизации.
// concurrency: сколько каналов загружается одновременно.
func NewEngine(deps Deps, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Engine{deps: deps, concurrency: concurrency, now: time.Now}
}

// WithClock подменяет источник текущего времени (для тестов).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// fetched: загруженные элементы одного канала.
type fetched struct {
	result ChannelResult
	posts  []*activity.Post
	users  map[string]platform.Author
}

// SyncCommunityEngagement синхронизирует указанные каналы сообщества.
//
// Ошибка возвращается только при нарушении контракта (нет ID сообщества,
// нет каналов) или если сообщество уже синхронизируется. Сбои каналов и
// пересчёта описаны в отчёте.
func (e *Engine) SyncCommunityEngagement(ctx context.Context, communityID string, forumChannels, chatChannels []string) (*SyncReport, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, common.NewValidationError("communityId", "не задан ID сообщества")
	}
	if len(forumChannels) == 0 && len(chatChannels) == 0 {
		return nil, common.NewValidationError("channels", "не задано ни одного канала")
	}

	if e.deps.Locker != nil {
		unlock, err := e.deps.Locker.TryLock(ctx, lock.CommunityKey(communityID))
		if errors.Is(err, lock.ErrLocked) {
			return nil, &common.ConflictError{Message: "синхронизация сообщества уже выполняется"}
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка блокировки сообщества: %w", err)
		}
		defer unlock()
	}

	report := &SyncReport{
		RunID:       uuid.New(),
		CommunityID: communityID,
		Status:      StatusRunning,
		StartedAt:   e.now().UTC(),
	}
	e.startRun(ctx, report)

	logger := log.WithFields(log.Fields{
		"community_id": communityID,
		"run_id":       report.RunID,
	})
	logger.WithFields(log.Fields{
		"forum": len(forumChannels),
		"chat":  len(chatChannels),
	}).Info("Синхронизация начата")

	batches := e.fetchAll(ctx, communityID, forumChannels, chatChannels)

	seenUsers := make(map[string]bool)
	for _, b := range batches {
		if !b.result.Failed() {
			if err := e.processChannel(ctx, communityID, b, seenUsers, report); err != nil {
				b.result.Error = err.Error()
			}
		}
		if b.result.Failed() {
			metrics.ChannelErrors.WithLabelValues(string(b.result.Kind)).Inc()
			logger.WithFields(log.Fields{
				"channel_id": b.result.ChannelID,
				"kind":       b.result.Kind,
				"error":      b.result.Error,
			}).Warn("Канал не синхронизирован")
		}
		report.Synced += b.result.Synced
		report.Skipped += b.result.Skipped
		report.Channels = append(report.Channels, b.result)
	}

	failed := report.FailedChannels()
	if failed < len(report.Channels) {
		e.finalize(ctx, communityID, report)
	}

	switch {
	case failed == len(report.Channels):
		report.Status = StatusFailed
	case failed > 0 || len(report.Errors) > 0:
		report.Status = StatusPartial
	default:
		report.Status = StatusSuccess
	}
	report.FinishedAt = e.now().UTC()

	e.finishRun(ctx, report)
	metrics.SyncRuns.WithLabelValues(string(report.Status)).Inc()
	metrics.SyncDuration.Observe(report.Duration().Seconds())

	logger.WithFields(log.Fields{
		"status":          report.Status,
		"synced":          report.Synced,
		"skipped":         report.Skipped,
		"failed_channels": failed,
		"entries":         report.EntriesWritten,
		"ranks":           report.RanksWritten,
		"streaks":         report.StreaksWritten,
		"duration":        report.Duration().String(),
	}).Info("Синхронизация завершена")

	if report.Status != StatusSuccess && e.deps.Notifier != nil {
		e.deps.Notifier.SyncFinished(ctx, report)
	}
	return report, nil
}

// fetchAll загружает все каналы. Порядок результата совпадает с порядком
// каналов: сначала форумы, потом чаты.
func (e *Engine) fetchAll(ctx context.Context, communityID string, forumChannels, chatChannels []string) []*fetched {
	out := make([]*fetched, 0, len(forumChannels)+len(chatChannels))
	for _, id := range forumChannels {
		out = append(out, &fetched{result: ChannelResult{ChannelID: id, Kind: activity.KindForum}})
	}
	for _, id := range chatChannels {
		out = append(out, &fetched{result: ChannelResult{ChannelID: id, Kind: activity.KindChat}})
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, f := range out {
		g.Go(func() error {
			e.fetchChannel(ctx, communityID, f)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) fetchChannel(ctx context.Context, communityID string, f *fetched) {
	f.users = make(map[string]platform.Author)

	switch f.result.Kind {
	case activity.KindForum:
		items, err := e.deps.Source.ListForumPosts(ctx, f.result.ChannelID)
		if err != nil {
			f.result.Error = err.Error()
			return
		}
		f.result.Fetched = len(items)
		for _, p := range items {
			f.posts = append(f.posts, forumPost(communityID, p))
			f.users[p.Author.ID] = p.Author
		}
	case activity.KindChat:
		items, err := e.deps.Source.ListChatMessages(ctx, f.result.ChannelID)
		if err != nil {
			f.result.Error = err.Error()
			return
		}
		f.result.Fetched = len(items)
		f.posts = chatPosts(communityID, items)
		for _, m := range items {
			f.users[m.Author.ID] = m.Author
		}
	}
}

// processChannel записывает новые и изменённые посты канала.
func (e *Engine) processChannel(ctx context.Context, communityID string, f *fetched, seenUsers map[string]bool, report *SyncReport) error {
	if len(f.posts) == 0 {
		return nil
	}

	ids := make([]string, len(f.posts))
	for i, p := range f.posts {
		ids[i] = p.ID
	}
	existing, err := e.deps.Posts.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	kind := string(f.result.Kind)
	for _, p := range f.posts {
		old, ok := existing[p.ID]
		switch {
		case !ok:
			if !seenUsers[p.AuthorID] {
				if err := e.deps.Users.UpsertUser(ctx, authorUser(f.users[p.AuthorID])); err != nil {
					return err
				}
				if err := e.deps.Users.EnsureMembership(ctx, p.AuthorID, communityID); err != nil {
					return err
				}
				seenUsers[p.AuthorID] = true
				report.UsersWritten++
			}
			if err := e.deps.Posts.Create(ctx, p); err != nil {
				return err
			}
		case old.EngagementChanged(p):
			if err := e.deps.Posts.UpdateEngagement(ctx, p); err != nil {
				return err
			}
		default:
			f.result.Skipped++
			metrics.SyncItems.WithLabelValues(kind, "skipped").Inc()
			continue
		}
		f.result.Synced++
		metrics.SyncItems.WithLabelValues(kind, "synced").Inc()
	}
	return nil
}

// finalize пересчитывает суммы, места и стрики всех авторов сообщества.
// Ошибки копятся в отчёте, записанные посты остаются.
func (e *Engine) finalize(ctx context.Context, communityID string, report *SyncReport) {
	authors, err := e.deps.Posts.ListAuthorIDs(ctx, communityID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("список авторов: %v", err))
		return
	}

	for _, userID := range authors {
		n, err := e.deps.Aggregator.RefreshUserTotals(ctx, userID, communityID)
		report.EntriesWritten += n
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("рейтинг %s: %v", userID, err))
			continue
		}
		report.UsersRefreshed++
	}

	n, err := e.deps.Aggregator.RecalculateRanks(ctx, communityID)
	report.RanksWritten += n
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("места: %v", err))
	}

	for _, userID := range authors {
		changed, err := e.deps.Streaks.Recompute(ctx, userID, communityID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("стрик %s: %v", userID, err))
			continue
		}
		if changed {
			report.StreaksWritten++
		}
	}
}

func (e *Engine) startRun(ctx context.Context, report *SyncReport) {
	if e.deps.Runs == nil {
		return
	}
	run := &Run{ID: report.RunID, CommunityID: report.CommunityID, Status: StatusRunning, StartedAt: report.StartedAt}
	if err := e.deps.Runs.StartRun(ctx, run); err != nil {
		log.WithError(err).WithField("community_id", report.CommunityID).Warn("Не удалось записать начало синхронизации")
	}
}

func (e *Engine) finishRun(ctx context.Context, report *SyncReport) {
	if e.deps.Runs == nil {
		return
	}
	finished := report.FinishedAt
	run := &Run{
		ID:             report.RunID,
		CommunityID:    report.CommunityID,
		Status:         report.Status,
		Synced:         report.Synced,
		Skipped:        report.Skipped,
		FailedChannels: report.FailedChannels(),
		Error:          strings.Join(report.Errors, "; "),
		StartedAt:      report.StartedAt,
		FinishedAt:     &finished,
	}
	if err := e.deps.Runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).WithField("community_id", report.CommunityID).Warn("Не удалось записать итог синхронизации")
	}
}

// SyncCommunity синхронизирует отслеживаемые каналы сообщества.
func (e *Engine) SyncCommunity(ctx context.Context, communityID string) (*SyncReport, error) {
	set, err := e.deps.Channels.Channels(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, common.NewValidationError("channels", "у сообщества нет отслеживаемых каналов")
	}
	return e.SyncCommunityEngagement(ctx, communityID, set.Forum, set.Chat)
}

// SyncAll синхронизирует все сообщества с каналами. Ошибка одного
// сообщества не останавливает остальные.
func (e *Engine) SyncAll(ctx context.Context) ([]*SyncReport, error) {
	ids, err := e.deps.Channels.CommunitiesToSync(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]*SyncReport, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		report, err := e.SyncCommunity(ctx, id)
		if errors.Is(err, common.ErrConflict) {
			log.WithField("community_id", id).Info("Синхронизация уже идёт, пропускаем")
			continue
		}
		if err != nil {
			log.WithError(err).WithField("community_id", id).Error("Синхронизация сообщества не выполнена")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// LastRun возвращает последний проход сообщества.
func (e *Engine) LastRun(ctx context.Context, communityID string) (*Run, error) {
	if e.deps.Runs == nil {
		return nil, common.ErrNotFound
	}
	return e.deps.Runs.LastRun(ctx, communityID)
}

// NeedsRefresh: последний проход начался раньше, чем staleAfter назад, или его не было.
func (e *Engine) NeedsRefresh(ctx context.Context, communityID string, staleAfter time.Duration) (bool, error) {
	run, err := e.LastRun(ctx, communityID)
	if errors.Is(err, common.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return e.now().Sub(run.StartedAt) >= staleAfter, nil
}
