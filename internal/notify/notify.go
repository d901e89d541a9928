// Package notify отправляет администраторам сообщения в Telegram:
// итоги выплат призовых фондов и неудачные синхронизации.
// Без TELEGRAM_BOT_TOKEN используется Noop.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/engagement"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
)

// Notifier: уведомления для движка синхронизации и сервиса фондов.
type Notifier interface {
	PoolDistributed(ctx context.Context, pool *prizepool.Pool, result *prizepool.DistributionResult)
	SyncFinished(ctx context.Context, report *engagement.SyncReport)
}

// Telegram пишет в админский чат.
type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram создаёт уведомитель. Токен проверяется при создании.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// PoolDistributed отправляет итог выплаты.
func (t *Telegram) PoolDistributed(ctx context.Context, pool *prizepool.Pool, result *prizepool.DistributionResult) {
	t.send(ctx, FormatDistribution(pool, result))
}

// SyncFinished отправляет итог неудачной синхронизации.
func (t *Telegram) SyncFinished(ctx context.Context, report *engagement.SyncReport) {
	t.send(ctx, FormatSync(report))
}

func (t *Telegram) send(ctx context.Context, text string) {
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", t.chatID).Warn("Не удалось отправить уведомление")
	}
}

// Noop ничего не отправляет.
type Noop struct{}

func (Noop) PoolDistributed(context.Context, *prizepool.Pool, *prizepool.DistributionResult) {}
func (Noop) SyncFinished(context.Context, *engagement.SyncReport) {}

// FormatDistribution: текст уведомления о выплате.
//
// Пример:
//
//	💰 Фонд 1f0c… (weekly) выплачен
//	Сообщество: comm_1
//	Период: 01.06.2026 00:00 - 08.06.2026 00:00 (7 дней)
//	Выплачено: 880.00 USD, 9 победителей
//	Не прошло: 1
//	  #3 user_03: получатель не может принимать платежи
func FormatDistribution(pool *prizepool.Pool, result *prizepool.DistributionResult) string {
	var b strings.Builder

	icon, verdict := "💰", "выплачен"
	if result.Status == prizepool.StatusFailed {
		icon, verdict = "❌", "не выплачен"
	}
	fmt.Fprintf(&b, "%s Фонд %s (%s) %s\n", icon, pool.ID, pool.PeriodType, verdict)
	fmt.Fprintf(&b, "Сообщество: %s\n", pool.CommunityID)
	days := common.DaysBetween(pool.StartDate, pool.EndDate)
	fmt.Fprintf(&b, "Период: %s - %s (%d %s)\n",
		common.FormatDateTime(pool.StartDate), common.FormatDateTime(pool.EndDate),
		days, common.PluralizeDays(days))
	fmt.Fprintf(&b, "Выплачено: %s, %d %s\n",
		common.FormatCents(result.TotalPaidCents, result.Currency),
		result.WinnersCount, common.PluralizeWinners(result.WinnersCount))

	if len(result.Failures) > 0 {
		fmt.Fprintf(&b, "Не прошло: %d\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Fprintf(&b, "  #%d %s: %s\n", f.Rank, f.UserID, f.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSync: текст уведомления о синхронизации.
func FormatSync(report *engagement.SyncReport) string {
	var b strings.Builder

	failed := report.FailedChannels()
	fmt.Fprintf(&b, "⚠️ Синхронизация %s: %s\n", report.CommunityID, report.Status)
	fmt.Fprintf(&b, "Записано постов: %d, без изменений: %d\n", report.Synced, report.Skipped)
	if failed > 0 {
		fmt.Fprintf(&b, "Упало: %d %s из %d\n", failed, common.PluralizeChannels(failed), len(report.Channels))
		for _, c := range report.Channels {
			if c.Failed() {
				fmt.Fprintf(&b, "  %s %s: %s\n", c.Kind, c.ChannelID, c.Error)
			}
		}
	}
	for _, e := range report.Errors {
		fmt.Fprintf(&b, "  пересчёт: %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}
