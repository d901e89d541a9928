// Package members: service.go содержит бизнес-логику управления сообществами:
// регистрацию счёта выплат, набор отслеживаемых каналов и названия уровней.
package members

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/points"
)

// MaxLevelTitleLength: максимум символов в названии уровня.
const MaxLevelTitleLength = 64

// Store: хранилище сообществ и каналов.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*User, error)
	UpsertCommunity(ctx context.Context, c *Community) error
	GetCommunity(ctx context.Context, id string) (*Community, error)
	ListChannels(ctx context.Context, communityID string) ([]Channel, error)
	ReplaceChannels(ctx context.Context, communityID string, channels []Channel) error
	ListCommunitiesWithChannels(ctx context.Context) ([]string, error)
	GetLevelNames(ctx context.Context, communityID string) (map[int]string, error)
	SetLevelName(ctx context.Context, communityID string, level int, title string) error
}

// Service управляет сообществами.
type Service struct {
	store Store
}

// NewService создаёт новый сервис сообществ.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// RegisterCommunity сохраняет сообщество и счёт, с которого идут выплаты.
func (s *Service) RegisterCommunity(ctx context.Context, c *Community) error {
	c.ID = strings.TrimSpace(c.ID)
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
	if c.ID == "" {
		return common.NewValidationError("id", "не задан ID сообщества")
	}
	if strings.TrimSpace(c.LedgerAccountID) == "" {
		return common.NewValidationError("ledgerAccountId", "не задан счёт сообщества")
	}
	if c.Currency == "" {
		return common.NewValidationError("currency", "не задана валюта")
	}
	if err := s.store.UpsertCommunity(ctx, c); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"community_id": c.ID,
		"currency":     c.Currency,
	}).Info("Сообщество зарегистрировано")
	return nil
}

// GetCommunity возвращает сообщество по ID.
func (s *Service) GetCommunity(ctx context.Context, id string) (*Community, error) {
	return s.store.GetCommunity(ctx, id)
}

// GetUser возвращает пользователя по ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.GetUser(ctx, id)
}

// Users возвращает пользователей по списку ID. Неизвестные ID пропускаются.
func (s *Service) Users(ctx context.Context, ids []string) (map[string]*User, error) {
	if len(ids) == 0 {
		return map[string]*User{}, nil
	}
	return s.store.GetUsers(ctx, ids)
}

// SetChannels заменяет набор отслеживаемых каналов. Дубликаты схлопываются,
// последний указанный тип канала побеждает.
func (s *Service) SetChannels(ctx context.Context, communityID string, channels []Channel) ([]Channel, error) {
	if strings.TrimSpace(communityID) == "" {
		return nil, common.NewValidationError("communityId", "не задан ID сообщества")
	}

	index := make(map[string]int, len(channels))
	out := make([]Channel, 0, len(channels))
	for i, ch := range channels {
		id := strings.TrimSpace(ch.ChannelID)
		if id == "" {
			return nil, common.NewValidationError(fmt.Sprintf("channels[%d].channelId", i), "не задан ID канала")
		}
		if !ch.Kind.Valid() {
			return nil, common.NewValidationError(fmt.Sprintf("channels[%d].kind", i), "тип канала должен быть forum или chat")
		}
		normalized := Channel{CommunityID: communityID, ChannelID: id, Kind: ch.Kind}
		if pos, ok := index[id]; ok {
			out[pos] = normalized
			continue
		}
		index[id] = len(out)
		out = append(out, normalized)
	}

	if err := s.store.ReplaceChannels(ctx, communityID, out); err != nil {
		return nil, err
	}

	set := SplitChannels(out)
	log.WithFields(log.Fields{
		"community_id": communityID,
		"forum":        len(set.Forum),
		"chat":         len(set.Chat),
	}).Info("Каналы сообщества обновлены")
	return out, nil
}

// Channels возвращает каналы сообщества, разделённые по типу.
func (s *Service) Channels(ctx context.Context, communityID string) (ChannelSet, error) {
	channels, err := s.store.ListChannels(ctx, communityID)
	if err != nil {
		return ChannelSet{}, err
	}
	return SplitChannels(channels), nil
}

// CommunitiesToSync возвращает сообщества, у которых есть хотя бы один канал.
func (s *Service) CommunitiesToSync(ctx context.Context) ([]string, error) {
	return s.store.ListCommunitiesWithChannels(ctx)
}

// LevelTable возвращает таблицу уровней с названиями, переопределёнными для сообщества.
func (s *Service) LevelTable(ctx context.Context, communityID string) (*points.Table, error) {
	titles, err := s.store.GetLevelNames(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return points.NewTable().WithTitles(titles), nil
}

// SetLevelName переопределяет название уровня для сообщества.
func (s *Service) SetLevelName(ctx context.Context, communityID string, level int, title string) error {
	title = strings.TrimSpace(title)
	if level < 1 || level > points.MaxLevel {
		return common.NewValidationError("level", fmt.Sprintf("уровень должен быть от 1 до %d", points.MaxLevel))
	}
	if title == "" {
		return common.NewValidationError("title", "название не может быть пустым")
	}
	if len([]rune(title)) > MaxLevelTitleLength {
		return common.NewValidationError("title", "название слишком длинное (максимум 64 символа)")
	}
	return s.store.SetLevelName(ctx, communityID, level, title)
}
