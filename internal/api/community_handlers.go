package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/points"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/features/streak"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
)

type registerCommunityRequest struct {
	Name            string `json:"name" validate:"max=128"`
	LedgerAccountID string `json:"ledgerAccountId" validate:"required,max=128"`
	Currency        string `json:"currency" validate:"required,len=3"`
}

type channelRequest struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	Kind      string `json:"kind" validate:"required,oneof=forum chat"`
}

type setChannelsRequest struct {
	Channels []channelRequest `json:"channels" validate:"max=200,dive"`
}

type setLevelNameRequest struct {
	Title string `json:"title" validate:"required,max=64"`
}

// leaderboardRow: строка рейтинга с данными для отображения.
type leaderboardRow struct {
	Rank      int     `json:"rank"`
	UserID    string  `json:"userId"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatarUrl,omitempty"`
	Points    float64 `json:"points"`
	Level     int     `json:"level"`
	LevelName string  `json:"levelName"`
}

type activePoolView struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	PeriodType string  `json:"periodType"`
	EndDate    string  `json:"endDate"`
	DaysLeft   int     `json:"daysLeft"`
}

type leaderboardResponse struct {
	CommunityID string                 `json:"communityId"`
	Period      leaderboard.PeriodType `json:"period"`
	Entries     []leaderboardRow       `json:"entries"`
	ActivePool  *activePoolView        `json:"activePool,omitempty"`
	LastSyncAt  *time.Time             `json:"lastSyncAt,omitempty"`
}

type memberStatsResponse struct {
	User      *members.User                                `json:"user"`
	Level     points.LevelInfo                             `json:"level"`
	Streak    *streak.Record                               `json:"streak"`
	Standings map[leaderboard.PeriodType]*leaderboard.Entry `json:"standings"`
}

// POST /api/communities/{communityID}/sync
// Частичный успех: тоже 200, подробности в отчёте.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")

	report, err := s.svc.Engine.SyncCommunity(r.Context(), communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// PUT /api/communities/{communityID}
func (s *Server) handleRegisterCommunity(w http.ResponseWriter, r *http.Request) {
	var req registerCommunityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	c := &members.Community{
		ID:              chi.URLParam(r, "communityID"),
		Name:            req.Name,
		LedgerAccountID: req.LedgerAccountID,
		Currency:        req.Currency,
	}
	if err := s.svc.Members.RegisterCommunity(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.Members.GetCommunity(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, saved)
}

// PUT /api/communities/{communityID}/channels
// Заменяет набор каналов целиком. Пустой список снимает сообщество с синхронизации.
func (s *Server) handleSetChannels(w http.ResponseWriter, r *http.Request) {
	var req setChannelsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	channels := make([]members.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, members.Channel{ChannelID: ch.ChannelID, Kind: activity.Kind(ch.Kind)})
	}
	saved, err := s.svc.Members.SetChannels(r.Context(), chi.URLParam(r, "communityID"), channels)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"channels": saved})
}

// PUT /api/communities/{communityID}/levels/{level}
func (s *Server) handleSetLevelName(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, r, common.NewValidationError("level", "уровень должен быть числом"))
		return
	}
	var req setLevelNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Validate(req); err != nil {
		writeError(w, r, err)
		return
	}

	communityID := chi.URLParam(r, "communityID")
	if err := s.svc.Members.SetLevelName(r.Context(), communityID, level, req.Title); err != nil {
		writeError(w, r, err)
		return
	}
	table, err := s.svc.Members.LevelTable(r.Context(), communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"levels": table.Levels()})
}

// GET /api/communities/{communityID}/leaderboard?period=weekly&limit=50&refresh=true
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID := chi.URLParam(r, "communityID")
	q := r.URL.Query()

	period, err := leaderboard.ParsePeriod(q.Get("period"))
	if err != nil {
		writeError(w, r, common.NewValidationError("period", err.Error()))
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q.Get("refresh") == "true" {
		s.refreshIfStale(ctx, communityID)
	}

	entries, err := s.svc.Leaderboard.Top(ctx, communityID, period, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.leaderboardRows(ctx, communityID, entries)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := leaderboardResponse{CommunityID: communityID, Period: period, Entries: rows}

	pool, err := s.svc.Pools.ActivePool(ctx, communityID)
	switch {
	case err == nil:
		resp.ActivePool = s.poolView(pool)
	case !errors.Is(err, common.ErrNotFound):
		writeError(w, r, err)
		return
	}

	if run, err := s.svc.Engine.LastRun(ctx, communityID); err == nil {
		resp.LastSyncAt = &run.StartedAt
	}
	writeData(w, http.StatusOK, resp)
}

// refreshIfStale запускает синхронизацию при открытии страницы, если
// последняя была давно. Ошибки не мешают отдать текущий снимок.
func (s *Server) refreshIfStale(ctx context.Context, communityID string) {
	fields := log.Fields{"community_id": communityID}

	stale, err := s.svc.Engine.NeedsRefresh(ctx, communityID, s.opts.StaleAfter)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("Не удалось проверить давность синхронизации")
		return
	}
	if !stale {
		return
	}
	if _, err := s.svc.Engine.SyncCommunity(ctx, communityID); err != nil {
		log.WithError(err).WithFields(fields).Warn("Синхронизация при открытии рейтинга не выполнена")
	}
}

func (s *Server) leaderboardRows(ctx context.Context, communityID string, entries []*leaderboard.Entry) ([]leaderboardRow, error) {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.svc.Members.Users(ctx, ids)
	if err != nil {
		return nil, err
	}
	table, err := s.svc.Members.LevelTable(ctx, communityID)
	if err != nil {
		return nil, err
	}

	rows := make([]leaderboardRow, 0, len(entries))
	for _, e := range entries {
		row := leaderboardRow{Rank: e.Rank, UserID: e.UserID, Name: e.UserID, Points: e.Points}
		if u, ok := users[e.UserID]; ok {
			row.Name = u.Name()
			row.AvatarURL = u.AvatarURL
		}
		current := table.NextLevelInfo(e.Points).Current
		row.Level = current.Level
		row.LevelName = current.Title
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Server) poolView(p *prizepool.Pool) *activePoolView {
	return &activePoolView{
		ID:         p.ID.String(),
		Amount:     common.CentsToDecimal(p.AmountCents),
		Currency:   p.Currency,
		PeriodType: string(p.PeriodType),
		EndDate:    p.EndDate.Format(dateLayout),
		DaysLeft:   p.DaysLeft(s.now()),
	}
}

// GET /api/communities/{communityID}/members/{userID}
// Уровень считается по сумме за всё время.
func (s *Server) handleMemberStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID := chi.URLParam(r, "communityID")
	userID := chi.URLParam(r, "userID")

	user, err := s.svc.Members.GetUser(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	standings, err := s.svc.Leaderboard.UserStanding(ctx, userID, communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	table, err := s.svc.Members.LevelTable(ctx, communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.svc.Streaks.GetStreak(ctx, userID, communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var total float64
	if e, ok := standings[leaderboard.AllTime]; ok {
		total = e.Points
	}
	writeData(w, http.StatusOK, memberStatsResponse{
		User:      user,
		Level:     table.NextLevelInfo(total),
		Streak:    record,
		Standings: standings,
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLeaderboardLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, common.NewValidationError("limit", "limit должен быть положительным числом")
	}
	return min(n, maxLeaderboardLimit), nil
}
