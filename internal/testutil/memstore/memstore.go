// Package memstore: хранилище в памяти для тестов. Повторяет поведение
// pgx-репозиториев: ON CONFLICT, ErrNotFound, условные переходы статусов.
// Writes считает записи, чтобы тесты могли проверить повторную синхронизацию.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/features/activity"
	"serotonyl.ru/community-leaderboard/internal/features/engagement"
	"serotonyl.ru/community-leaderboard/internal/features/leaderboard"
	"serotonyl.ru/community-leaderboard/internal/features/members"
	"serotonyl.ru/community-leaderboard/internal/features/prizepool"
	"serotonyl.ru/community-leaderboard/internal/features/streak"
)

// Writes: счётчики записей по таблицам.
type Writes struct {
	Posts       int
	Users       int
	Memberships int
	Entries     int
	Ranks       int
	Streaks     int
	Pools       int
	Payouts     int
}

// Total: всего записей, влияющих на рейтинг.
func (w Writes) Total() int {
	return w.Posts + w.Users + w.Memberships + w.Entries + w.Ranks + w.Streaks
}

type entryKey struct {
	userID, communityID string
	period              leaderboard.PeriodType
}

type memberKey struct {
	userID, communityID string
}

// Store реализует хранилища всех модулей.
type Store struct {
	mu sync.Mutex

	posts       map[string]*activity.Post
	users       map[string]*members.User
	memberships map[memberKey]bool
	communities map[string]*members.Community
	channels    map[string][]members.Channel
	levelNames  map[string]map[int]string
	entries     map[entryKey]*leaderboard.Entry
	streaks     map[memberKey]*streak.Record
	pools       map[uuid.UUID]*prizepool.Pool
	payouts     map[uuid.UUID][]*prizepool.Payout
	runs        []*engagement.Run

	writes Writes

	// FailOn: имя метода, который вернёт ошибку хранилища.
	FailOn string
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		posts:       make(map[string]*activity.Post),
		users:       make(map[string]*members.User),
		memberships: make(map[memberKey]bool),
		communities: make(map[string]*members.Community),
		channels:    make(map[string][]members.Channel),
		levelNames:  make(map[string]map[int]string),
		entries:     make(map[entryKey]*leaderboard.Entry),
		streaks:     make(map[memberKey]*streak.Record),
		pools:       make(map[uuid.UUID]*prizepool.Pool),
		payouts:     make(map[uuid.UUID][]*prizepool.Payout),
	}
}

// Writes возвращает счётчики записей.
func (s *Store) Writes() Writes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ResetWrites обнуляет счётчики.
func (s *Store) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = Writes{}
}

func (s *Store) fail(method string) error {
	if s.FailOn == method {
		return fmt.Errorf("%s: %w", method, common.ErrPersistence)
	}
	return nil
}

// --- activity ---

func clonePost(p *activity.Post) *activity.Post {
	cp := *p
	cp.Breakdown = maps.Clone(p.Breakdown)
	return &cp
}

func (s *Store) GetByID(_ context.Context, id string) (*activity.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clonePost(p), nil
}

func (s *Store) GetByIDs(_ context.Context, ids []string) (map[string]*activity.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByIDs"); err != nil {
		return nil, err
	}
	out := make(map[string]*activity.Post, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			out[id] = clonePost(p)
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, p *activity.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return err
	}
	cp := clonePost(p)
	cp.SyncedAt = time.Now().UTC()
	s.posts[p.ID] = cp
	s.writes.Posts++
	return nil
}

func (s *Store) UpdateEngagement(_ context.Context, p *activity.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateEngagement"); err != nil {
		return err
	}
	old, ok := s.posts[p.ID]
	if !ok {
		return common.ErrNotFound
	}
	cp := clonePost(p)
	cp.CommunityID, cp.ChannelID, cp.AuthorID, cp.Kind, cp.CreatedAt = old.CommunityID, old.ChannelID, old.AuthorID, old.Kind, old.CreatedAt
	s.posts[p.ID] = cp
	s.writes.Posts++
	return nil
}

func (s *Store) ListAuthorIDs(_ context.Context, communityID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListAuthorIDs"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, p := range s.posts {
		if p.CommunityID == communityID {
			seen[p.AuthorID] = true
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Store) ListActivityTimes(_ context.Context, userID, communityID string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, p := range s.posts {
		if p.AuthorID == userID && p.CommunityID == communityID {
			out = append(out, p.CreatedAt)
		}
	}
	return out, nil
}

func (s *Store) SumPoints(_ context.Context, userID, communityID string, since *time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SumPoints"); err != nil {
		return 0, err
	}
	total := 0.0
	for _, p := range s.posts {
		if p.AuthorID != userID || p.CommunityID != communityID {
			continue
		}
		if since != nil && p.CreatedAt.Before(*since) {
			continue
		}
		total += p.Points
	}
	return total, nil
}

// Posts возвращает копии всех постов сообщества.
func (s *Store) Posts(communityID string) []*activity.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*activity.Post
	for _, p := range s.posts {
		if p.CommunityID == communityID {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- members ---

func (s *Store) UpsertUser(_ context.Context, u *members.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	now := time.Now().UTC()
	if old, ok := s.users[u.ID]; ok {
		cp.CreatedAt = old.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.users[u.ID] = &cp
	s.writes.Users++
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*members.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]*members.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*members.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) EnsureMembership(_ context.Context, userID, communityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{userID, communityID}
	if !s.memberships[key] {
		s.memberships[key] = true
		s.writes.Memberships++
	}
	return nil
}

func (s *Store) UpsertCommunity(_ context.Context, c *members.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	now := time.Now().UTC()
	if old, ok := s.communities[c.ID]; ok {
		cp.CreatedAt = old.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.communities[c.ID] = &cp
	return nil
}

func (s *Store) GetCommunity(_ context.Context, id string) (*members.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.communities[id]
	if !ok {
		return nil, fmt.Errorf("сообщество %s: %w", id, common.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListChannels(_ context.Context, communityID string) ([]members.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.channels[communityID]), nil
}

func (s *Store) ReplaceChannels(_ context.Context, communityID string, channels []members.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(channels) == 0 {
		delete(s.channels, communityID)
		return nil
	}
	s.channels[communityID] = slices.Clone(channels)
	return nil
}

func (s *Store) ListCommunitiesWithChannels(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.channels)), nil
}

func (s *Store) GetLevelNames(_ context.Context, communityID string) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.levelNames[communityID]), nil
}

func (s *Store) SetLevelName(_ context.Context, communityID string, level int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.levelNames[communityID] == nil {
		s.levelNames[communityID] = make(map[int]string)
	}
	s.levelNames[communityID][level] = title
	return nil
}

// --- leaderboard ---

func (s *Store) GetEntry(_ context.Context, userID, communityID string, period leaderboard.PeriodType) (*leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey{userID, communityID, period}]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) UpsertPoints(_ context.Context, e *leaderboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertPoints"); err != nil {
		return err
	}
	key := entryKey{e.UserID, e.CommunityID, e.PeriodType}
	if old, ok := s.entries[key]; ok {
		old.Points = e.Points
		old.UpdatedAt = time.Now().UTC()
	} else {
		cp := *e
		cp.UpdatedAt = time.Now().UTC()
		s.entries[key] = &cp
	}
	s.writes.Entries++
	return nil
}

func (s *Store) periodEntries(communityID string, period leaderboard.PeriodType) []*leaderboard.Entry {
	var out []*leaderboard.Entry
	for k, e := range s.entries {
		if k.communityID == communityID && k.period == period {
			cp := *e
			out = append(out, &cp)
		}
	}
	leaderboard.SortEntries(out)
	return out
}

func (s *Store) ListEntries(_ context.Context, communityID string, period leaderboard.PeriodType) ([]*leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodEntries(communityID, period), nil
}

func (s *Store) TopEntries(_ context.Context, communityID string, period leaderboard.PeriodType, limit int) ([]*leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.periodEntries(communityID, period)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateRanks(_ context.Context, communityID string, period leaderboard.PeriodType, ranks map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateRanks"); err != nil {
		return err
	}
	for userID, rank := range ranks {
		if e, ok := s.entries[entryKey{userID, communityID, period}]; ok {
			e.Rank = rank
			s.writes.Ranks++
		}
	}
	return nil
}

// SetEntry кладёт строку рейтинга напрямую, минуя пересчёт.
func (s *Store) SetEntry(e *leaderboard.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	if cp.PeriodStart == "" {
		cp.PeriodStart = cp.PeriodType.StartLabel()
	}
	s.entries[entryKey{e.UserID, e.CommunityID, e.PeriodType}] = &cp
}

// --- streak ---

func (s *Store) GetStreak(_ context.Context, userID, communityID string) (*streak.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.streaks[memberKey{userID, communityID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) UpsertStreak(_ context.Context, r *streak.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	s.streaks[memberKey{r.UserID, r.CommunityID}] = &cp
	s.writes.Streaks++
	return nil
}

// --- prizepool ---

func clonePool(p *prizepool.Pool) *prizepool.Pool {
	cp := *p
	return &cp
}

func (s *Store) ListOpenPools(_ context.Context, communityID string) ([]*prizepool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*prizepool.Pool
	for _, p := range s.pools {
		if p.CommunityID == communityID && p.Status.Open() {
			out = append(out, clonePool(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) ListPools(_ context.Context, communityID string) ([]*prizepool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*prizepool.Pool
	for _, p := range s.pools {
		if p.CommunityID == communityID {
			out = append(out, clonePool(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreatePool(_ context.Context, p *prizepool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePool"); err != nil {
		return err
	}
	for _, existing := range s.pools {
		if existing.CommunityID != p.CommunityID || !existing.Status.Open() {
			continue
		}
		if p.StartDate.Before(existing.EndDate) && p.EndDate.After(existing.StartDate) {
			return &common.PoolConflictError{ExistingID: existing.ID.String(), Start: existing.StartDate, End: existing.EndDate}
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.pools[p.ID] = clonePool(p)
	s.writes.Pools++
	return nil
}

func (s *Store) GetPool(_ context.Context, id uuid.UUID) (*prizepool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("фонд %s: %w", id, common.ErrNotFound)
	}
	return clonePool(p), nil
}

func (s *Store) GetPoolByCheckout(_ context.Context, checkoutID string) (*prizepool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		if p.CheckoutID != nil && *p.CheckoutID == checkoutID {
			return clonePool(p), nil
		}
	}
	return nil, fmt.Errorf("фонд с checkout %s: %w", checkoutID, common.ErrNotFound)
}

func (s *Store) Activate(_ context.Context, id uuid.UUID, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok || p.Status != prizepool.StatusPending {
		return false, nil
	}
	p.Status = prizepool.StatusActive
	if paymentID != "" {
		p.PaymentID = &paymentID
	}
	return true, nil
}

func (s *Store) ClaimForDistribution(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok || (p.Status != prizepool.StatusActive && p.Status != prizepool.StatusDistributing) {
		return false, nil
	}
	p.Status = prizepool.StatusDistributing
	return true, nil
}

func (s *Store) FinishDistribution(_ context.Context, p *prizepool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FinishDistribution"); err != nil {
		return err
	}
	stored, ok := s.pools[p.ID]
	if !ok || stored.Status != prizepool.StatusDistributing {
		return &common.ConflictError{Message: "фонд не в статусе выплаты"}
	}
	now := time.Now().UTC()
	stored.Status = p.Status
	stored.WinnersCount = p.WinnersCount
	stored.TotalPaidCents = p.TotalPaidCents
	stored.DistributedAt = &now
	p.DistributedAt = &now
	return nil
}

func (s *Store) InsertPayout(_ context.Context, p *prizepool.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertPayout"); err != nil {
		return err
	}
	for _, existing := range s.payouts[p.PoolID] {
		if existing.Rank == p.Rank {
			return &common.ConflictError{Message: fmt.Sprintf("выплата за место %d уже записана", p.Rank)}
		}
	}
	cp := *p
	cp.CreatedAt = time.Now().UTC()
	s.payouts[p.PoolID] = append(s.payouts[p.PoolID], &cp)
	s.writes.Payouts++
	return nil
}

func (s *Store) ListPayouts(_ context.Context, poolID uuid.UUID) ([]*prizepool.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*prizepool.Payout, 0, len(s.payouts[poolID]))
	for _, p := range s.payouts[poolID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// PutPool кладёт фонд напрямую, без проверок.
func (s *Store) PutPool(p *prizepool.Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ID] = clonePool(p)
}

// --- engagement ---

func (s *Store) StartRun(_ context.Context, run *engagement.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *Store) FinishRun(_ context.Context, run *engagement.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == run.ID {
			cp := *run
			s.runs[i] = &cp
			return nil
		}
	}
	return common.ErrNotFound
}

func (s *Store) LastRun(_ context.Context, communityID string) (*engagement.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *engagement.Run
	for _, r := range s.runs {
		if r.CommunityID == communityID && (last == nil || !r.StartedAt.Before(last.StartedAt)) {
			last = r
		}
	}
	if last == nil {
		return nil, common.ErrNotFound
	}
	cp := *last
	return &cp, nil
}
