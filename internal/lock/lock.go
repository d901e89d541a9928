// Package lock содержит блокировки на сообщество: синхронизация и выплата
// одного сообщества не должны идти одновременно.
//
// С REDIS_ADDR блокировка общая для всех реплик (SET NX PX), без него
// только внутри процесса.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked: блокировка уже занята.
var ErrLocked = errors.New("операция для сообщества уже выполняется")

// Locker захватывает блокировку по ключу без ожидания.
// Возвращает функцию освобождения или ErrLocked.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// CommunityKey: ключ блокировки сообщества.
func CommunityKey(communityID string) string {
	return "leaderboard:lock:community:" + communityID
}

// Local: блокировки внутри процесса. Просроченные по TTL считаются свободными.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

// NewLocal создаёт блокировки внутри процесса.
func NewLocal(ttl time.Duration) *Local {
	return &Local{held: make(map[string]time.Time), ttl: ttl, clock: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrLocked
	}
	expires := now.Add(l.ttl)
	l.held[key] = expires

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// не снимаем чужую блокировку, захваченную после истечения TTL
			if l.held[key].Equal(expires) {
				delete(l.held, key)
			}
		})
	}, nil
}
