package api

import (
	"sync"
	"time"
)

// RateLimiter ограничивает число событий на ключ (IP клиента).
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
	clock  func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  time.Now,
		stopCh: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow учитывает событие и возвращает false, если лимит окна исчерпан.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	recent := rl.recent(key, now)
	if len(recent) >= rl.limit {
		rl.events[key] = recent
		return false
	}
	rl.events[key] = append(recent, now)
	return true
}

// Exceeded: лимит исчерпан. Событие не учитывается.
func (rl *RateLimiter) Exceeded(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.recent(key, rl.clock())
	rl.events[key] = recent
	return len(recent) >= rl.limit
}

// Reset забывает события ключа.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.events, key)
}

func (rl *RateLimiter) recent(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	var recent []time.Time
	for _, t := range rl.events[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.clock()
			for key := range rl.events {
				if recent := rl.recent(key, now); len(recent) == 0 {
					delete(rl.events, key)
				} else {
					rl.events[key] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}
