// Package streak: calculator.go считает текущую и лучшую серию по списку
// моментов активности. Дни считаются по UTC.
package streak

import (
	"sort"
	"time"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Calculate считает стрик по неупорядоченному списку моментов активности.
//
// Алгоритм:
//  1. Схлопываем моменты в уникальные календарные дни (UTC), сортируем по убыванию
//  2. Текущая серия = 0, если последний день раньше вчерашнего
//  3. Иначе идём назад от последнего дня, пока дни идут подряд
//  4. Лучшая серия = самый длинный отрезок подряд идущих дней, но не меньше текущей
//
// Пример (сегодня 10 марта):
//
//	[10 марта, 9 марта, 8 марта] → Current=3
//	[10 марта, 7 марта]          → Current=1
func Calculate(timestamps []time.Time, now time.Time) Stats {
	days := uniqueDays(timestamps)
	if len(days) == 0 {
		return Stats{}
	}

	last := days[0]
	stats := Stats{LastActivity: &last}

	if common.DaysBetween(last, now) <= 1 {
		stats.Current = 1
		for i := 1; i < len(days); i++ {
			if common.DaysBetween(days[i], days[i-1]) != 1 {
				break
			}
			stats.Current++
		}
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if common.DaysBetween(days[i], days[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	stats.Longest = max(longest, stats.Current)
	return stats
}

// uniqueDays возвращает уникальные UTC-дни по убыванию.
func uniqueDays(timestamps []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(timestamps))
	days := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.IsZero() {
			continue
		}
		d := common.UTCDay(ts)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days
}
