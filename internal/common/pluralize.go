// Package common: pluralize.go содержит функции для склонения русских
// числительных в уведомлениях администратору.
package common

import "math"

// pluralForm выбирает одну из трёх форм слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralForm(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeWinners: 1 победитель, 3 победителя, 5 победителей.
func PluralizeWinners(n int) string {
	return pluralForm(int64(n), "победитель", "победителя", "победителей")
}

// PluralizeChannels: 1 канал, 2 канала, 7 каналов.
func PluralizeChannels(n int) string {
	return pluralForm(int64(n), "канал", "канала", "каналов")
}

// PluralizeDays: 1 день, 2 дня, 5 дней.
func PluralizeDays(n int) string {
	return pluralForm(int64(n), "день", "дня", "дней")
}
