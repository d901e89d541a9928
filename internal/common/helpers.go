// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: округление очков, работа с UTC-днями, форматирование денег.
package common

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Round1 округляет значение до одного знака после запятой.
// Очки округляются перед записью в БД, чтобы ошибки float не накапливались
// при суммировании.
//
// Примеры:
//
//	Round1(1.25)  → 1.3
//	Round1(0.049) → 0
//	Round1(12.3)  → 12.3
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// UTCDay возвращает начало календарного дня (UTC) для момента t.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween возвращает число календарных дней (UTC) от a до b.
// Для a позже b результат отрицательный.
func DaysBetween(a, b time.Time) int {
	return int(UTCDay(b).Sub(UTCDay(a)).Hours() / 24)
}

// ClampNonNegative заменяет отрицательное значение нулём.
func ClampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// FormatCents форматирует сумму в центах в вид "500.00 USD".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency)))
}

// CentsToDecimal переводит центы в десятичное значение для внешних API.
func CentsToDecimal(cents int64) float64 {
	return float64(cents) / 100
}

// DecimalToCents переводит десятичную сумму внешнего API в центы с округлением.
func DecimalToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (UTC).
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04")
}
