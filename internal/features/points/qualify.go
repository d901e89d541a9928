// Package points: qualify.go решает, засчитывается ли пост форума для очков.
package points

import (
	"strings"
	"unicode/utf8"
)

const (
	// MinContentLength: минимум символов в тексте поста
	MinContentLength = 10
	// MinViews: минимум просмотров
	MinViews = 5
)

// ContentLength считает длину текста в символах (не байтах), без пробелов по краям.
func ContentLength(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}

// QualifiesForPoints проверяет, подходит ли пост форума для начисления очков.
// Условия:
//   - Минимум 10 символов текста
//   - Минимум 5 просмотров
//
// Примеры:
//
//	QualifiesForPoints("привет", 100)             → false (короткий)
//	QualifiesForPoints("подробный разбор", 3)     → false (мало просмотров)
//	QualifiesForPoints("подробный разбор", 5)     → true
func QualifiesForPoints(content string, views int) bool {
	return ContentLength(content) >= MinContentLength && views >= MinViews
}
