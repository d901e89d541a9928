// Package common: errors.go определяет ошибки, общие для всех модулей сервиса.
// Обработчики HTTP различают их через errors.Is / errors.As и выбирают код ответа.
package common

import (
	"errors"
	"fmt"
	"time"
)

// Базовые категории ошибок.
var (
	// ErrValidation: некорректные входные данные, ничего не записано
	ErrValidation = errors.New("некорректные входные данные")
	// ErrConflict: пересечение призовых фондов или повторная выплата
	ErrConflict = errors.New("конфликт состояния")
	// ErrInsufficientBalance: на счёте сообщества недостаточно средств
	ErrInsufficientBalance = errors.New("недостаточно средств на счёте")
	// ErrNotFound: запись не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrUpstream: внешняя платформа недоступна или ответила ошибкой
	ErrUpstream = errors.New("ошибка внешней платформы")
	// ErrTransfer: перевод средств победителю не прошёл
	ErrTransfer = errors.New("ошибка перевода средств")
	// ErrPersistence: хранилище недоступно
	ErrPersistence = errors.New("ошибка хранилища")
	// ErrUnauthorized: неверный токен администратора
	ErrUnauthorized = errors.New("нет прав администратора")
)

// ValidationError описывает конкретное некорректное поле.
type ValidationError struct {
	Field   string
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError: короткий конструктор для ошибки одного поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError: отказ из-за текущего состояния записи (например, фонд уже выплачен).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PoolConflictError: новый фонд пересекается по датам с существующим.
type PoolConflictError struct {
	ExistingID string
	Start      time.Time
	End        time.Time
}

func (e *PoolConflictError) Error() string {
	return fmt.Sprintf("период пересекается с фондом %s (%s - %s)",
		e.ExistingID, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *PoolConflictError) Unwrap() error { return ErrConflict }

// InsufficientBalanceError несёт текущий баланс и требуемую сумму (в центах),
// чтобы вызывающий мог перейти к пополнению счёта.
type InsufficientBalanceError struct {
	Current  int64
	Required int64
	Currency string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("недостаточно средств: нужно %s, доступно %s",
		FormatCents(e.Required, e.Currency), FormatCents(e.Current, e.Currency))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
