package platform

import (
	"errors"
	"fmt"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// ErrPageLimit: список длиннее PLATFORM_MAX_PAGES страниц. Канал считается
// упавшим, частичные данные не пишутся.
var ErrPageLimit = fmt.Errorf("%w: %w", errors.New("превышен лимит страниц"), common.ErrUpstream)

// APIError: ответ платформы с кодом не 2xx.
type APIError struct {
	Operation  string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: платформа ответила %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: платформа ответила %d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return common.ErrUpstream }

// Retryable: имеет ли смысл повторить запрос позже.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TransferError: перевод конкретному получателю не прошёл.
type TransferError struct {
	DestinationID string
	Cause         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("перевод пользователю %s не выполнен: %v", e.DestinationID, e.Cause)
}

func (e *TransferError) Unwrap() []error { return []error{common.ErrTransfer, e.Cause} }
