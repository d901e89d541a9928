package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/community-leaderboard/internal/common"
	"serotonyl.ru/community-leaderboard/internal/lock"
)

// envelope: общий формат ответа.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// balanceDetails: тело ответа 402, по нему клиент предлагает пополнить счёт.
type balanceDetails struct {
	CurrentBalance float64 `json:"currentBalance"`
	Required       float64 `json:"required"`
	Currency       string  `json:"currency"`
}

type conflictDetails struct {
	ExistingPoolID string `json:"existingPoolId"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Не удалось записать ответ")
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError выбирает код ответа по категории ошибки. Текст непредвиденных
// ошибок клиенту не отдаётся.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorData(w, r, err, nil)
}

// writeErrorData: ошибка вместе с частичным результатом, например
// выплатой, переводы которой прошли, а итог не записался.
func writeErrorData(w http.ResponseWriter, r *http.Request, err error, data any) {
	status := statusFor(err)
	body := envelope{Data: data, Error: err.Error(), Details: detailsFor(err)}

	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Ошибка обработки запроса")
		body = envelope{Data: data, Error: "внутренняя ошибка сервера"}
	}
	writeJSON(w, status, body)
}

// statusFor переводит категорию ошибки в HTTP-код.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict), errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func detailsFor(err error) any {
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		if len(ve.Details) > 0 {
			return ve.Details
		}
		if ve.Field != "" {
			return map[string]string{ve.Field: ve.Message}
		}
		return nil
	}

	var be *common.InsufficientBalanceError
	if errors.As(err, &be) {
		return balanceDetails{
			CurrentBalance: common.CentsToDecimal(be.Current),
			Required:       common.CentsToDecimal(be.Required),
			Currency:       be.Currency,
		}
	}

	var pe *common.PoolConflictError
	if errors.As(err, &pe) {
		return conflictDetails{
			ExistingPoolID: pe.ExistingID,
			StartDate:      pe.Start.Format(dateLayout),
			EndDate:        pe.End.Format(dateLayout),
		}
	}
	return nil
}

// decodeJSON читает тело запроса. Неизвестные поля: ошибка валидации.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.NewValidationError("body", "некорректный JSON: "+err.Error())
	}
	return nil
}
