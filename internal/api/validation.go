package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Validator проверяет DTO запросов по тегам validate и возвращает
// common.ValidationError с ошибками всех полей.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// в ошибках: имена полей из JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, e := range fieldErrs {
		details[e.Field()] = message(e)
	}
	first := fieldErrs[0]
	return &common.ValidationError{
		Field:   first.Field(),
		Message: message(first),
		Details: details,
	}
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "обязательное поле"
	case "gt":
		return "должно быть больше " + e.Param()
	case "gte":
		return "должно быть не меньше " + e.Param()
	case "lte":
		return "должно быть не больше " + e.Param()
	case "max":
		return fmt.Sprintf("не длиннее %s символов", e.Param())
	case "len":
		return fmt.Sprintf("ровно %s символа", e.Param())
	case "oneof":
		return "одно из: " + e.Param()
	case "dive":
		return "некорректный элемент"
	default:
		return "некорректное значение"
	}
}
