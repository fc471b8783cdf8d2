package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/common"
)

// Status возвращает HTTP-код, сообщение для клиента и детали для ошибки ядра.
// Неизвестные ошибки — 500 без раскрытия причины.
func Status(err error) (int, string, any) {
	var (
		fields     common.ValidationErrors
		field      *common.ValidationError
		funds      *common.InsufficientFundsError
		transition *common.TransitionError
	)
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest, "validation failed", fields
	case errors.As(err, &field):
		return http.StatusBadRequest, "validation failed", common.ValidationErrors{field}
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrInvalidQuantity), errors.Is(err, common.ErrInvalidStatus),
		errors.Is(err, common.ErrInvalidCurrency), errors.Is(err, common.ErrRefundAmountMismatch):
		return http.StatusBadRequest, "validation failed", nil
	case common.IsNotFound(err):
		return http.StatusNotFound, "not found", nil
	case errors.As(err, &funds):
		return http.StatusBadRequest, "insufficient funds", funds
	case errors.As(err, &transition):
		return http.StatusConflict, "invalid state transition", transition
	case errors.Is(err, common.ErrAlreadyRefunded):
		return http.StatusConflict, "already refunded", nil
	case errors.Is(err, common.ErrSelfGiftForbidden), errors.Is(err, common.ErrGiftInactive),
		errors.Is(err, common.ErrNotManualGateway), errors.Is(err, common.ErrNotAutomatedGateway),
		errors.Is(err, common.ErrGatewayInactive), errors.Is(err, common.ErrPlanInactive),
		errors.Is(err, common.ErrInsufficientFunds):
		return http.StatusBadRequest, "business rule violated", nil
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrWrongPassword):
		return http.StatusUnauthorized, "unauthorized", nil
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "forbidden", nil
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too many attempts", nil
	}
	return http.StatusInternalServerError, "internal error", nil
}

// Fail пишет ошибку в конверт. Причина 500-х уходит только в лог.
func Fail(c *gin.Context, err error) {
	code, message, details := Status(err)
	if code == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Внутренняя ошибка обработки запроса")
		Abort(c, code, message, "internal server error", nil)
		return
	}
	Abort(c, code, message, err.Error(), details)
}

// Bind разбирает JSON-тело и прогоняет его через теги binding (validator/v10).
// Ошибки валидатора превращаются в common.ValidationErrors с именами JSON-полей.
func Bind(c *gin.Context, dst any) error {
	jsonNamesOnce.Do(useJSONNames)
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return FieldErrors(verrs)
		}
		return common.Invalid("body", "malformed JSON body")
	}
	return nil
}

var jsonNamesOnce sync.Once

// useJSONNames — в ошибках валидатора имена полей берутся из тега json.
func useJSONNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
}

// FieldErrors переводит ошибки валидатора в формат API.
func FieldErrors(verrs validator.ValidationErrors) common.ValidationErrors {
	out := make(common.ValidationErrors, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, common.Invalid(lowerFirst(e.Field()), fieldMessage(e)))
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	}
	return fmt.Sprintf("is invalid (%s)", e.Tag())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
