package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/common"
)

func init() { gin.SetMode(gin.TestMode) }

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{common.Invalid("amount", "bad"), http.StatusBadRequest},
		{common.ValidationErrors{common.Invalid("a", "b")}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", common.ErrUserNotFound), http.StatusNotFound},
		{common.ErrRoomNotFound, http.StatusNotFound},
		{&common.InsufficientFundsError{Required: 2, Available: 1}, http.StatusBadRequest},
		{&common.TransitionError{From: "completed", To: "completed"}, http.StatusConflict},
		{common.ErrAlreadyRefunded, http.StatusConflict},
		{common.ErrSelfGiftForbidden, http.StatusBadRequest},
		{common.ErrGiftInactive, http.StatusBadRequest},
		{common.ErrNotManualGateway, http.StatusBadRequest},
		{common.ErrUnauthorized, http.StatusUnauthorized},
		{errors.Join(common.ErrUnauthorized, errors.New("token expired")), http.StatusUnauthorized},
		{common.ErrWrongPassword, http.StatusUnauthorized},
		{common.ErrForbidden, http.StatusForbidden},
		{common.ErrTooManyAttempts, http.StatusTooManyRequests},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _, _ := Status(tc.err)
		assert.Equal(t, tc.code, code, "%v", tc.err)
	}
}

func TestFail_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestFail_InsufficientFundsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Fail(c, &common.InsufficientFundsError{Currency: "diamonds", Required: 420, Available: 400, Commission: 120})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{
		"success": false,
		"message": "insufficient funds",
		"error": "insufficient diamonds: required 420, available 400",
		"details": {"currency": "diamonds", "required": 420, "available": 400, "commission": 120}
	}`, rec.Body.String())
}

type body struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Operation string `json:"operation" binding:"required,oneof=add subtract"`
}

func TestBind(t *testing.T) {
	bind := func(raw string) error {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		c.Request.Header.Set("Content-Type", "application/json")
		var b body
		return Bind(c, &b)
	}

	assert.NoError(t, bind(`{"amount": 5, "operation": "add"}`))

	err := bind(`{"amount": -1, "operation": "multiply"}`)
	var fields common.ValidationErrors
	require.True(t, errors.As(err, &fields))
	require.Len(t, fields, 2)
	assert.Equal(t, "amount", fields[0].Field)
	assert.Equal(t, "must be greater than 0", fields[0].Message)
	assert.Equal(t, "operation", fields[1].Field)

	assert.ErrorIs(t, bind(`{"amount":`), common.ErrValidation)
}

func TestQueryLimit(t *testing.T) {
	limit := func(q string) (int, error) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		return QueryLimit(c, 20, 100)
	}
	n, err := limit("")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	n, err = limit("limit=100")
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	_, err = limit("limit=101")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = limit("limit=abc")
	assert.ErrorIs(t, err, common.ErrValidation)
}
