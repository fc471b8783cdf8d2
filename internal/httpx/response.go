// Package httpx — общий JSON-конверт ответов и перевод ошибок ядра в HTTP-статусы.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response — единый конверт всех ответов API.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// OK пишет 200 с данными.
func OK(c *gin.Context, message string, data any) {
	Write(c, http.StatusOK, message, data)
}

// Created пишет 201 с данными.
func Created(c *gin.Context, message string, data any) {
	Write(c, http.StatusCreated, message, data)
}

func Write(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Response{Success: true, Message: message, Data: data})
}

// Abort прерывает цепочку обработчиков с ошибкой.
func Abort(c *gin.Context, code int, message, errText string, details any) {
	c.AbortWithStatusJSON(code, Response{Success: false, Message: message, Error: errText, Details: details})
}
