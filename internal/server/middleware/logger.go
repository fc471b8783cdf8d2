// Package middleware содержит промежуточные обработчики gin для логирования,
// восстановления после паники, аутентификации, rate-limiting и идемпотентности.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/httpx"
)

// RequestLogger логирует каждый запрос.
// Записывает: метод, маршрут, статус, длительность, вызывающего.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"actor":    httpx.ActorFrom(c).Label(),
			"ip":       c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("HTTP-запрос")
		case status >= 400:
			entry.Info("HTTP-запрос")
		default:
			entry.Debug("HTTP-запрос")
		}
	}
}
