package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/httpx"
)

// Authenticate разбирает Bearer-токен и кладёт Actor в контекст.
// Без заголовка запрос идёт дальше анонимным: доступ решают сервисы.
// Неверный или просроченный токен — сразу 401.
func Authenticate(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httpx.Fail(c, common.ErrUnauthorized)
			return
		}
		actor, err := tokens.Parse(token)
		if err != nil {
			httpx.Fail(c, common.ErrUnauthorized)
			return
		}
		httpx.SetActor(c, actor)
		c.Next()
	}
}

// RequireUser — 401 для анонима.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.RequireUser(httpx.ActorFrom(c)); err != nil {
			httpx.Fail(c, err)
			return
		}
		c.Next()
	}
}

// RequireAdmin — 401 для анонима, 403 для не-админа.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.RequireAdmin(httpx.ActorFrom(c)); err != nil {
			httpx.Fail(c, err)
			return
		}
		c.Next()
	}
}
