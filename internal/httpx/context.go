package httpx

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/gift-ledger/internal/auth"
	"serotonyl.ru/gift-ledger/internal/common"
)

const actorKey = "actor"

// SetActor кладёт идентичность вызывающего в контекст gin (middleware аутентификации).
func SetActor(c *gin.Context, a auth.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom достаёт идентичность. Без middleware — анонимный Actor.
func ActorFrom(c *gin.Context) auth.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}
	}
	a, _ := v.(auth.Actor)
	return a
}

// ParamID разбирает положительный числовой параметр пути.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// QueryLimit разбирает ?limit= с дефолтом и верхней границей.
func QueryLimit(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, common.Invalid("limit", "must be between 1 and "+strconv.Itoa(max))
	}
	return n, nil
}
