// Package wallet — handlers.go принимает HTTP-запросы к кошелькам.
package wallet

import (
	"github.com/gin-gonic/gin"

	"serotonyl.ru/gift-ledger/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register вешает маршруты. admin — цепочка, требующая роль администратора.
func (h *Handler) Register(user, admin gin.IRoutes) {
	user.GET("/wallet/me", h.Mine)
	user.GET("/wallet/me/history", h.History)
	admin.GET("/user/:username/wallet", h.ForUser)
	admin.POST("/user/:username/diamonds", h.adjust(Diamonds))
	admin.POST("/user/:username/coins", h.adjust(Coins))
}

// GET /wallet/me
func (h *Handler) Mine(c *gin.Context) {
	w, err := h.service.Mine(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "wallet", w)
}

// GET /wallet/me/history?limit=20
func (h *Handler) History(c *gin.Context) {
	limit, err := httpx.QueryLimit(c, 20, 100)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	entries, err := h.service.History(c.Request.Context(), httpx.ActorFrom(c), limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "wallet history", entries)
}

// GET /user/:username/wallet
func (h *Handler) ForUser(c *gin.Context) {
	w, err := h.service.ForUser(c.Request.Context(), httpx.ActorFrom(c), c.Param("username"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "wallet", w)
}

type adjustRequest struct {
	Amount    int64     `json:"amount" binding:"required,gt=0"`
	Operation Operation `json:"operation" binding:"required,oneof=add subtract"`
}

// POST /user/:username/diamonds и /user/:username/coins
func (h *Handler) adjust(cur Currency) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Fail(c, err)
			return
		}
		w, err := h.service.AdminAdjust(c.Request.Context(), httpx.ActorFrom(c),
			c.Param("username"), cur, req.Amount, req.Operation)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, string(cur)+" updated", w)
	}
}
