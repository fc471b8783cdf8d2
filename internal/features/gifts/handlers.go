// Package gifts — handlers.go принимает HTTP-запросы на отправку подарков.
package gifts

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

func (h *Handler) Register(user gin.IRoutes) {
	user.GET("/gifts", h.Catalog)
	user.GET("/wallet/me/gifts", h.History)
	user.POST("/user/:username/gift", h.Send)
	user.POST("/rooms/:roomId/gift", h.SendToRoom)
}

type sendRequest struct {
	GiftID   int64  `json:"giftId" binding:"required,gt=0"`
	Quantity int    `json:"quantity" binding:"required,gte=1"`
	Message  string `json:"message" binding:"max=500"`
}

type roomSendRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	sendRequest
}

func (r sendRequest) input() SendInput {
	return SendInput{GiftID: r.GiftID, Quantity: r.Quantity, Message: r.Message}
}

// POST /user/:username/gift
func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	res, err := h.service.SendGift(c.Request.Context(), httpx.ActorFrom(c), c.Param("username"), req.input())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, "gift sent", res)
}

// POST /rooms/:roomId/gift
func (h *Handler) SendToRoom(c *gin.Context) {
	roomID, err := httpx.ParamID(c, "roomId")
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	var req roomSendRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	res, err := h.service.SendRoomGift(c.Request.Context(), httpx.ActorFrom(c), roomID, req.Recipient, req.input())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, "gift sent", res)
}

// GET /gifts
func (h *Handler) Catalog(c *gin.Context) {
	list, err := h.service.Catalog(c.Request.Context(), httpx.ActorFrom(c))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "gift catalog", list)
}

// GET /wallet/me/gifts?direction=sent|received
func (h *Handler) History(c *gin.Context) {
	limit, err := httpx.QueryLimit(c, 20, 100)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	list, err := h.service.History(c.Request.Context(), httpx.ActorFrom(c), Direction(c.Query("direction")), limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "gift history", list)
}
