// Package admin — handlers.go: POST /admin/login.
package admin

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

func (h *Handler) Register(public gin.IRoutes) {
	public.POST("/admin/login", h.Login)
}

type loginRequest struct {
	UserID   int64  `json:"userId" binding:"required,gt=0"`
	Password string `json:"password" binding:"required,max=256"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	session, err := h.service.Login(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "logged in", session)
}
