// Package verification — handlers.go: админская проверка заявок и просмотр значка.
package verification

import (
	"github.com/gin-gonic/gin"

	"serotonyl.ru/gift-ledger/internal/features/members"
	"serotonyl.ru/gift-ledger/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(user, admin gin.IRoutes) {
	user.GET("/verification/:type/:id", h.State)
	admin.GET("/verification-requests", h.List)
	admin.PATCH("/admin/verification-requests/:id/status", h.UpdateStatus)
}

// GET /verification/:type/:id
func (h *Handler) State(c *gin.Context) {
	target, err := members.ParseTargetType(c.Param("type"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	st, err := h.service.State(c.Request.Context(), httpx.ActorFrom(c), target, id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "verification state", st)
}

// GET /verification-requests?status=&type=
func (h *Handler) List(c *gin.Context) {
	limit, err := httpx.QueryLimit(c, 50, 200)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	list, err := h.service.ListRequests(c.Request.Context(), httpx.ActorFrom(c), ListFilter{
		Status:     ReviewStatus(c.Query("status")),
		TargetType: members.TargetType(c.Query("type")),
		Limit:      limit,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "verification requests", list)
}

type statusRequest struct {
	Status        string `json:"status" binding:"required"`
	ReviewNotes   string `json:"reviewNotes" binding:"max=2000"`
	AdminFeedback string `json:"adminFeedback" binding:"max=2000"`
}

// PATCH /admin/verification-requests/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	var req statusRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	updated, err := h.service.UpdateStatus(c.Request.Context(), httpx.ActorFrom(c), id,
		ReviewStatus(req.Status), req.ReviewNotes, req.AdminFeedback)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "verification request updated", updated)
}
