// Package payments — handlers.go принимает HTTP-запросы к платежам
// и подписанные колбэки автоматического шлюза.
package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/httpx"
)

// SignatureHeader — hex(HMAC-SHA256(PAYMENT_WEBHOOK_SECRET, body)).
const SignatureHeader = "X-Signature"

// maxWebhookBody — предел тела колбэка.
const maxWebhookBody = 64 << 10

type Handler struct {
	service       *Service
	webhookSecret []byte
}

func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: []byte(webhookSecret)}
}

func (h *Handler) Register(public, user, admin gin.IRoutes) {
	public.POST("/webhooks/payments", h.Webhook)

	user.POST("/payment-transactions", h.Initiate)
	user.GET("/payment-transactions/:id", h.Get)
	user.POST("/payment-transactions/:id/cancel", h.Cancel)

	admin.GET("/payment-transactions", h.List)
	admin.PATCH("/payment-transactions/:id/verify", h.Verify)
	admin.POST("/payment-transactions/:id/refund", h.Refund)
}

type initiateRequest struct {
	PlanID    int64          `json:"planId" binding:"required,gt=0"`
	GatewayID int64          `json:"gatewayId" binding:"required,gt=0"`
	Target    *Target        `json:"target"`
	Metadata  map[string]any `json:"metadata"`
}

// POST /payment-transactions
func (h *Handler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	t, err := h.service.Initiate(c.Request.Context(), httpx.ActorFrom(c), InitiateInput{
		PlanID:    req.PlanID,
		GatewayID: req.GatewayID,
		Target:    req.Target,
		Metadata:  req.Metadata,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, "payment initiated", t)
}

// GET /payment-transactions/:id
func (h *Handler) Get(c *gin.Context) {
	h.withID(c, func(id int64) (*Transaction, error) {
		return h.service.Get(c.Request.Context(), httpx.ActorFrom(c), id)
	}, "payment transaction")
}

// POST /payment-transactions/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.withID(c, func(id int64) (*Transaction, error) {
		return h.service.Cancel(c.Request.Context(), httpx.ActorFrom(c), id)
	}, "payment cancelled")
}

// GET /payment-transactions?status=&userId=&limit=
func (h *Handler) List(c *gin.Context) {
	limit, err := httpx.QueryLimit(c, 50, 200)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	f := Filter{Status: Status(c.Query("status")), Limit: limit}
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Fail(c, common.Invalid("userId", "must be a positive integer"))
			return
		}
		f.UserID = id
	}
	list, err := h.service.List(c.Request.Context(), httpx.ActorFrom(c), f)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "payment transactions", list)
}

type verifyRequest struct {
	Status            Status `json:"status" binding:"required,oneof=completed failed"`
	VerificationNotes string `json:"verificationNotes" binding:"max=2000"`
}

// PATCH /payment-transactions/:id/verify
// Транзакция не в статусе pending (уже подтверждена, отклонена, отменена) — 409.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	h.withID(c, func(id int64) (*Transaction, error) {
		return h.service.VerifyManual(c.Request.Context(), httpx.ActorFrom(c), id, req.Status, req.VerificationNotes)
	}, "payment verified")
}

type refundRequest struct {
	Amount int64 `json:"amount" binding:"gte=0"`
}

// POST /payment-transactions/:id/refund
// Возврат не из completed — 409, повторный возврат — 409 (already refunded).
func (h *Handler) Refund(c *gin.Context) {
	var req refundRequest
	if c.Request.ContentLength != 0 {
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Fail(c, err)
			return
		}
	}
	h.withID(c, func(id int64) (*Transaction, error) {
		return h.service.Refund(c.Request.Context(), httpx.ActorFrom(c), id, req.Amount)
	}, "payment refunded")
}

func (h *Handler) withID(c *gin.Context, fn func(id int64) (*Transaction, error), message string) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	t, err := fn(id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, message, t)
}

// POST /webhooks/payments — колбэк автоматического шлюза.
// Без секрета или с неверной подписью — 401 до разбора тела.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httpx.Abort(c, http.StatusBadRequest, "validation failed", "cannot read body", nil)
		return
	}
	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		log.WithField("ip", c.ClientIP()).Warn("Колбэк платежа с неверной подписью")
		httpx.Fail(c, common.ErrUnauthorized)
		return
	}

	// Тело уже прочитано; возвращаем его, чтобы сработал обычный Bind
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	var n Notification
	if err := httpx.Bind(c, &n); err != nil {
		httpx.Fail(c, err)
		return
	}
	t, err := h.service.HandleCallback(c.Request.Context(), n)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, "notification accepted", gin.H{"transactionId": t.TransactionID, "status": t.Status})
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if len(h.webhookSecret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(h.webhookSecret, body)))
}

// Sign считает подпись тела колбэка.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

