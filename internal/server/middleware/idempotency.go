package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gift-ledger/internal/httpx"
)

// IdempotencyHeader — ключ повтора запроса от клиента.
const IdempotencyHeader = "Idempotency-Key"

// StoredResponse — сохранённый ответ на первый запрос с ключом.
type StoredResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyStore — хранилище ключей (cache.Idempotency на Redis).
type IdempotencyStore interface {
	// Reserve атомарно занимает ключ. false — ключ уже занят.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load возвращает сохранённый ответ; nil — запрос ещё выполняется.
	Load(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency повторяет сохранённый ответ на изменяющий запрос с тем же
// Idempotency-Key. Пока первый запрос выполняется, дубликат получает 409.
// Ответы 5xx и паники не сохраняются: ключ освобождается для повтора.
func Idempotency(store IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(IdempotencyHeader)
		if header == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := httpx.ActorFrom(c).Label() + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + header

		reserved, err := store.Reserve(ctx, key, ttl)
		if err != nil {
			log.WithError(err).Warn("Хранилище идемпотентности недоступно, запрос выполняется без ключа")
			c.Next()
			return
		}
		if !reserved {
			stored, err := store.Load(ctx, key)
			if err != nil {
				httpx.Fail(c, err)
				return
			}
			if stored == nil {
				httpx.Abort(c, http.StatusConflict, "request in progress",
					"a request with this Idempotency-Key is still being processed", nil)
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			c.Abort()
			return
		}

		// Контекст запроса может быть уже отменён
		bg := context.WithoutCancel(ctx)
		release := func() {
			if err := store.Release(bg, key); err != nil {
				log.WithError(err).Warn("Не удалось освободить ключ идемпотентности")
			}
		}
		// Паника обработчика уходит в Recovery, ключ при этом освобождается
		defer func() {
			if p := recover(); p != nil {
				release()
				panic(p)
			}
		}()

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if status := w.Status(); status >= http.StatusInternalServerError {
			release()
			return
		}
		if err := store.Save(bg, key, StoredResponse{Status: w.Status(), Body: w.body.Bytes()}, ttl); err != nil {
			log.WithError(err).Warn("Не удалось сохранить ответ идемпотентного запроса")
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
