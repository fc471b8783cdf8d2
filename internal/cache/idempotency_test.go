package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/config"
	"serotonyl.ru/gift-ledger/internal/server/middleware"
)

// Запуск: LEDGER_TEST_REDIS_ADDR=localhost:6379 go test ./internal/cache/...
func newTestStore(t *testing.T) *Idempotency {
	t.Helper()
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR не задан")
	}
	rdb, err := ConnectRedis(context.Background(), &config.Config{RedisAddr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewIdempotency(rdb)
}

func TestIdempotency_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	ok, err := s.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "второй Reserve должен проиграть")

	resp, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp, "пока запрос выполняется, ответа нет")

	require.NoError(t, s.Save(ctx, key, middleware.StoredResponse{Status: 201, Body: []byte(`{"success":true}`)}, time.Minute))
	resp, err = s.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, `{"success":true}`, string(resp.Body))

	require.NoError(t, s.Release(ctx, key))
	ok, err = s.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.Release(ctx, key))
}
