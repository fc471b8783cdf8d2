package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"serotonyl.ru/gift-ledger/internal/server/middleware"
)

const (
	idemPrefix = "idem:"
	// pendingMarker лежит в ключе, пока первый запрос не завершился.
	pendingMarker = "pending"
)

// Idempotency хранит ответы идемпотентных запросов в Redis.
type Idempotency struct {
	rdb redis.UniversalClient
}

var _ middleware.IdempotencyStore = (*Idempotency)(nil)

func NewIdempotency(rdb redis.UniversalClient) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Reserve — SET NX: true только у первого запроса с ключом.
func (s *Idempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, idemPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка резервирования ключа идемпотентности: %w", err)
	}
	return ok, nil
}

func (s *Idempotency) Load(ctx context.Context, key string) (*middleware.StoredResponse, error) {
	raw, err := s.rdb.Get(ctx, idemPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключа идемпотентности: %w", err)
	}
	if string(raw) == pendingMarker {
		return nil, nil
	}
	var resp middleware.StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("повреждённый ответ в ключе идемпотентности: %w", err)
	}
	return &resp, nil
}

func (s *Idempotency) Save(ctx context.Context, key string, resp middleware.StoredResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, idemPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения ответа: %w", err)
	}
	return nil
}

func (s *Idempotency) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idemPrefix+key).Err()
}
