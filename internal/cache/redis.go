// Package cache — подключение к Redis и хранилище ключей идемпотентности.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"serotonyl.ru/gift-ledger/internal/config"
)

// ConnectRedis создаёт клиента и проверяет соединение PING-ом.
func ConnectRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	opts := &redis.Options{
		Addr:            cfg.RedisAddr,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDB,
		DialTimeout:     1 * time.Second,
		ReadTimeout:     400 * time.Millisecond,
		WriteTimeout:    400 * time.Millisecond,
		PoolSize:        50,
		MinIdleConns:    5,
		PoolTimeout:     750 * time.Millisecond,
		ConnMaxIdleTime: 90 * time.Second,
		MaxRetries:      0,

		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			// Видно в CLIENT LIST
			_ = cn.ClientSetName(ctx, "gift-ledger").Err()
			return nil
		},
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}
