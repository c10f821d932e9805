// Package cache содержит подключение к Redis и ограничитель частоты запросов
// с фиксированным окном, который используется для выдачи magic-link.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/ocr-gateway/internal/config"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
)

// Cache обёртка над клиентом Redis.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Close закрывает соединение.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// Limiter ограничивает число событий на ключ за окно window.
type Limiter struct {
	cache  *Cache
	log    *slog.Logger
	prefix string
	limit  int64
	window time.Duration
}

// NewLimiter создаёт ограничитель. limit <= 0 отключает ограничение.
func NewLimiter(c *Cache, log *slog.Logger, prefix string, limit int64, window time.Duration) *Limiter {
	return &Limiter{cache: c, log: log, prefix: prefix, limit: limit, window: window}
}

// Hit увеличивает счётчик ключа и возвращает его значение в текущем окне.
// Окно начинается с первого события и длится window.
func (l *Limiter) Hit(ctx context.Context, key string) (int64, error) {
	const op = "cache.Limiter.Hit"

	k := l.prefix + strings.ToLower(key)
	n, err := l.cache.Db.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		if err := l.cache.Db.Expire(ctx, k, l.window).Err(); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	return n, nil
}

// Allow сообщает, не превышен ли лимит для ключа.
// Ошибки Redis не блокируют запрос: событие пропускается и пишется в лог.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.cache == nil || l.limit <= 0 {
		return true
	}
	n, err := l.Hit(ctx, key)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", sl.Err(err))
		return true
	}
	return n <= l.limit
}
