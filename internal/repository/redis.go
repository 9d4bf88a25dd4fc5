package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mietwagen/internal/config"
	"mietwagen/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisQuoteRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisQuoteRepository(client *redis.Client) *RedisQuoteRepository {
	return &RedisQuoteRepository{client: client}
}

func (r *RedisQuoteRepository) GetQuote(ctx context.Context, key string) (*models.QuotePreview, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, quoteKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote from redis: %w", err)
	}

	var quote models.QuotePreview
	if err := json.Unmarshal([]byte(val), &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
	}

	return &quote, nil
}

func (r *RedisQuoteRepository) SetQuote(ctx context.Context, key string, quote *models.QuotePreview, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	if err := r.client.Set(ctx, quoteKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set quote in redis: %w", err)
	}

	return nil
}

func (r *RedisQuoteRepository) ClearQuote(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, quoteKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete quote from redis: %w", err)
	}
	return nil
}

func (r *RedisQuoteRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("reserve_rate:%s", clientID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func quoteKey(key string) string {
	return fmt.Sprintf("quote:%s", key)
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
