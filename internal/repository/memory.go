package repository

import (
	"context"
	"sync"
	"time"

	"mietwagen/internal/models"
)

type MemoryQuoteRepository struct {
	quotes     sync.Map
	rateLimits sync.Map
}

func NewMemoryQuoteRepository() *MemoryQuoteRepository {
	return &MemoryQuoteRepository{}
}

type quoteEntry struct {
	quote     *models.QuotePreview
	expiresAt time.Time
}

func (r *MemoryQuoteRepository) GetQuote(ctx context.Context, key string) (*models.QuotePreview, error) {
	val, ok := r.quotes.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*quoteEntry)
	if time.Now().After(entry.expiresAt) {
		r.quotes.Delete(key)
		return nil, nil
	}
	return entry.quote, nil
}

func (r *MemoryQuoteRepository) SetQuote(ctx context.Context, key string, quote *models.QuotePreview, ttl time.Duration) error {
	r.quotes.Store(key, &quoteEntry{quote: quote, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (r *MemoryQuoteRepository) ClearQuote(ctx context.Context, key string) error {
	r.quotes.Delete(key)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryQuoteRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(clientID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(clientID, entry)
	return entry.count <= limit, nil
}
