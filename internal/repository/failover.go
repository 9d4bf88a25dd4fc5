package repository

import (
	"context"
	"sync/atomic"
	"time"

	"mietwagen/internal/domain"
	"mietwagen/internal/models"

	"github.com/rs/zerolog"
)

// FailoverQuoteRepository serves from the primary until it errors, then
// degrades to the fallback. The primary is probed again after a minute.
type FailoverQuoteRepository struct {
	primary   domain.QuoteRepository
	fallback  domain.QuoteRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverQuoteRepository(primary, fallback domain.QuoteRepository, logger *zerolog.Logger) *FailoverQuoteRepository {
	return &FailoverQuoteRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverQuoteRepository) GetQuote(ctx context.Context, key string) (*models.QuotePreview, error) {
	if !r.isDown.Load() {
		quote, err := r.primary.GetQuote(ctx, key)
		if err == nil {
			return quote, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		quote, err := r.primary.GetQuote(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return quote, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetQuote(ctx, key)
}

func (r *FailoverQuoteRepository) SetQuote(ctx context.Context, key string, quote *models.QuotePreview, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetQuote(ctx, key, quote, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetQuote(ctx, key, quote, ttl)
}

func (r *FailoverQuoteRepository) ClearQuote(ctx context.Context, key string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearQuote(ctx, key)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearQuote(ctx, key)
}

func (r *FailoverQuoteRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, clientID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, clientID, limit, window)
}

func (r *FailoverQuoteRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary quote repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}
