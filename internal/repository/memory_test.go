package repository

import (
	"context"
	"testing"
	"time"

	"mietwagen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQuoteRepository(t *testing.T) {
	repo := NewMemoryQuoteRepository()
	ctx := context.Background()

	t.Run("SetAndGetQuote", func(t *testing.T) {
		quote := &models.QuotePreview{VehicleID: 1, Days: 3, Amount: 150.00}
		require.NoError(t, repo.SetQuote(ctx, "key-1", quote, time.Minute))

		got, err := repo.GetQuote(ctx, "key-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 150.00, got.Amount)
	})

	t.Run("ExpiredQuoteIsMiss", func(t *testing.T) {
		quote := &models.QuotePreview{VehicleID: 2, Amount: 100.00}
		require.NoError(t, repo.SetQuote(ctx, "key-2", quote, -time.Second))

		got, err := repo.GetQuote(ctx, "key-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearQuote", func(t *testing.T) {
		quote := &models.QuotePreview{VehicleID: 3, Amount: 75.00}
		require.NoError(t, repo.SetQuote(ctx, "key-3", quote, time.Minute))
		require.NoError(t, repo.ClearQuote(ctx, "key-3"))

		got, err := repo.GetQuote(ctx, "key-3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CheckRateLimit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "client-b", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := repo.CheckRateLimit(ctx, "client-b", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}
