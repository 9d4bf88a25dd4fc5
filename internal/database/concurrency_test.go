package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"mietwagen/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReserve(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	// A single connection serializes the transactions so every loser
	// observes the winner's row instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	vehicle := &models.Vehicle{Make: "VW", Model: "Golf", Plate: "B-MW 301", DailyRate: 50.00, Rentable: true}
	require.NoError(t, db.CreateVehicle(ctx, vehicle))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			rental := &models.Rental{
				VehicleID:  vehicle.ID,
				CustomerID: int64(id + 1),
				StartDate:  date("2024-01-01"),
				EndDate:    date("2024-01-05"),
				Insurance:  models.InsuranceNone,
				TotalPrice: 200.00,
			}
			results <- db.ReserveVehicle(ctx, rental)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		var conflict *ConflictError
		if assert.True(t, errors.As(err, &conflict), "unexpected error: %v", err) {
			conflictCount++
		}
	}

	assert.Equal(t, 1, successCount, "exactly one reservation should win the range")
	assert.Equal(t, numGoroutines-1, conflictCount, "all other attempts should see the winner as conflict")

	rentals, err := db.ActiveRentals(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Len(t, rentals, 1)
}

func TestConcurrentReserve_IndependentVehicles(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "independent.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	db.SetMaxOpenConns(1)

	ctx := context.Background()

	golf := &models.Vehicle{Make: "VW", Model: "Golf", Plate: "B-MW 302", DailyRate: 50.00, Rentable: true}
	require.NoError(t, db.CreateVehicle(ctx, golf))
	corsa := &models.Vehicle{Make: "Opel", Model: "Corsa", Plate: "B-MW 303", DailyRate: 40.00, Rentable: true}
	require.NoError(t, db.CreateVehicle(ctx, corsa))

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for _, vehicleID := range []int64{golf.ID, corsa.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			rental := &models.Rental{
				VehicleID:  id,
				StartDate:  date("2024-01-01"),
				EndDate:    date("2024-01-05"),
				Insurance:  models.InsuranceNone,
				TotalPrice: 200.00,
			}
			results <- db.ReserveVehicle(ctx, rental)
		}(vehicleID)
	}

	wg.Wait()
	close(results)

	// The same range on different vehicles never conflicts
	for err := range results {
		assert.NoError(t, err)
	}
}
