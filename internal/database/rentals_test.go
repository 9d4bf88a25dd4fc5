package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(calendar.DayFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func setupRentalDB(t *testing.T) (*DB, *models.Vehicle) {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	vehicle := &models.Vehicle{Make: "VW", Model: "Golf", Plate: "B-MW 201", DailyRate: 50.00, Rentable: true}
	require.NoError(t, db.CreateVehicle(context.Background(), vehicle))
	return db, vehicle
}

func TestReserveVehicle(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	rental := &models.Rental{
		VehicleID:  vehicle.ID,
		CustomerID: 42,
		StartDate:  date("2024-01-01"),
		EndDate:    date("2024-01-05"),
		Insurance:  models.InsuranceNone,
		TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, rental))

	assert.NotZero(t, rental.ID)
	assert.Equal(t, models.StatusActive, rental.Status)
	assert.Equal(t, int64(1), rental.Version)

	got, err := db.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, vehicle.ID, got.VehicleID)
	assert.Equal(t, int64(42), got.CustomerID)
	assert.True(t, got.StartDate.Equal(date("2024-01-01")))
	assert.True(t, got.EndDate.Equal(date("2024-01-05")))
	assert.Equal(t, 200.00, got.TotalPrice)
}

func TestReserveVehicle_Conflict(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	first := &models.Rental{
		VehicleID:  vehicle.ID,
		StartDate:  date("2024-01-01"),
		EndDate:    date("2024-01-05"),
		Insurance:  models.InsuranceNone,
		TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, first))

	second := &models.Rental{
		VehicleID:  vehicle.ID,
		StartDate:  date("2024-01-03"),
		EndDate:    date("2024-01-07"),
		Insurance:  models.InsuranceNone,
		TotalPrice: 200.00,
	}
	err := db.ReserveVehicle(ctx, second)
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.RentedFrom.Equal(date("2024-01-01")))
	assert.True(t, conflict.RentedUntil.Equal(date("2024-01-05")))
	assert.True(t, conflict.FreeFrom().Equal(date("2024-01-05")))

	// Rejected attempt must leave no row behind
	rentals, err := db.ActiveRentals(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Len(t, rentals, 1)
}

func TestReserveVehicle_TouchingRangesAllowed(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	first := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-01"), EndDate: date("2024-01-05"),
		Insurance: models.InsuranceNone, TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, first))

	// End of one rental is the start of the next: same-day turnover
	second := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-05"), EndDate: date("2024-01-08"),
		Insurance: models.InsuranceNone, TotalPrice: 150.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, second))

	before := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2023-12-28"), EndDate: date("2024-01-01"),
		Insurance: models.InsuranceNone, TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, before))
}

func TestReserveVehicle_CancelledRentalFreesRange(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	first := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-01"), EndDate: date("2024-01-05"),
		Insurance: models.InsuranceNone, TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, first))

	require.NoError(t, db.UpdateRentalStatusWithVersion(ctx, first.ID, first.Version, models.StatusCancelled))

	second := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-02"), EndDate: date("2024-01-04"),
		Insurance: models.InsuranceNone, TotalPrice: 100.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, second))
}

func TestFindConflict_EarliestStartWins(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	// Insert later-starting overlap first to make ordering observable
	later := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-10"), EndDate: date("2024-01-15"),
		Insurance: models.InsuranceNone, TotalPrice: 250.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, later))

	earlier := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-02"), EndDate: date("2024-01-06"),
		Insurance: models.InsuranceNone, TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, earlier))

	r, err := calendar.ParseRange("2024-01-01", "2024-01-20")
	require.NoError(t, err)

	conflict, err := db.FindConflict(ctx, vehicle.ID, r)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.True(t, conflict.StartDate.Equal(date("2024-01-02")))
}

func TestFindConflict_FreeRange(t *testing.T) {
	db, vehicle := setupRentalDB(t)

	r, err := calendar.ParseRange("2024-01-01", "2024-01-05")
	require.NoError(t, err)

	conflict, err := db.FindConflict(context.Background(), vehicle.ID, r)
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestUpdateRentalStatusWithVersion(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	rental := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-01"), EndDate: date("2024-01-05"),
		Insurance: models.InsuranceNone, TotalPrice: 200.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, rental))

	require.NoError(t, db.UpdateRentalStatusWithVersion(ctx, rental.ID, 1, models.StatusReturned))

	got, err := db.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// Stale version loses
	err = db.UpdateRentalStatusWithVersion(ctx, rental.ID, 1, models.StatusCancelled)
	assert.True(t, errors.Is(err, ErrConcurrentModification))
}

func TestGetRental_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetRental(context.Background(), 12345)
	assert.True(t, errors.Is(err, ErrRentalNotFound))
}

func TestActiveRentals_Ordering(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	for _, day := range []string{"2024-03-10", "2024-01-05", "2024-02-01"} {
		start := date(day)
		rental := &models.Rental{
			VehicleID: vehicle.ID, StartDate: start, EndDate: start.AddDate(0, 0, 3),
			Insurance: models.InsuranceNone, TotalPrice: 150.00,
		}
		require.NoError(t, db.ReserveVehicle(ctx, rental))
	}

	rentals, err := db.ActiveRentals(ctx, vehicle.ID)
	require.NoError(t, err)
	require.Len(t, rentals, 3)
	assert.True(t, rentals[0].StartDate.Equal(date("2024-01-05")))
	assert.True(t, rentals[1].StartDate.Equal(date("2024-02-01")))
	assert.True(t, rentals[2].StartDate.Equal(date("2024-03-10")))
}

func TestRentalsByDateRange(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	inside := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-01-10"), EndDate: date("2024-01-12"),
		Insurance: models.InsuranceNone, TotalPrice: 100.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, inside))

	outside := &models.Rental{
		VehicleID: vehicle.ID, StartDate: date("2024-02-10"), EndDate: date("2024-02-12"),
		Insurance: models.InsuranceNone, TotalPrice: 100.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, outside))

	rentals, err := db.RentalsByDateRange(ctx, date("2024-01-01"), date("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, inside.ID, rentals[0].ID)
}

func TestCustomerRentals(t *testing.T) {
	db, vehicle := setupRentalDB(t)
	ctx := context.Background()

	mine := &models.Rental{
		VehicleID: vehicle.ID, CustomerID: 7,
		StartDate: date("2024-01-01"), EndDate: date("2024-01-03"),
		Insurance: models.InsuranceNone, TotalPrice: 100.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, mine))

	other := &models.Rental{
		VehicleID: vehicle.ID, CustomerID: 8,
		StartDate: date("2024-01-03"), EndDate: date("2024-01-05"),
		Insurance: models.InsuranceNone, TotalPrice: 100.00,
	}
	require.NoError(t, db.ReserveVehicle(ctx, other))

	rentals, err := db.CustomerRentals(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, mine.ID, rentals[0].ID)
}
