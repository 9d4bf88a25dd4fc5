package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/config"
	"mietwagen/internal/database"
	"mietwagen/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rental), args.Error(1)
}

func (m *mockRepository) ReserveVehicle(ctx context.Context, rental *models.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}

func (m *mockRepository) UpdateRentalStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	args := m.Called(ctx, id, fromVersion, status)
	return args.Error(0)
}

func (m *mockRepository) FindConflict(ctx context.Context, vehicleID int64, r calendar.DateRange) (*models.Rental, error) {
	args := m.Called(ctx, vehicleID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rental), args.Error(1)
}

func (m *mockRepository) ActiveRentals(ctx context.Context, vehicleID int64) ([]models.Rental, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Rental), args.Error(1)
}

func (m *mockRepository) RentalsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]models.Rental, error) {
	args := m.Called(ctx, startDate, endDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Rental), args.Error(1)
}

func (m *mockRepository) CustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Rental), args.Error(1)
}

func (m *mockRepository) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *mockRepository) GetVehicles(ctx context.Context) ([]models.Vehicle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *mockRepository) SyncVehicles(ctx context.Context, vehicles []models.Vehicle) error {
	args := m.Called(ctx, vehicles)
	return args.Error(0)
}

func (m *mockRepository) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	args := m.Called(ctx, vehicle)
	return args.Error(0)
}

func (m *mockRepository) SetVehicleRentable(ctx context.Context, id int64, rentable bool) error {
	args := m.Called(ctx, id, rentable)
	return args.Error(0)
}

func (m *mockRepository) CreateExportTask(ctx context.Context, task *models.ExportTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type mockExportWorker struct {
	mock.Mock
}

func (m *mockExportWorker) EnqueueTask(ctx context.Context, taskType string, rentalID int64, rental *models.Rental) error {
	args := m.Called(ctx, taskType, rentalID, rental)
	return args.Error(0)
}

func date(s string) time.Time {
	t, err := time.Parse(calendar.DayFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(repo *mockRepository) *RentalService {
	logger := zerolog.Nop()
	return NewRentalService(repo, nil, nil, nil, config.RentalConfig{MaxRentalDays: 30}, &logger)
}

func TestQuote(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	vehicle := &models.Vehicle{ID: 1, DailyRate: 50.00, Rentable: true}
	repo.On("GetVehicleByID", ctx, int64(1)).Return(vehicle, nil)

	r, err := calendar.ParseRange("2024-01-01", "2024-01-04")
	require.NoError(t, err)

	quote, err := svc.Quote(ctx, 1, r, models.InsuranceNone)
	require.NoError(t, err)
	assert.Equal(t, 3, quote.Days)
	assert.Equal(t, 150.00, quote.Amount)

	quote, err = svc.Quote(ctx, 1, r, models.InsuranceVollkasko)
	require.NoError(t, err)
	assert.Equal(t, 210.00, quote.Amount)
}

func TestQuote_UnknownVehicle(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	repo.On("GetVehicleByID", ctx, int64(99)).Return(nil, database.ErrVehicleNotFound)

	r, err := calendar.ParseRange("2024-01-01", "2024-01-04")
	require.NoError(t, err)

	_, err = svc.Quote(ctx, 99, r, models.InsuranceNone)
	assert.True(t, errors.Is(err, database.ErrVehicleNotFound))
}

func TestQuote_RangeTooLong(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	r, err := calendar.ParseRange("2024-01-01", "2024-03-01")
	require.NoError(t, err)

	_, err = svc.Quote(context.Background(), 1, r, models.InsuranceNone)
	assert.True(t, errors.Is(err, database.ErrRangeTooLong))
}

func TestReserve(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	vehicle := &models.Vehicle{ID: 1, DailyRate: 80.00, Rentable: true}
	repo.On("GetVehicleByID", ctx, int64(1)).Return(vehicle, nil)
	repo.On("ReserveVehicle", ctx, mock.MatchedBy(func(r *models.Rental) bool {
		return r.VehicleID == 1 && r.TotalPrice == 270.00
	})).Return(nil).Once()

	rental, err := svc.Reserve(ctx, &models.ReserveRequest{
		VehicleID:  1,
		CustomerID: 7,
		StartDate:  date("2024-01-10"),
		EndDate:    date("2024-01-13"),
		Insurance:  models.InsuranceTeilkasko,
	})
	require.NoError(t, err)
	assert.Equal(t, 270.00, rental.TotalPrice)
	repo.AssertExpectations(t)
}

func TestReserve_InvalidRange(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	_, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-13"),
		EndDate:   date("2024-01-10"),
		Insurance: models.InsuranceNone,
	})
	assert.True(t, errors.Is(err, calendar.ErrInvalidRange))

	_, err = svc.Reserve(context.Background(), &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-10"),
		EndDate:   date("2024-01-10"),
		Insurance: models.InsuranceNone,
	})
	assert.True(t, errors.Is(err, calendar.ErrZeroDuration))
}

func TestReserve_InvalidInsurance(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	_, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-10"),
		EndDate:   date("2024-01-12"),
		Insurance: models.InsuranceOption("PREMIUM"),
	})
	assert.True(t, errors.Is(err, database.ErrInvalidInsurance))
}

func TestReserve_NotRentable(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	vehicle := &models.Vehicle{ID: 1, DailyRate: 50.00, Rentable: false}
	repo.On("GetVehicleByID", ctx, int64(1)).Return(vehicle, nil)

	_, err := svc.Reserve(ctx, &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-10"),
		EndDate:   date("2024-01-12"),
		Insurance: models.InsuranceNone,
	})
	assert.True(t, errors.Is(err, database.ErrVehicleNotRentable))
}

func TestReserve_ConflictPassedThrough(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	vehicle := &models.Vehicle{ID: 1, DailyRate: 50.00, Rentable: true}
	conflict := &database.ConflictError{RentedFrom: date("2024-01-01"), RentedUntil: date("2024-01-05")}

	repo.On("GetVehicleByID", ctx, int64(1)).Return(vehicle, nil)
	repo.On("ReserveVehicle", ctx, mock.Anything).Return(conflict)

	_, err := svc.Reserve(ctx, &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-03"),
		EndDate:   date("2024-01-07"),
		Insurance: models.InsuranceNone,
	})

	var got *database.ConflictError
	require.True(t, errors.As(err, &got))
	assert.True(t, got.FreeFrom().Equal(date("2024-01-05")))
}

func TestReserve_ExportEnqueued(t *testing.T) {
	repo := new(mockRepository)
	exporter := new(mockExportWorker)
	logger := zerolog.Nop()
	svc := NewRentalService(repo, nil, nil, exporter, config.RentalConfig{MaxRentalDays: 30}, &logger)
	ctx := context.Background()

	vehicle := &models.Vehicle{ID: 1, DailyRate: 50.00, Rentable: true}
	repo.On("GetVehicleByID", ctx, int64(1)).Return(vehicle, nil)
	repo.On("ReserveVehicle", ctx, mock.Anything).Return(nil)
	exporter.On("EnqueueTask", ctx, "rental_reserved", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Reserve(ctx, &models.ReserveRequest{
		VehicleID: 1,
		StartDate: date("2024-01-10"),
		EndDate:   date("2024-01-12"),
		Insurance: models.InsuranceNone,
	})
	require.NoError(t, err)
	exporter.AssertExpectations(t)
}

func TestReturn(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	active := &models.Rental{ID: 5, VehicleID: 1, Status: models.StatusActive, Version: 1,
		StartDate: date("2024-01-01"), EndDate: date("2024-01-05")}
	returned := &models.Rental{ID: 5, VehicleID: 1, Status: models.StatusReturned, Version: 2,
		StartDate: date("2024-01-01"), EndDate: date("2024-01-05")}

	repo.On("GetRental", ctx, int64(5)).Return(active, nil).Once()
	repo.On("UpdateRentalStatusWithVersion", ctx, int64(5), int64(1), models.StatusReturned).Return(nil).Once()
	repo.On("GetRental", ctx, int64(5)).Return(returned, nil).Once()

	got, err := svc.Return(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, got.Status)
	repo.AssertExpectations(t)
}

func TestReturn_NotActive(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	returned := &models.Rental{ID: 5, Status: models.StatusReturned, Version: 2}
	repo.On("GetRental", ctx, int64(5)).Return(returned, nil)

	_, err := svc.Return(ctx, 5, 2)
	assert.True(t, errors.Is(err, database.ErrRentalNotActive))
}

func TestReturn_LostRace(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	active := &models.Rental{ID: 5, Status: models.StatusActive, Version: 1}
	cancelled := &models.Rental{ID: 5, Status: models.StatusCancelled, Version: 2}

	repo.On("GetRental", ctx, int64(5)).Return(active, nil).Once()
	repo.On("UpdateRentalStatusWithVersion", ctx, int64(5), int64(1), models.StatusReturned).
		Return(database.ErrConcurrentModification).Once()
	// Re-read shows the competing transition already landed
	repo.On("GetRental", ctx, int64(5)).Return(cancelled, nil).Once()

	_, err := svc.Return(ctx, 5, 1)
	assert.True(t, errors.Is(err, database.ErrRentalNotActive))
	repo.AssertExpectations(t)
}

func TestCancel_BeforeStart(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	start := calendar.Day(time.Now()).AddDate(0, 0, 7)
	active := &models.Rental{ID: 6, Status: models.StatusActive, Version: 1,
		StartDate: start, EndDate: start.AddDate(0, 0, 3)}
	cancelled := &models.Rental{ID: 6, Status: models.StatusCancelled, Version: 2,
		StartDate: start, EndDate: start.AddDate(0, 0, 3)}

	repo.On("GetRental", ctx, int64(6)).Return(active, nil).Once()
	repo.On("UpdateRentalStatusWithVersion", ctx, int64(6), int64(1), models.StatusCancelled).Return(nil).Once()
	repo.On("GetRental", ctx, int64(6)).Return(cancelled, nil).Once()

	got, err := svc.Cancel(ctx, 6, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancel_AlreadyStarted(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	ctx := context.Background()

	start := calendar.Day(time.Now()).AddDate(0, 0, -1)
	active := &models.Rental{ID: 6, Status: models.StatusActive, Version: 1,
		StartDate: start, EndDate: start.AddDate(0, 0, 5)}

	repo.On("GetRental", ctx, int64(6)).Return(active, nil)

	_, err := svc.Cancel(ctx, 6, 1)
	assert.True(t, errors.Is(err, database.ErrRentalStarted))
}

func TestVehicleLock_SameVehicleSharesMutex(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	a := svc.vehicleLock(1)
	b := svc.vehicleLock(1)
	c := svc.vehicleLock(2)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestVehicleLock_Concurrent(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	var wg sync.WaitGroup
	locks := make([]*sync.Mutex, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = svc.vehicleLock(42)
		}(i)
	}
	wg.Wait()

	for i := 1; i < 20; i++ {
		assert.Same(t, locks[0], locks[i])
	}
}
