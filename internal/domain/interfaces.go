package domain

import (
	"context"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/models"
)

type Repository interface {
	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	ReserveVehicle(ctx context.Context, rental *models.Rental) error
	UpdateRentalStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	FindConflict(ctx context.Context, vehicleID int64, r calendar.DateRange) (*models.Rental, error)
	ActiveRentals(ctx context.Context, vehicleID int64) ([]models.Rental, error)
	RentalsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]models.Rental, error)
	CustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error)
	GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error)
	GetVehicles(ctx context.Context) ([]models.Vehicle, error)
	SyncVehicles(ctx context.Context, vehicles []models.Vehicle) error
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	SetVehicleRentable(ctx context.Context, id int64, rentable bool) error
	CreateExportTask(ctx context.Context, task *models.ExportTask) error
}

// QuoteRepository caches price previews and throttles reservation attempts.
// Implementations may lose data at any time; callers must treat a miss as
// "recompute", never as an error.
type QuoteRepository interface {
	GetQuote(ctx context.Context, key string) (*models.QuotePreview, error)
	SetQuote(ctx context.Context, key string, quote *models.QuotePreview, ttl time.Duration) error
	ClearQuote(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type ExportWorker interface {
	EnqueueTask(ctx context.Context, taskType string, rentalID int64, rental *models.Rental) error
}

type RentalService interface {
	Quote(ctx context.Context, vehicleID int64, r calendar.DateRange, opt models.InsuranceOption) (*models.QuotePreview, error)
	Reserve(ctx context.Context, req *models.ReserveRequest) (*models.Rental, error)
	Return(ctx context.Context, rentalID, version int64) (*models.Rental, error)
	Cancel(ctx context.Context, rentalID, version int64) (*models.Rental, error)
	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	VehicleRentals(ctx context.Context, vehicleID int64) ([]models.Rental, error)
	RentalsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]models.Rental, error)
	CustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error)
}

type VehicleService interface {
	GetVehicles(ctx context.Context) ([]models.Vehicle, error)
	GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	SetVehicleRentable(ctx context.Context, id int64, rentable bool) error
}
