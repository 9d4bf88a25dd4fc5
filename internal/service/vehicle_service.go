package service

import (
	"context"

	"mietwagen/internal/domain"
	"mietwagen/internal/models"

	"github.com/rs/zerolog"
)

// VehicleService fronts the fleet. The database package already caches
// vehicles in memory, so reads pass straight through.
type VehicleService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewVehicleService(repo domain.Repository, logger *zerolog.Logger) *VehicleService {
	return &VehicleService{
		repo:   repo,
		logger: logger,
	}
}

func (s *VehicleService) GetVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return s.repo.GetVehicles(ctx)
}

func (s *VehicleService) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	return s.repo.GetVehicleByID(ctx, id)
}

func (s *VehicleService) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if err := s.repo.CreateVehicle(ctx, vehicle); err != nil {
		return err
	}
	s.logger.Info().Int64("vehicle_id", vehicle.ID).Str("plate", vehicle.Plate).Msg("vehicle created")
	return nil
}

func (s *VehicleService) SetVehicleRentable(ctx context.Context, id int64, rentable bool) error {
	if err := s.repo.SetVehicleRentable(ctx, id, rentable); err != nil {
		return err
	}
	s.logger.Info().Int64("vehicle_id", id).Bool("rentable", rentable).Msg("vehicle rentable flag updated")
	return nil
}
