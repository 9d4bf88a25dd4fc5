package service

import (
	"context"
	"errors"
	"testing"

	"mietwagen/internal/database"
	"mietwagen/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVehicleService(repo *mockRepository) *VehicleService {
	logger := zerolog.Nop()
	return NewVehicleService(repo, &logger)
}

func TestVehicleService_GetVehicles(t *testing.T) {
	repo := new(mockRepository)
	svc := newVehicleService(repo)
	ctx := context.Background()

	fleet := []models.Vehicle{
		{ID: 1, Make: "VW", Model: "Golf"},
		{ID: 2, Make: "BMW", Model: "320d"},
	}
	repo.On("GetVehicles", ctx).Return(fleet, nil)

	got, err := svc.GetVehicles(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestVehicleService_SetRentable(t *testing.T) {
	repo := new(mockRepository)
	svc := newVehicleService(repo)
	ctx := context.Background()

	repo.On("SetVehicleRentable", ctx, int64(1), false).Return(nil).Once()
	require.NoError(t, svc.SetVehicleRentable(ctx, 1, false))

	repo.On("SetVehicleRentable", ctx, int64(99), false).Return(database.ErrVehicleNotFound).Once()
	err := svc.SetVehicleRentable(ctx, 99, false)
	assert.True(t, errors.Is(err, database.ErrVehicleNotFound))
	repo.AssertExpectations(t)
}
