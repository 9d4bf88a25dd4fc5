package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mietwagen/internal/models"
)

// SyncVehicles upserts the fleet file records and refreshes the cache.
// Vehicles absent from the incoming slice are left untouched: the fleet
// file is the source of truth for additions, not for retirement.
func (db *DB) SyncVehicles(ctx context.Context, vehicles []models.Vehicle) error {
	query := `INSERT INTO vehicles (id, make, model, plate, category, transmission, fuel, seat_count, daily_rate, rentable, sort_order, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  make = excluded.make,
                  model = excluded.model,
                  plate = excluded.plate,
                  category = excluded.category,
                  transmission = excluded.transmission,
                  fuel = excluded.fuel,
                  seat_count = excluded.seat_count,
                  daily_rate = excluded.daily_rate,
                  rentable = excluded.rentable,
                  sort_order = excluded.sort_order,
                  updated_at = excluded.updated_at`

	now := time.Now()
	for i := range vehicles {
		v := &vehicles[i]
		if _, err := db.ExecContext(ctx, query,
			v.ID, v.Make, v.Model, v.Plate, v.Category, v.Transmission, v.Fuel,
			v.SeatCount, v.DailyRate, v.Rentable, v.SortOrder, now, now,
		); err != nil {
			return fmt.Errorf("failed to sync vehicle %d: %w", v.ID, err)
		}
	}

	db.mu.Lock()
	for _, v := range vehicles {
		db.vehicles[v.ID] = v
	}
	db.mu.Unlock()

	return nil
}

// CreateVehicle inserts a single vehicle and updates the cache.
func (db *DB) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	query := `INSERT INTO vehicles (make, model, plate, category, transmission, fuel, seat_count, daily_rate, rentable, sort_order, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		vehicle.Make, vehicle.Model, vehicle.Plate, vehicle.Category, vehicle.Transmission,
		vehicle.Fuel, vehicle.SeatCount, vehicle.DailyRate, vehicle.Rentable, vehicle.SortOrder,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	vehicle.ID = id
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	db.mu.Lock()
	db.vehicles[id] = *vehicle
	db.mu.Unlock()

	return nil
}

// GetVehicleByID serves from the cache, falling back to the table.
func (db *DB) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	db.mu.RLock()
	cached, ok := db.vehicles[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var v models.Vehicle
	query := `SELECT id, make, model, plate, category, transmission, fuel, seat_count, daily_rate, rentable, sort_order, created_at, updated_at
              FROM vehicles WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Make, &v.Model, &v.Plate, &v.Category, &v.Transmission, &v.Fuel,
		&v.SeatCount, &v.DailyRate, &v.Rentable, &v.SortOrder, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	db.mu.Lock()
	db.vehicles[v.ID] = v
	db.mu.Unlock()

	return &v, nil
}

// GetVehicles returns all vehicles ordered for display.
func (db *DB) GetVehicles(ctx context.Context) ([]models.Vehicle, error) {
	query := `SELECT id, make, model, plate, category, transmission, fuel, seat_count, daily_rate, rentable, sort_order, created_at, updated_at
              FROM vehicles ORDER BY sort_order, id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(
			&v.ID, &v.Make, &v.Model, &v.Plate, &v.Category, &v.Transmission, &v.Fuel,
			&v.SeatCount, &v.DailyRate, &v.Rentable, &v.SortOrder, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// SetVehicleRentable flips the maintenance flag. This is independent of
// active rentals; effective availability is always computed live.
func (db *DB) SetVehicleRentable(ctx context.Context, id int64, rentable bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE vehicles SET rentable = ?, updated_at = ? WHERE id = ?`,
		rentable, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrVehicleNotFound
	}

	db.mu.Lock()
	if v, ok := db.vehicles[id]; ok {
		v.Rentable = rentable
		db.vehicles[id] = v
	}
	db.mu.Unlock()

	return nil
}
