package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/models"
)

const rentalColumns = `id, vehicle_id, customer_id, start_date, end_date, insurance, total_price, status, created_at, updated_at, version`

// findConflictQuery returns the earliest-starting active rental that
// overlaps the candidate half-open range. Date bounds are ISO strings,
// so lexicographic comparison matches calendar order.
const findConflictQuery = `SELECT ` + rentalColumns + ` FROM rentals
              WHERE vehicle_id = ? AND status = ? AND start_date < ? AND ? < end_date
              ORDER BY start_date ASC LIMIT 1`

// FindConflict returns the earliest-starting active rental overlapping r,
// or nil when the range is free.
func (db *DB) FindConflict(ctx context.Context, vehicleID int64, r calendar.DateRange) (*models.Rental, error) {
	row := db.QueryRowContext(ctx, findConflictQuery,
		vehicleID, models.StatusActive,
		r.End.Format(calendar.DayFormat), r.Start.Format(calendar.DayFormat),
	)
	rental, err := scanRental(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conflict: %w", err)
	}
	return rental, nil
}

// ReserveVehicle commits a new active rental inside a single transaction:
// the conflict re-check and the insert are indivisible. On overlap it
// returns *ConflictError and writes nothing. Transaction plumbing errors
// are wrapped in ErrTransientFailure since no partial effect remains.
func (db *DB) ReserveVehicle(ctx context.Context, rental *models.Rental) error {
	r, err := rental.Range()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin reserve tx: %v", ErrTransientFailure, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, findConflictQuery,
		rental.VehicleID, models.StatusActive,
		r.End.Format(calendar.DayFormat), r.Start.Format(calendar.DayFormat),
	)
	conflict, err := scanRental(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: conflict check: %v", ErrTransientFailure, err)
	}
	if conflict != nil {
		return &ConflictError{RentedFrom: conflict.StartDate, RentedUntil: conflict.EndDate}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO rentals (vehicle_id, customer_id, start_date, end_date, insurance, total_price, status, created_at, updated_at, version)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rental.VehicleID,
		nullableID(rental.CustomerID),
		r.Start.Format(calendar.DayFormat),
		r.End.Format(calendar.DayFormat),
		string(rental.Insurance),
		rental.TotalPrice,
		models.StatusActive,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("%w: insert rental: %v", ErrTransientFailure, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: last insert id: %v", ErrTransientFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit reserve tx: %v", ErrTransientFailure, err)
	}

	rental.ID = id
	rental.StartDate = r.Start
	rental.EndDate = r.End
	rental.Status = models.StatusActive
	rental.CreatedAt = now
	rental.UpdatedAt = now
	rental.Version = 1

	return nil
}

// GetRental returns a rental by id.
func (db *DB) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id)
	rental, err := scanRental(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRentalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rental: %w", err)
	}
	return rental, nil
}

// UpdateRentalStatusWithVersion transitions a rental's status guarded by
// optimistic versioning. A zero row count means someone got there first.
func (db *DB) UpdateRentalStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE rentals SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		status, time.Now(), id, fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update rental status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ActiveRentals lists a vehicle's active rentals ordered by start date.
func (db *DB) ActiveRentals(ctx context.Context, vehicleID int64) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE vehicle_id = ? AND status = ? ORDER BY start_date ASC`,
		vehicleID, models.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// RentalsByDateRange returns rentals of any status whose range intersects
// the given period, for reporting.
func (db *DB) RentalsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE start_date < ? AND ? < end_date ORDER BY start_date ASC, id ASC`,
		calendar.Day(endDate).AddDate(0, 0, 1).Format(calendar.DayFormat),
		calendar.Day(startDate).Format(calendar.DayFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rentals by date range: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// CustomerRentals returns a customer's rentals, newest first.
func (db *DB) CustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE customer_id = ? ORDER BY start_date DESC, id DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(row rowScanner) (*models.Rental, error) {
	var r models.Rental
	var customerID sql.NullInt64
	var startStr, endStr, insurance string

	err := row.Scan(
		&r.ID, &r.VehicleID, &customerID, &startStr, &endStr, &insurance,
		&r.TotalPrice, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		r.CustomerID = customerID.Int64
	}
	r.Insurance = models.InsuranceOption(insurance)

	if r.StartDate, err = time.ParseInLocation(calendar.DayFormat, startStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse rental start date %s: %w", startStr, err)
	}
	if r.EndDate, err = time.ParseInLocation(calendar.DayFormat, endStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse rental end date %s: %w", endStr, err)
	}

	return &r, nil
}

func collectRentals(rows *sql.Rows) ([]models.Rental, error) {
	var rentals []models.Rental
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rental: %w", err)
		}
		rentals = append(rentals, *r)
	}
	return rentals, rows.Err()
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
