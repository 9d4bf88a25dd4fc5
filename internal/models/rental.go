package models

import (
	"time"

	"mietwagen/internal/calendar"
)

// Rental is one committed booking of a vehicle for a date range.
// Rows are append-only: a rental is never deleted, only transitioned
// to returned or cancelled.
type Rental struct {
	ID         int64           `json:"id"`
	VehicleID  int64           `json:"vehicle_id"`
	CustomerID int64           `json:"customer_id,omitempty"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	Insurance  InsuranceOption `json:"insurance"`
	TotalPrice float64         `json:"total_price"`
	Status     string          `json:"status"` // active, returned, cancelled
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Version    int64           `json:"version"`
}

// Range rebuilds the half-open date range from the stored bounds.
func (r *Rental) Range() (calendar.DateRange, error) {
	return calendar.NewDateRange(r.StartDate, r.EndDate)
}

// ReserveRequest carries everything needed to commit a reservation.
// The price is never part of the request; it is recomputed from the
// current daily rate at commit time.
type ReserveRequest struct {
	VehicleID  int64           `json:"vehicle_id"`
	CustomerID int64           `json:"customer_id,omitempty"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	Insurance  InsuranceOption `json:"insurance"`
}
