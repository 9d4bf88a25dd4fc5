package database

import (
	"errors"
	"fmt"
	"time"

	"mietwagen/internal/calendar"
)

var (
	ErrVehicleNotFound    = errors.New("vehicle not found")
	ErrVehicleNotRentable = errors.New("vehicle is not rentable")
	ErrRentalNotFound     = errors.New("rental not found")
	ErrRentalNotActive    = errors.New("rental is not active")
	ErrRentalStarted      = errors.New("rental has already started")
	ErrRangeTooLong       = errors.New("rental range exceeds the allowed length")
	ErrInvalidInsurance   = errors.New("unknown insurance option")
	ErrRateLimited        = errors.New("too many reservation attempts")

	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTransientFailure marks storage failures where no partial effect
	// occurred, so the whole call is safe to retry.
	ErrTransientFailure = errors.New("transient storage failure")
)

// ConflictError refuses a reservation because an active rental overlaps
// the requested range. It carries only dates: no rental id and no
// customer reference may leak to the caller.
type ConflictError struct {
	RentedFrom  time.Time
	RentedUntil time.Time // end-exclusive, so also the first free day
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vehicle already rented from %s until %s",
		e.RentedFrom.Format(calendar.DayFormat), e.RentedUntil.Format(calendar.DayFormat))
}

// FreeFrom returns the first day the vehicle becomes free again.
func (e *ConflictError) FreeFrom() time.Time {
	return e.RentedUntil
}
