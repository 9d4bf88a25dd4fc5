package pricing

import (
	"errors"
	"math"

	"mietwagen/internal/calendar"
	"mietwagen/internal/models"
)

// ErrNonPositiveRate rejects catalog records with a broken daily rate.
var ErrNonPositiveRate = errors.New("daily rate must be positive")

// Quote computes the total price for renting at dailyRate over r with the
// given insurance tier. It is a pure function with a single rounding site,
// so previews and the commit-time recomputation always agree.
func Quote(dailyRate float64, r calendar.DateRange, opt models.InsuranceOption) (float64, error) {
	days := r.Days()
	if days == 0 {
		return 0, calendar.ErrZeroDuration
	}
	if dailyRate <= 0 {
		return 0, ErrNonPositiveRate
	}

	base := dailyRate * float64(days)
	surcharge := opt.DailySurcharge() * float64(days)
	return Round2(base + surcharge), nil
}

// Round2 rounds to two decimal places, half up.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
