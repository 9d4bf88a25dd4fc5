package models

import "time"

// QuotePreview is a computed price for a range/insurance combination,
// independent of whether a reservation was committed. Previews may be
// cached briefly; the coordinator always recomputes at commit time.
type QuotePreview struct {
	VehicleID int64           `json:"vehicle_id"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Insurance InsuranceOption `json:"insurance"`
	Days      int             `json:"days"`
	Amount    float64         `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
