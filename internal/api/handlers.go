package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/database"
	"mietwagen/internal/metrics"
	"mietwagen/internal/models"
)

type quoteRequest struct {
	VehicleID int64  `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Insurance string `json:"insurance"`
}

type reserveRequest struct {
	VehicleID  int64  `json:"vehicle_id"`
	CustomerID int64  `json:"customer_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Insurance  string `json:"insurance"`
}

type actionRequest struct {
	Version int64 `json:"version"`
}

// rentalResponse renders date bounds as plain ISO days, not timestamps.
type rentalResponse struct {
	ID         int64   `json:"id"`
	VehicleID  int64   `json:"vehicle_id"`
	CustomerID int64   `json:"customer_id,omitempty"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Insurance  string  `json:"insurance"`
	TotalPrice float64 `json:"total_price"`
	Status     string  `json:"status"`
	Version    int64   `json:"version"`
}

func toRentalResponse(r *models.Rental) rentalResponse {
	return rentalResponse{
		ID:         r.ID,
		VehicleID:  r.VehicleID,
		CustomerID: r.CustomerID,
		StartDate:  r.StartDate.Format(calendar.DayFormat),
		EndDate:    r.EndDate.Format(calendar.DayFormat),
		Insurance:  string(r.Insurance),
		TotalPrice: r.TotalPrice,
		Status:     r.Status,
		Version:    r.Version,
	}
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body quoteRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rng, err := calendar.ParseRange(body.StartDate, body.EndDate)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	opt, err := models.ParseInsuranceOption(body.Insurance)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := s.rentals.Quote(r.Context(), body.VehicleID, rng, opt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle_id": quote.VehicleID,
		"start_date": quote.StartDate.Format(calendar.DayFormat),
		"end_date":   quote.EndDate.Format(calendar.DayFormat),
		"insurance":  string(quote.Insurance),
		"days":       quote.Days,
		"amount":     quote.Amount,
	})
}

// handleRentals creates a rental on POST; GET is the reporting view,
// filtered by ?customer_id= or by a ?from=/?to= period.
func (s *HTTPServer) handleRentals(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.handleRentalsReport(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body reserveRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rng, err := calendar.ParseRange(body.StartDate, body.EndDate)
	if err != nil {
		metrics.IncReservation("rejected")
		s.writeDomainError(w, err)
		return
	}

	opt, err := models.ParseInsuranceOption(body.Insurance)
	if err != nil {
		metrics.IncReservation("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rental, err := s.rentals.Reserve(r.Context(), &models.ReserveRequest{
		VehicleID:  body.VehicleID,
		CustomerID: body.CustomerID,
		StartDate:  rng.Start,
		EndDate:    rng.End,
		Insurance:  opt,
	})
	if err != nil {
		var conflict *database.ConflictError
		if errors.As(err, &conflict) {
			metrics.IncReservation("conflict")
		} else {
			metrics.IncReservation("rejected")
		}
		s.writeDomainError(w, err)
		return
	}

	metrics.IncReservation("reserved")
	writeJSON(w, http.StatusCreated, toRentalResponse(rental))
}

func (s *HTTPServer) handleRentalsReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var rentals []models.Rental
	switch {
	case query.Get("customer_id") != "":
		customerID, err := strconv.ParseInt(query.Get("customer_id"), 10, 64)
		if err != nil || customerID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		rentals, err = s.rentals.CustomerRentals(r.Context(), customerID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	case query.Get("from") != "" && query.Get("to") != "":
		from, err := time.ParseInLocation(calendar.DayFormat, query.Get("from"), time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		to, err := time.ParseInLocation(calendar.DayFormat, query.Get("to"), time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		rentals, err = s.rentals.RentalsByPeriod(r.Context(), from, to)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "customer_id or from/to filter is required")
		return
	}

	out := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		out = append(out, toRentalResponse(&rentals[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": out})
}

// handleRental serves GET /api/v1/rentals/{id} and the POST actions
// /api/v1/rentals/{id}/return and /api/v1/rentals/{id}/cancel.
func (s *HTTPServer) handleRental(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/rentals/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rental id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rental, err := s.rentals.GetRental(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRentalResponse(rental))

	case len(parts) == 2 && r.Method == http.MethodPost:
		var body actionRequest
		// Body is optional; version 0 means "latest"
		_ = decodeJSON(r, &body)

		var rental *models.Rental
		switch parts[1] {
		case "return":
			rental, err = s.rentals.Return(r.Context(), id, body.Version)
		case "cancel":
			rental, err = s.rentals.Cancel(r.Context(), id, body.Version)
		default:
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRentalResponse(rental))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleVehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	vehicles, err := s.vehicles.GetVehicles(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

// handleVehicleRentals serves GET /api/v1/vehicles/{id}/rentals.
func (s *HTTPServer) handleVehicleRentals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/vehicles/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "rentals" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	rentals, err := s.rentals.VehicleRentals(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		out = append(out, toRentalResponse(&rentals[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": out})
}

// writeDomainError maps domain errors onto HTTP statuses. Conflicts get
// a structured payload naming the blocking dates and the first free day.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *database.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":        "vehicle is not available for the requested range",
			"rented_from":  conflict.RentedFrom.Format(calendar.DayFormat),
			"rented_until": conflict.RentedUntil.Format(calendar.DayFormat),
			"free_from":    conflict.FreeFrom().Format(calendar.DayFormat),
		})
		return
	}

	switch {
	case errors.Is(err, database.ErrVehicleNotFound),
		errors.Is(err, database.ErrRentalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calendar.ErrInvalidRange),
		errors.Is(err, calendar.ErrZeroDuration),
		errors.Is(err, database.ErrRangeTooLong),
		errors.Is(err, database.ErrInvalidInsurance):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrVehicleNotRentable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrRentalNotActive),
		errors.Is(err, database.ErrRentalStarted),
		errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, database.ErrTransientFailure):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("unhandled API error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
