package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mietwagen/internal/calendar"
	"mietwagen/internal/config"
	"mietwagen/internal/database"
	"mietwagen/internal/domain"
	"mietwagen/internal/events"
	"mietwagen/internal/models"
	"mietwagen/internal/pricing"

	"github.com/rs/zerolog"
)

// RentalService coordinates quotes and reservations. The database
// transaction already makes each reservation atomic; the per-vehicle
// mutex on top keeps concurrent attempts for one vehicle from piling
// up on the storage layer while attempts for other vehicles proceed.
type RentalService struct {
	repo         domain.Repository
	quotes       domain.QuoteRepository
	eventBus     domain.EventPublisher
	exportWorker domain.ExportWorker
	cfg          config.RentalConfig
	logger       *zerolog.Logger

	vehicleLocks sync.Map // vehicle id -> *sync.Mutex
}

func NewRentalService(
	repo domain.Repository,
	quotes domain.QuoteRepository,
	eventBus domain.EventPublisher,
	exportWorker domain.ExportWorker,
	cfg config.RentalConfig,
	logger *zerolog.Logger,
) *RentalService {
	if cfg.MaxRentalDays <= 0 {
		cfg.MaxRentalDays = models.DefaultMaxRentalDays
	}
	if cfg.QuoteTTLSeconds <= 0 {
		cfg.QuoteTTLSeconds = models.DefaultQuoteTTL
	}
	return &RentalService{
		repo:         repo,
		quotes:       quotes,
		eventBus:     eventBus,
		exportWorker: exportWorker,
		cfg:          cfg,
		logger:       logger,
	}
}

func (s *RentalService) vehicleLock(vehicleID int64) *sync.Mutex {
	lock, _ := s.vehicleLocks.LoadOrStore(vehicleID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func quoteKey(vehicleID int64, r calendar.DateRange, opt models.InsuranceOption) string {
	return fmt.Sprintf("%d:%s:%s:%s",
		vehicleID, r.Start.Format(calendar.DayFormat), r.End.Format(calendar.DayFormat), opt)
}

// Quote prices a range without touching availability. Previews are
// cached briefly; a cache failure silently degrades to recomputation.
func (s *RentalService) Quote(ctx context.Context, vehicleID int64, r calendar.DateRange, opt models.InsuranceOption) (*models.QuotePreview, error) {
	if !opt.Valid() {
		return nil, database.ErrInvalidInsurance
	}
	if r.Days() > s.cfg.MaxRentalDays {
		return nil, database.ErrRangeTooLong
	}

	vehicle, err := s.repo.GetVehicleByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	key := quoteKey(vehicleID, r, opt)
	if s.quotes != nil {
		cached, err := s.quotes.GetQuote(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("quote cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	amount, err := pricing.Quote(vehicle.DailyRate, r, opt)
	if err != nil {
		return nil, err
	}

	quote := &models.QuotePreview{
		VehicleID: vehicleID,
		StartDate: r.Start,
		EndDate:   r.End,
		Insurance: opt,
		Days:      r.Days(),
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	if s.quotes != nil {
		ttl := time.Duration(s.cfg.QuoteTTLSeconds) * time.Second
		if err := s.quotes.SetQuote(ctx, key, quote, ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("quote cache write failed")
		}
	}

	return quote, nil
}

// Reserve commits a rental. The price is always recomputed from the
// current daily rate; a stale preview never carries over.
func (s *RentalService) Reserve(ctx context.Context, req *models.ReserveRequest) (*models.Rental, error) {
	r, err := calendar.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if !req.Insurance.Valid() {
		return nil, database.ErrInvalidInsurance
	}
	if r.Days() > s.cfg.MaxRentalDays {
		return nil, database.ErrRangeTooLong
	}

	if err := s.checkReserveRate(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	vehicle, err := s.repo.GetVehicleByID(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !vehicle.Rentable {
		return nil, database.ErrVehicleNotRentable
	}

	amount, err := pricing.Quote(vehicle.DailyRate, r, req.Insurance)
	if err != nil {
		return nil, err
	}

	rental := &models.Rental{
		VehicleID:  req.VehicleID,
		CustomerID: req.CustomerID,
		StartDate:  r.Start,
		EndDate:    r.End,
		Insurance:  req.Insurance,
		TotalPrice: amount,
	}

	lock := s.vehicleLock(req.VehicleID)
	lock.Lock()
	err = s.repo.ReserveVehicle(ctx, rental)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	if s.quotes != nil {
		if err := s.quotes.ClearQuote(ctx, quoteKey(req.VehicleID, r, req.Insurance)); err != nil {
			s.logger.Warn().Err(err).Int64("vehicle_id", req.VehicleID).Msg("quote cache clear failed")
		}
	}

	s.publishEvent(events.EventRentalReserved, rental)
	s.enqueueExport(ctx, events.EventRentalReserved, rental)

	s.logger.Info().
		Int64("rental_id", rental.ID).
		Int64("vehicle_id", rental.VehicleID).
		Str("range", r.String()).
		Float64("total_price", rental.TotalPrice).
		Msg("vehicle reserved")

	return rental, nil
}

// Return transitions an active rental to returned. Statuses only move
// forward: returning anything but an active rental is refused.
func (s *RentalService) Return(ctx context.Context, rentalID, version int64) (*models.Rental, error) {
	return s.transition(ctx, rentalID, version, models.StatusReturned, events.EventRentalReturned, nil)
}

// Cancel transitions an active rental to cancelled. A rental whose start
// day has arrived can no longer be cancelled, only returned.
func (s *RentalService) Cancel(ctx context.Context, rentalID, version int64) (*models.Rental, error) {
	guard := func(rental *models.Rental) error {
		if !calendar.Day(time.Now()).Before(rental.StartDate) {
			return database.ErrRentalStarted
		}
		return nil
	}
	return s.transition(ctx, rentalID, version, models.StatusCancelled, events.EventRentalCancelled, guard)
}

func (s *RentalService) transition(
	ctx context.Context,
	rentalID, version int64,
	status, eventType string,
	guard func(*models.Rental) error,
) (*models.Rental, error) {
	rental, err := s.repo.GetRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.Status != models.StatusActive {
		return nil, database.ErrRentalNotActive
	}
	if guard != nil {
		if err := guard(rental); err != nil {
			return nil, err
		}
	}
	if version == 0 {
		version = rental.Version
	}

	err = s.repo.UpdateRentalStatusWithVersion(ctx, rentalID, version, status)
	if errors.Is(err, database.ErrConcurrentModification) {
		// Someone else moved the rental; report what actually happened.
		current, readErr := s.repo.GetRental(ctx, rentalID)
		if readErr == nil && current.Status != models.StatusActive {
			return nil, database.ErrRentalNotActive
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.GetRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(eventType, updated)
	s.enqueueExport(ctx, eventType, updated)

	s.logger.Info().
		Int64("rental_id", rentalID).
		Str("status", status).
		Msg("rental status updated")

	return updated, nil
}

func (s *RentalService) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	return s.repo.GetRental(ctx, id)
}

// VehicleRentals lists a vehicle's active rentals, earliest first.
func (s *RentalService) VehicleRentals(ctx context.Context, vehicleID int64) ([]models.Rental, error) {
	if _, err := s.repo.GetVehicleByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.repo.ActiveRentals(ctx, vehicleID)
}

// RentalsByPeriod reports rentals of any status intersecting the period.
func (s *RentalService) RentalsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]models.Rental, error) {
	return s.repo.RentalsByDateRange(ctx, startDate, endDate)
}

// CustomerRentals returns a customer's rental history, newest first.
func (s *RentalService) CustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error) {
	return s.repo.CustomerRentals(ctx, customerID)
}

func (s *RentalService) checkReserveRate(ctx context.Context, customerID int64) error {
	if s.quotes == nil || s.cfg.ReserveAttempts <= 0 || customerID == 0 {
		return nil
	}

	window := time.Duration(s.cfg.ReserveWindowSec) * time.Second
	allowed, err := s.quotes.CheckRateLimit(ctx, fmt.Sprintf("customer:%d", customerID), s.cfg.ReserveAttempts, window)
	if err != nil {
		// Throttling is best effort; a broken limiter must not block reservations
		s.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("reserve rate check failed")
		return nil
	}
	if !allowed {
		return database.ErrRateLimited
	}
	return nil
}

func (s *RentalService) publishEvent(eventType string, rental *models.Rental) {
	if s.eventBus == nil {
		return
	}

	payload := events.RentalEventPayload{
		RentalID:   rental.ID,
		VehicleID:  rental.VehicleID,
		CustomerID: rental.CustomerID,
		StartDate:  rental.StartDate,
		EndDate:    rental.EndDate,
		Insurance:  string(rental.Insurance),
		TotalPrice: rental.TotalPrice,
		Status:     rental.Status,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("rental_id", rental.ID).Msg("publish event error")
	}
}

func (s *RentalService) enqueueExport(ctx context.Context, taskType string, rental *models.Rental) {
	if s.exportWorker == nil {
		return
	}

	if err := s.exportWorker.EnqueueTask(ctx, taskType, rental.ID, rental); err != nil {
		s.logger.Error().Err(err).Int64("rental_id", rental.ID).Str("task", taskType).Msg("export enqueue error")
	}
}
