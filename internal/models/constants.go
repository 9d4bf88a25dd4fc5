package models

const (
	StatusActive    = "active"
	StatusReturned  = "returned"
	StatusCancelled = "cancelled"
)

const (
	// DefaultMaxRentalDays caps the length of a single rental.
	DefaultMaxRentalDays = 365

	// DefaultQuoteTTL время жизни закэшированного предложения цены (секунды)
	DefaultQuoteTTL = 15 * 60

	// WorkerQueueSize размер очереди экспортного воркера
	WorkerQueueSize = 1000

	// RateLimitReserveAttempts количество попыток бронирования в окне
	RateLimitReserveAttempts = 10

	// RateLimitReserveWindow окно ограничения попыток бронирования (секунды)
	RateLimitReserveWindow = 60
)
