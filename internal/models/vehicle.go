package models

import "time"

// Vehicle is a fleet unit. The catalog itself is owned by the fleet file;
// the booking core only reads the daily rate and the rentable flag.
// Rentable is a maintenance switch, independent of whether an active
// rental currently exists.
type Vehicle struct {
	ID           int64     `yaml:"id" json:"id"`
	Make         string    `yaml:"make" json:"make"`
	Model        string    `yaml:"model" json:"model"`
	Plate        string    `yaml:"plate" json:"plate"`
	Category     string    `yaml:"category" json:"category"`
	Transmission string    `yaml:"transmission" json:"transmission"`
	Fuel         string    `yaml:"fuel" json:"fuel"`
	SeatCount    int64     `yaml:"seat_count" json:"seat_count"`
	DailyRate    float64   `yaml:"daily_rate" json:"daily_rate"`
	Rentable     bool      `yaml:"rentable" json:"rentable"`
	SortOrder    int64     `yaml:"sort_order" json:"sort_order"`
	CreatedAt    time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at" json:"updated_at"`
}
