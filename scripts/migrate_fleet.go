package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"mietwagen/internal/config"
	"mietwagen/internal/database"
	"mietwagen/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Seeds or refreshes the vehicle catalog from fleet.yaml without
// starting the API. Useful after editing the fleet file in place.

type FleetConfig struct {
	Vehicles []models.Vehicle `yaml:"vehicles"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		fleetPath = flag.String("fleet", "configs/fleet.yaml", "path to fleet.yaml")
		dbPath    = flag.String("db", "./data/rentals.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*fleetPath)
	if err != nil {
		return fmt.Errorf("read fleet: %w", err)
	}
	var cfg FleetConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse fleet: %w", err)
	}
	if len(cfg.Vehicles) == 0 {
		return fmt.Errorf("no vehicles in yaml")
	}
	if err = config.ValidateFleet(cfg.Vehicles); err != nil {
		return fmt.Errorf("validate fleet: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncVehicles(ctx, cfg.Vehicles); err != nil {
		return fmt.Errorf("sync fleet: %w", err)
	}

	fmt.Printf("done: synced %d vehicles\n", len(cfg.Vehicles))
	return nil
}
