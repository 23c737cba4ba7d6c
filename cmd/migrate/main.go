package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"finflow/internal/config"
	"finflow/internal/db"
	"finflow/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Usage: migrate [up|down|version|force N]. Defaults to up.
func main() {
	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		log.Fatalf("failed to read migrations: %v", err)
	}
	driver, err := postgres.WithInstance(database.DB, &postgres.Config{})
	if err != nil {
		log.Fatalf("failed to prepare migration driver: %v", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		version, convErr := strconv.Atoi(flag.Arg(1))
		if convErr != nil {
			log.Fatalf("force needs a version number: %v", convErr)
		}
		err = m.Force(version)
	case "version":
	default:
		log.Fatalf("unknown command %q", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate %s failed: %v", command, err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return
	}
	if err != nil {
		log.Fatalf("failed to read version: %v", err)
	}
	fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
}
