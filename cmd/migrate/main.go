package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/medstore/internal/config"
	"github.com/joao-fontenele/medstore/internal/telemetry"
)

const usage = "usage: migrate <up|down|drop|version>"

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, "text", cfg.LogLevel)

	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error(usage)
		os.Exit(1)
	}

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	source := os.Getenv("MIGRATIONS_PATH")
	if source == "" {
		source = "file://migrations"
	}

	m, err := migrate.New(source, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err, "source", source)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	command := flag.Arg(0)
	if command == "drop" && cfg.IsProduction() {
		logger.Error("refusing to drop schema in production")
		os.Exit(1)
	}

	if err := run(m, command, logger); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, command string, logger *slog.Logger) error {
	switch command {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no pending migrations")
				return nil
			}
			return err
		}
		logger.Info("migrations applied")

	case "down":
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no migrations to roll back")
				return nil
			}
			return err
		}
		logger.Info("last migration rolled back")

	case "drop":
		if err := m.Drop(); err != nil {
			return err
		}
		logger.Info("schema dropped")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("current migration version", "version", version, "dirty", dirty)

	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}

	return nil
}
