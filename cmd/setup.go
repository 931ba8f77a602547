package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the config template to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	if err := r.writeLine(r.palette.OK("Wrote " + path)); err != nil {
		return err
	}
	return r.writeLine(r.palette.Help("Fill in credentials.spotify and session.secret, or set CLIENT_ID, CLIENT_SECRET, REDIRECT_URI and SESSION_SECRET."))
}

// SetupDatabase initializes the session database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	path := config.Database.Path
	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, path, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writeLine(r.palette.OK("Rolled back latest migration on " + path))
	}

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if path == shared.MemoryDatabase {
		if err := r.writeLine(r.palette.Help("Database is in-memory; the schema only lives for this process.")); err != nil {
			return err
		}
	}
	return r.writeLine(r.palette.OK("Migrations applied to " + path))
}
