package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationRunner handles database migrations
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner creates a runner over the embedded migrations.
func NewMigrationRunner(databaseURL string, logger *logrus.Logger) (*MigrationRunner, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// Up applies every pending schema migration.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.Info("Applying assessment schema migrations")
	return mr.run(ctx, "apply", mr.migrate.Up)
}

// Down reverts the latest schema migration only.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	mr.log.Info("Reverting latest assessment schema migration")
	return mr.run(ctx, "revert", func() error { return mr.migrate.Steps(-1) })
}

// run executes step and asks migrate to stop after the current file when ctx
// ends first.
func (mr *MigrationRunner) run(ctx context.Context, action string, step func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mr.migrate.GracefulStop <- true
		case <-done:
		}
	}()

	err := step()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mr.log.WithField("action", action).Info("Schema already at target version")
		return nil
	case err != nil:
		return fmt.Errorf("failed to %s migrations: %w", action, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("failed to %s migrations: %w", action, ctx.Err())
	}

	mr.logVersion("Schema migration finished")
	return nil
}

// Version returns the current migration version
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not get migration version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(msg)
}

// Close closes the migration runner
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
