package database

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ksred/catalog-migrate/internal/migrations"
	"github.com/ksred/catalog-migrate/internal/models"
)

// MigrationRunner orchestrates discovery, state comparison and strictly
// sequential execution of pending migrations under a cross-process lock.
type MigrationRunner struct {
	store    *StateStore
	executor *Executor
	locker   Locker
	dir      string
	logger   zerolog.Logger
}

// Status describes the tracking state relative to the migrations directory
type Status struct {
	Applied []models.SchemaMigration
	Pending []migrations.MigrationFile
}

// NewMigrationRunner creates a runner over the migration files in dir
func NewMigrationRunner(db *Database, locker Locker, dir string, logger zerolog.Logger) *MigrationRunner {
	store := NewStateStore(db.DB())
	return &MigrationRunner{
		store:    store,
		executor: NewExecutor(db.DB(), store, logger),
		locker:   locker,
		dir:      dir,
		logger:   logger,
	}
}

// Run applies every pending migration in ascending version order, halting at
// the first failure; migrations after a failed one are never attempted.
// Returns the number of migrations applied. An empty pending set is a no-op
// success with zero database writes.
func (r *MigrationRunner) Run(ctx context.Context) (int, error) {
	if err := r.locker.Acquire(ctx); err != nil {
		return 0, err
	}
	defer r.locker.Release()

	pending, err := r.pending(ctx)
	if err != nil {
		return 0, err
	}

	if len(pending) == 0 {
		r.logger.Info().Msg("No pending migrations")
		return 0, nil
	}

	r.logger.Info().Int("pending", len(pending)).Msg("Applying pending migrations")

	for i, file := range pending {
		r.logger.Info().
			Str("version", file.Label).
			Str("name", file.Name).
			Msg("Applying migration")

		if err := r.executor.Execute(ctx, file); err != nil {
			r.logger.Error().
				Err(err).
				Str("version", file.Label).
				Str("name", file.Name).
				Msg("Migration failed")
			return i, err
		}

		r.logger.Info().
			Str("version", file.Label).
			Str("name", file.Name).
			Msg("Migration applied")
	}

	return len(pending), nil
}

// Status reports applied records and pending files without writing anything
// beyond the tracking-table bootstrap.
func (r *MigrationRunner) Status(ctx context.Context) (*Status, error) {
	discovered, err := migrations.LoadDir(r.dir)
	if err != nil {
		return nil, err
	}

	if err := r.store.EnsureTrackingTable(ctx); err != nil {
		return nil, err
	}

	records, err := r.store.AppliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	applied, err := r.store.LoadApplied(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Applied: records,
		Pending: filterPending(discovered, applied),
	}, nil
}

// Reset clears the tracking table so every discovered migration counts as
// pending again. Operator tooling only; the domain schema is untouched.
func (r *MigrationRunner) Reset(ctx context.Context) (int64, error) {
	if err := r.locker.Acquire(ctx); err != nil {
		return 0, err
	}
	defer r.locker.Release()

	removed, err := r.store.Reset(ctx)
	if err != nil {
		return 0, err
	}

	r.logger.Info().Int64("removed", removed).Msg("Migration tracking reset")
	return removed, nil
}

// pending discovers migrations and diffs them against the applied set.
// Discovery runs first so a bad directory aborts before any database write.
func (r *MigrationRunner) pending(ctx context.Context) ([]migrations.MigrationFile, error) {
	discovered, err := migrations.LoadDir(r.dir)
	if err != nil {
		return nil, err
	}

	if err := r.store.EnsureTrackingTable(ctx); err != nil {
		return nil, err
	}

	applied, err := r.store.LoadApplied(ctx)
	if err != nil {
		return nil, err
	}

	return filterPending(discovered, applied), nil
}

// filterPending preserves the ascending order of discovered while dropping
// applied versions.
func filterPending(discovered []migrations.MigrationFile, applied map[int64]bool) []migrations.MigrationFile {
	var pending []migrations.MigrationFile
	for _, file := range discovered {
		if !applied[file.Version] {
			pending = append(pending, file)
		}
	}
	return pending
}
