package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ksred/catalog-migrate/internal/migrations"
	"github.com/ksred/catalog-migrate/internal/utils"
)

// Executor applies one migration at a time, each inside its own transaction.
type Executor struct {
	db     *gorm.DB
	store  *StateStore
	logger zerolog.Logger
}

// NewExecutor creates an executor that records applied migrations in store
func NewExecutor(db *gorm.DB, store *StateStore, logger zerolog.Logger) *Executor {
	return &Executor{
		db:     db,
		store:  store,
		logger: logger,
	}
}

// Execute runs every statement of file in order inside a single transaction
// and records the migration through the same transaction before committing.
// Any statement error rolls the whole transaction back, so a failed migration
// leaves neither schema effects nor a tracking row behind.
func (e *Executor) Execute(ctx context.Context, file migrations.MigrationFile) error {
	stripped, err := migrations.StripComments(file.Body)
	if err != nil {
		return fmt.Errorf("migration %s: %w", file.Name, err)
	}
	statements, err := migrations.SplitStatements(stripped)
	if err != nil {
		return fmt.Errorf("migration %s: %w", file.Name, err)
	}

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to start transaction for migration %s: %w", file.Label, tx.Error)
	}

	for i, statement := range statements {
		if err := tx.Exec(statement).Error; err != nil {
			tx.Rollback()
			return utils.WrapExecutionError(file.Label, file.Name, i, err)
		}
		e.logger.Debug().
			Str("version", file.Label).
			Int("statement", i+1).
			Int("statements", len(statements)).
			Msg("Executed statement")
	}

	if err := e.store.Record(tx, file); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", file.Label, err)
	}
	return nil
}
