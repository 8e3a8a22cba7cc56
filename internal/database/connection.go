// Package database runs versioned SQL migrations against PostgreSQL and
// keeps the schema_migrations tracking table consistent with what has
// actually been committed.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/catalog-migrate/internal/config"
	"github.com/ksred/catalog-migrate/internal/utils"
)

// Database manages the database connection for the life of a run
type Database struct {
	db *gorm.DB
}

// New connects to PostgreSQL with retry logic and configures the connection
// pool from cfg.
func New(cfg *config.Database) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Translate driver errors so uniqueness violations are detectable
		// without driver-specific checks
		TranslateError: true,
	}

	maxRetries := 5
	retryDelay := 2 * time.Second

	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}
	if err != nil {
		return nil, utils.WrapConnectionError(maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, utils.WrapConnectionError(1, err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Database{db: db}, nil
}

// NewFromGorm wraps an existing gorm connection (used by tests)
func NewFromGorm(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Health checks the database connection health
func (d *Database) Health(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return utils.WrapConnectionError(1, err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return utils.WrapConnectionError(1, err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	d.db = nil
	return nil
}

// DB returns the underlying gorm.DB instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// SQLDB returns the underlying sql.DB pool, used for session-scoped locking
func (d *Database) SQLDB() (*sql.DB, error) {
	sqlDB, err := d.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB, nil
}
