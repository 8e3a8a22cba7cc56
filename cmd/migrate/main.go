package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/catalog-migrate/internal/config"
	"github.com/ksred/catalog-migrate/internal/database"
	"github.com/ksred/catalog-migrate/internal/migrations"
	"github.com/ksred/catalog-migrate/internal/utils"
)

const version = "v0.1.0"

const usage = `Usage: migrate [flags] [command]

Commands:
  up       apply all pending migrations (default)
  status   list applied and pending migrations
  reset    clear the migration tracking table (requires -yes)
  new      scaffold the next migration file: migrate new <description>
`

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		dir        = flag.String("dir", "", "Migrations directory (overrides config)")
		yes        = flag.Bool("yes", false, "Skip confirmation for destructive commands")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.Migrations.Directory = *dir
	}

	logger := setupLogging(cfg)
	logger.Info().Str("version", version).Str("command", command).Msg("Starting catalog-migrate")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Scaffolding never touches the database
	if command == "new" {
		if err := scaffoldMigration(cfg.Migrations.Directory, flag.Arg(1)); err != nil {
			logger.Error().Err(err).Msg("Failed to scaffold migration")
			os.Exit(1)
		}
		return
	}

	db, err := connectToDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	sqlDB, err := db.SQLDB()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to access connection pool")
		os.Exit(1)
	}

	locker := database.NewAdvisoryLock(sqlDB, cfg.Migrations.LockNamespace, cfg.Migrations.LockTimeout, logger)
	runner := database.NewMigrationRunner(db, locker, cfg.Migrations.Directory, logger)

	switch command {
	case "up":
		applied, err := runner.Run(ctx)
		if err != nil {
			reportFailure(logger, err)
			os.Exit(1)
		}
		logger.Info().Int("applied", applied).Msg("Migrations complete")

	case "status":
		status, err := runner.Status(ctx)
		if err != nil {
			reportFailure(logger, err)
			os.Exit(1)
		}
		printStatus(status)

	case "reset":
		if !*yes {
			logger.Error().Msg("reset deletes all migration tracking rows; re-run with -yes to confirm")
			os.Exit(1)
		}
		removed, err := runner.Reset(ctx)
		if err != nil {
			reportFailure(logger, err)
			os.Exit(1)
		}
		logger.Info().Int64("removed", removed).Msg("Tracking table cleared")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", command, usage)
		os.Exit(1)
	}
}

// setupLogging configures the process logger
func setupLogging(cfg *config.Config) zerolog.Logger {
	logConfig := utils.LoggerConfig{
		Level:      cfg.Server.LogLevel,
		Pretty:     true,
		CallerInfo: cfg.Server.Debug,
		LogFile:    os.Getenv("LOG_FILE"),
	}

	utils.SetupGlobalLogger(logConfig)
	return utils.NewLogger(logConfig)
}

// connectToDatabase establishes the connection and verifies its health
func connectToDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.Database, error) {
	logger.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.DBName).
		Msg("Connecting to PostgreSQL database")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Health(healthCtx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// reportFailure logs the failing migration's identity when the error carries
// one, and the plain cause otherwise.
func reportFailure(logger zerolog.Logger, err error) {
	switch {
	case utils.IsExecutionError(err):
		logger.Error().Err(err).Msg("Migration failed; fix the migration file and re-run to resume")
	case utils.IsLockTimeoutError(err):
		logger.Error().Err(err).Msg("Another runner is migrating this database")
	default:
		logger.Error().Err(err).Msg("Migration run failed")
	}
}

func printStatus(status *database.Status) {
	if len(status.Applied) == 0 && len(status.Pending) == 0 {
		fmt.Println("No migrations found")
		return
	}

	for _, record := range status.Applied {
		fmt.Printf("applied  %-8s %-40s %s\n", record.Version, record.Name, record.AppliedAt.Format(time.RFC3339))
	}
	for _, file := range status.Pending {
		fmt.Printf("pending  %-8s %s\n", file.Label, file.Name)
	}
}

var descriptionSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// scaffoldMigration writes an empty migration file with the next version
// number in sequence.
func scaffoldMigration(dir, description string) error {
	if description == "" {
		return fmt.Errorf("usage: migrate new <description>")
	}

	name := strings.Trim(descriptionSanitizer.ReplaceAllString(strings.ToLower(description), "_"), "_")
	if name == "" {
		return fmt.Errorf("description %q contains no usable characters", description)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	next := int64(1)
	files, err := migrations.LoadDir(dir)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		next = files[len(files)-1].Version + 1
	}

	filename := fmt.Sprintf("%03d_%s.sql", next, name)
	path := filepath.Join(dir, filename)
	header := fmt.Sprintf("-- %s\n\n", filename)

	if err := os.WriteFile(path, []byte(header), 0644); err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
