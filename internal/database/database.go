package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/deaconkarim/deacon-insights/internal/config"
	"github.com/deaconkarim/deacon-insights/internal/models"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Connect opens the configured database and verifies the connection
func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Database connection established successfully", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// Migrate brings the schema up to date. Postgres runs the embedded SQL migrations;
// sqlite, used for local runs and tests, is auto-migrated from the models.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "sqlite" {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("failed to auto-migrate: %w", err)
		}
		return nil
	}
	return RunMigrations(db)
}

// RunMigrations runs all embedded SQL migrations in order
func RunMigrations(db *gorm.DB) error {
	files, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to glob migration files: %w", err)
	}

	// Sort files to ensure correct order
	sort.Strings(files)

	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, file := range files {
		if err := runMigration(db, file); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", file, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table
func createMigrationsTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id SERIAL PRIMARY KEY,
		version VARCHAR(255) NOT NULL UNIQUE,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`
	return db.Exec(sql).Error
}

// runMigration runs a single migration file
func runMigration(db *gorm.DB, filePath string) error {
	version := strings.TrimSuffix(path.Base(filePath), ".up.sql")

	var count int64
	if err := db.Table("schema_migrations").Where("version = ?", version).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil // Already applied
	}

	content, err := migrationFiles.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	for _, statement := range parseSQLStatements(string(content)) {
		if err := db.Exec(statement).Error; err != nil {
			// table/index created out of band
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version).Error; err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return nil
}

// MigrationStatus represents a migration status
type MigrationStatus struct {
	Version   string `json:"version"`
	AppliedAt string `json:"applied_at"`
}

// GetMigrationStatus returns the applied migrations, oldest first
func GetMigrationStatus(db *gorm.DB) ([]MigrationStatus, error) {
	var migrations []MigrationStatus

	err := db.Table("schema_migrations").
		Select("version, applied_at").
		Order("applied_at ASC").
		Find(&migrations).Error

	return migrations, err
}

// parseSQLStatements splits SQL content into statements, keeping dollar-quoted
// function bodies intact. Returned statements are trimmed and never empty.
func parseSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder
	var inFunction bool
	var dollarQuoteCount int

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		upper := strings.ToUpper(trimmed)
		if strings.Contains(upper, "CREATE OR REPLACE FUNCTION") || strings.Contains(upper, "CREATE FUNCTION") {
			inFunction = true
			dollarQuoteCount = 0
		}

		if inFunction {
			dollarQuoteCount += strings.Count(trimmed, "$$")
		}

		current.WriteString(line)
		current.WriteString("\n")

		switch {
		case !inFunction && strings.HasSuffix(trimmed, ";"):
			flush()
		case inFunction && dollarQuoteCount > 0 && dollarQuoteCount%2 == 0 && strings.HasSuffix(trimmed, ";"):
			// even number of dollar quotes closes the function body
			flush()
			inFunction = false
		}
	}

	flush()
	return statements
}
