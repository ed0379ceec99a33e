package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bloggy/backend/internal/articles"
	"github.com/bloggy/backend/internal/images"
	"github.com/bloggy/backend/internal/notifications"
	"github.com/bloggy/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqliteForeignKeysPragma = "_pragma=foreign_keys(1)"
)

var (
	errMissingPath    = errors.New("database path is required")
	errMissingDSN     = errors.New("database dsn is required")
	errUnknownDriver  = errors.New("unsupported database driver")
	schemaModels      = []any{&users.User{}, &articles.Article{}, &articles.Vote{}, &notifications.Notification{}, &images.Image{}, &migrationRecord{}}
	defaultGormConfig = gorm.Config{TranslateError: true, Logger: gormlogger.Discard}
)

// Options selects and addresses the backing database.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured database and brings the schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	db, err := Connect(options)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driverName(options.Driver)))
	}
	return db, nil
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	return Open(Options{Driver: DriverSQLite, Path: path}, logger)
}

// Connect opens the database without touching the schema.
func Connect(options Options) (*gorm.DB, error) {
	config := defaultGormConfig
	switch driverName(options.Driver) {
	case DriverSQLite:
		if strings.TrimSpace(options.Path) == "" {
			return nil, errMissingPath
		}
		db, err := gorm.Open(sqlite.Open(sqliteDSN(options.Path)), &config)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, errMissingDSN
		}
		return gorm.Open(postgres.Open(options.DSN), &config)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, options.Driver)
	}
}

// Migrate creates or updates tables and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func driverName(driver string) string {
	name := strings.ToLower(strings.TrimSpace(driver))
	if name == "" {
		return DriverSQLite
	}
	return name
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=foreign_keys") {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + sqliteForeignKeysPragma
}
