// Package storage persists the audit trail through GORM. Two drivers are
// provided: SQLite (default, single file) and PostgreSQL (shared, multi-host).
// All GORM usage is confined to this package and its driver subpackages.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a GORM connection with lifecycle methods.
type DB struct {
	gormDB *gorm.DB
	driver string
	logger *slog.Logger
}

// NewDB wraps an opened GORM connection. Used by the driver packages.
func NewDB(db *gorm.DB, driver string, logger *slog.Logger) *DB {
	return &DB{gormDB: db, driver: driver, logger: logger}
}

// GormDB returns the underlying *gorm.DB for repository constructors.
func (d *DB) GormDB() *gorm.DB {
	return d.gormDB
}

// Driver returns "sqlite" or "postgres".
func (d *DB) Driver() string {
	return d.driver
}

// Migrate creates or updates the tables.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.gormDB.WithContext(ctx).AutoMigrate(&AuditEventModel{}); err != nil {
		return fmt.Errorf("auto-migrating: %w", err)
	}
	return nil
}

// Ping checks the database connection for readiness probes.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (d *DB) Close() error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Audit returns the audit repository on this connection.
func (d *DB) Audit() *AuditRepository {
	return NewAuditRepository(d.gormDB)
}

// GormConfig returns the GORM settings shared by both drivers: slog-backed
// logging of slow queries and errors, and UTC timestamps.
func GormConfig(slogger *slog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			slogAdapter{slogger},
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
