// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and the versioned schema upgrades.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

// sqlitePragmas are applied to the single pooled connection in order.
var sqlitePragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"foreign_keys", "ON"},
	{"busy_timeout", "5000"},
}

// OpenSQLite opens (or creates) the SQLite file at path, pins the pool to one
// connection, applies sqlitePragmas and installs the GORM tracing plugin. A
// missing parent directory is reported as the os.Stat error.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	for _, p := range sqlitePragmas {
		if err := db.Exec(fmt.Sprintf("PRAGMA %s=%s;", p.name, p.value)).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	return db, nil
}

// migration upgrades the schema from version-1 to version.
type migration func(tx *gorm.DB) error

// migrations is indexed by target version minus one.
var migrations = []migration{
	// v1: the three collections. Field-level migrations are not needed yet.
	func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&domain.CachedInvitation{},
			&domain.PendingRSVP{},
			&domain.Setting{},
		)
	},
}

// userVersion reads PRAGMA user_version.
func userVersion(ctx context.Context, db *gorm.DB) (int, error) {
	var v int
	if err := db.WithContext(ctx).Raw("PRAGMA user_version;").Row().Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// Migrate runs every upgrade between the stored user_version and target.
// Each step runs in its own transaction together with the version bump.
func Migrate(ctx context.Context, db *gorm.DB, target int) error {
	if target > len(migrations) {
		return fmt.Errorf("unknown schema version %d", target)
	}
	current, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	for v := current + 1; v <= target; v++ {
		step := migrations[v-1]
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := step(tx); err != nil {
				return err
			}
			return tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", v)).Error
		})
		if err != nil {
			return fmt.Errorf("upgrade to v%d: %w", v, err)
		}
	}
	return nil
}

// nowMillis is the default store clock.
func nowMillis() int64 { return time.Now().UnixMilli() }
