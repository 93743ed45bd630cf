// Package database はPostgreSQL接続とスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動での修復が必要な状態を表す。
var ErrDirtySchema = errors.New("database schema is dirty")

// MigrationStatus は適用済みスキーマのバージョン。Version 0 は未適用を表す。
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// NewMigrator は埋め込みSQLを読むmigrateインスタンスを生成する。呼び出し側でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後の状態を返す。
// dirtyなスキーマには何もせずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	before, err := status(m)
	if err != nil {
		return MigrationStatus{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("%w at version %d", ErrDirtySchema, before.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{}, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return status(m)
}

// SchemaStatus は現在のスキーマバージョンを返す。
func SchemaStatus(databaseURL string) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	return status(m)
}

func status(m *migrate.Migrate) (MigrationStatus, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}
