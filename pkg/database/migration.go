package database

import (
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// migrateLogger bridges golang-migrate's logger onto ectologger.
type migrateLogger struct {
	ectologger.Logger
}

func (l migrateLogger) Verbose() bool {
	return false
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.Debugf(format, v...)
}

type MigrationConfig struct {
	Folder       string
	Version      uint
	Force        int
	AutoRollback bool
}

type Migrator struct {
	config MigrationConfig
	logger ectologger.Logger
}

func NewMigrator(logger ectologger.Logger, config MigrationConfig) *Migrator {
	return &Migrator{config: config, logger: logger}
}

func (m *Migrator) folder() (string, error) {
	folder := m.config.Folder
	if !filepath.IsAbs(folder) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		folder = filepath.Join(wd, folder)
	}
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrapf(err, "migration folder %s does not exist", folder)
	}
	return folder, nil
}

// Up applies the schema migrations against a postgres connection.
func (m *Migrator) Up(db DB) error {
	folder, err := m.folder()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db.SQLX().DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	mg, err := migrate.NewWithDatabaseInstance("file://"+folder, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}
	mg.Log = migrateLogger{Logger: m.logger}

	if m.config.Force != 0 {
		if err := mg.Force(m.config.Force); err != nil {
			return errors.Wrapf(err, "failed to force database to version %d", m.config.Force)
		}
	}

	previous, _, previousErr := mg.Version()
	if previousErr != nil && !errors.Is(previousErr, migrate.ErrNilVersion) {
		m.logger.WithError(previousErr).Warn("Failed to read current migration version")
	}

	if m.config.Version != 0 {
		err = mg.Migrate(m.config.Version)
	} else {
		err = mg.Up()
	}

	switch {
	case err == nil:
		m.logger.Info("Applied database migrations")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Debug("No new migrations to apply")
		return nil
	}

	version, dirty, verr := mg.Version()
	if verr == nil && dirty && m.config.AutoRollback {
		target := rollbackTarget(previous, previousErr)
		m.logger.WithError(err).Warnf("Database is dirty at version %d, forcing back to %d", version, target)
		if ferr := mg.Force(target); ferr != nil {
			m.logger.WithError(ferr).Errorf("Failed to force database to version %d", target)
		}
	}
	return errors.Wrap(err, "failed to apply migrations")
}

// rollbackTarget is the version a dirty database is forced back to. A database
// with no applied migrations goes back to the nil version.
func rollbackTarget(previous uint, versionErr error) int {
	if errors.Is(versionErr, migrate.ErrNilVersion) || (versionErr == nil && previous == 0) {
		return migratedb.NilVersion
	}
	return int(previous)
}
