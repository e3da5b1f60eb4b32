package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint
	Force               int
	AutoRollback        bool // force the schema back to the previous version when a migration leaves it dirty
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

func (ms *MigrationService) resolveMigrationFolder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return filepath.Abs(folder)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	folder = filepath.Join(wd, ms.config.MigrationFolderPath)
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}
	return folder, nil
}

// MigratePostgres applies the migrations in the configured folder to db
func (ms *MigrationService) MigratePostgres(db *sql.DB, databaseName string) error {
	folder, err := ms.resolveMigrationFolder()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return errors.Wrap(err, "failed to create postgres migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	previous, _, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		ms.logger.WithError(err).Error("Failed to get current migration version")
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	ms.logger.Infof("Database migrations completed in %v", time.Since(start))

	switch {
	case err == nil:
		ms.logger.Info("Successfully applied migrations")
		return nil
	case err == migrate.ErrNoChange:
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if dirty && ms.config.AutoRollback {
		if previous == 0 && version > 0 {
			previous = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previous)
		if forceErr := m.Force(int(previous)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previous)
			return forceErr
		}
	}

	// the original error is still returned so the service refuses to start on a failed migration
	return err
}
