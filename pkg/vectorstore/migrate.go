package vectorstore

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationTimeout = time.Minute

// Migrate applies all pending schema migrations from the embedded set.
// A database left dirty by an interrupted run must be repaired by hand;
// refusing to continue beats guessing at the half-applied state.
func (s *Store) Migrate(ctx context.Context) error {
	migrator, err := s.newMigrator()
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil || dbErr != nil {
			s.logger.Warn("migrator close", map[string]interface{}{
				"source_error":   errString(srcErr),
				"database_error": errString(dbErr),
			})
		}
	}()

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "read migration version")
	}
	if dirty {
		return apperrors.Newf(apperrors.KindSchemaMismatch, "database is dirty at migration version %d", version)
	}

	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		upErr := migrator.Up()
		if errors.Is(upErr, migrate.ErrNoChange) {
			upErr = nil
		}
		done <- upErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindUnavailable, "apply migrations")
		}
		if v, _, vErr := migrator.Version(); vErr == nil {
			s.logger.Info("migrations applied", map[string]interface{}{"version": v})
		}
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.KindTimeout, "migration timed out")
	}
}

// MigrationVersion reports the current schema version and dirty flag.
func (s *Store) MigrationVersion(ctx context.Context) (uint, bool, error) {
	migrator, err := s.newMigrator()
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Wrap(err, apperrors.KindUnavailable, "read migration version")
	}
	return version, dirty, nil
}

func (s *Store) newMigrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "open embedded migrations")
	}
	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "create postgres migration driver")
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "create migrator")
	}
	return migrator, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
