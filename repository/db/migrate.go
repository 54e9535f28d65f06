package db

import (
	stderrors "errors"

	"todoist/internal/domain/errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending migration found in migratePath.
func Migration(dbURL, migratePath string) (err error) {
	if migratePath == "" {
		return errors.ErrEmptyMigratePath
	}

	m, err := migrate.New("file://"+migratePath, dbURL)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = stderrors.Join(srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
