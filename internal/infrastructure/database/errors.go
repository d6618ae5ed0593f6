package database

import "errors"

var (
	// ErrPathRequired is returned by Open when no database path is configured.
	ErrPathRequired = errors.New("database: path is required")

	// ErrBadMigration is returned when a migration source holds files that
	// cannot form a consistent history.
	ErrBadMigration = errors.New("database: invalid migration set")

	// ErrUnknownMigration is returned when the database records a version the
	// migration source does not contain.
	ErrUnknownMigration = errors.New("database: applied migration not in source")

	// ErrIrreversible is returned by Rollback for a migration without a down
	// file.
	ErrIrreversible = errors.New("database: migration has no down SQL")
)
