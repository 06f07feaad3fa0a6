package eventstore

import (
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.NewError(errors.CategoryEventStore, "could not open build history database").Build()

	// ErrInitializeSchemaFailed indicates the schema could not be created.
	ErrInitializeSchemaFailed = errors.NewError(errors.CategoryEventStore, "failed to initialize build history schema").Build()

	// ErrRecordNotFound is returned by Get for an unknown build id.
	ErrRecordNotFound = errors.NewError(errors.CategoryNotFound, "build not found in history").Build()
)
