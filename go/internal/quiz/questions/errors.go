package questions

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotMigrated means the questions table does not exist yet.
	ErrNotMigrated = errors.New("questions table is missing, run seed_questions")
	ErrUnavailable = errors.New("question database unavailable")
)

// mapPostgresError maps the Postgres failures a caller can act on to
// sentinel errors and returns anything else unchanged.
func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UndefinedTable:
		return fmt.Errorf("%w: %s", ErrNotMigrated, pgErr.Message)
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.AdminShutdown,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
