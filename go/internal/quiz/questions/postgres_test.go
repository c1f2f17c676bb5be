package questions

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/quiz?sslmode=disable", migrateURL("postgres://u:p@db:5432/quiz?sslmode=disable"))
	assert.Equal(t, "pgx5://db/quiz", migrateURL("postgresql://db/quiz"))
	assert.Equal(t, "pgx5://db/quiz", migrateURL("pgx5://db/quiz"))
}

func TestMapPostgresError(t *testing.T) {
	t.Run("missing table", func(t *testing.T) {
		err := mapPostgresError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "questions" does not exist`})
		assert.ErrorIs(t, err, ErrNotMigrated)
	})

	t.Run("connection failure", func(t *testing.T) {
		err := mapPostgresError(&pgconn.PgError{Code: pgerrcode.CannotConnectNow})
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("other postgres errors pass through", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		assert.Same(t, pgErr, mapPostgresError(pgErr))
	})

	t.Run("non postgres errors pass through", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, mapPostgresError(plain))
	})
}
