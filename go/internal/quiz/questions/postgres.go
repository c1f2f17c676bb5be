package questions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizsync/go/internal/models"
)

// PostgresSupplier draws random questions from the questions table.
type PostgresSupplier struct {
	pool *pgxpool.Pool
}

var _ Supplier = (*PostgresSupplier)(nil)

func NewPostgresSupplier(pool *pgxpool.Pool) *PostgresSupplier {
	return &PostgresSupplier{pool: pool}
}

func (s *PostgresSupplier) FetchQuestions(ctx context.Context, category string, count int) ([]models.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, options, correct
		FROM questions
		WHERE category = $1
		ORDER BY random()
		LIMIT $2
	`, category, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", mapPostgresError(err))
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var q models.Question
		err := row.Scan(&q.ID, &q.Text, &q.Options, &q.Correct)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan questions: %w", mapPostgresError(err))
	}

	valid := qs[:0]
	for _, q := range qs {
		if q.Validate() == nil {
			valid = append(valid, q)
		}
	}
	return valid, nil
}

// Seed inserts every question in bank that is not already stored and
// returns how many rows were inserted. The schema must be migrated first.
func Seed(ctx context.Context, pool *pgxpool.Pool, bank *Bank) (int, error) {
	batch := &pgx.Batch{}
	for _, category := range bank.Categories() {
		for _, q := range bank.Questions(category) {
			batch.Queue(`
				INSERT INTO questions (id, category, text, options, correct)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING
			`, q.ID, category, q.Text, q.Options, q.Correct)
		}
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert question: %w", mapPostgresError(err))
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
