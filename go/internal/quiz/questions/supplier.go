// Package questions supplies the question list a session is started with.
package questions

import (
	"context"

	"github.com/mcdev12/quizsync/go/internal/models"
)

// Supplier returns up to count questions for category. It returns an empty
// list, not an error, when the category has nothing.
type Supplier interface {
	FetchQuestions(ctx context.Context, category string, count int) ([]models.Question, error)
}
