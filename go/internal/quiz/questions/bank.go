package questions

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizsync/go/internal/models"
)

//go:embed bank.yaml
var defaultBank []byte

type bankFile struct {
	Categories map[string][]models.Question `yaml:"categories"`
}

// Bank is an in-memory Supplier backed by a YAML document.
type Bank struct {
	categories map[string][]models.Question

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Supplier = (*Bank)(nil)

// DefaultBank returns the bank compiled into the binary.
func DefaultBank() *Bank {
	b, err := ParseBank(defaultBank)
	if err != nil {
		panic(fmt.Sprintf("embedded question bank: %v", err))
	}
	return b
}

// LoadBank reads a bank from a YAML file.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}
	return ParseBank(data)
}

// ParseBank decodes a bank. Questions that cannot be asked are dropped
// with a warning rather than failing the whole bank.
func ParseBank(data []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	categories := make(map[string][]models.Question, len(f.Categories))
	for category, qs := range f.Categories {
		valid := make([]models.Question, 0, len(qs))
		for _, q := range qs {
			if err := q.Validate(); err != nil {
				log.Warn().Err(err).Str("category", category).Msg("skipping invalid question")
				continue
			}
			valid = append(valid, q)
		}
		categories[category] = valid
	}

	return &Bank{
		categories: categories,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// WithRand replaces the shuffle source.
func (b *Bank) WithRand(rng *rand.Rand) *Bank {
	b.mu.Lock()
	b.rng = rng
	b.mu.Unlock()
	return b
}

// Categories lists the category names in sorted order.
func (b *Bank) Categories() []string {
	names := make([]string, 0, len(b.categories))
	for name := range b.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Questions returns every question in category in bank order.
func (b *Bank) Questions(category string) []models.Question {
	return append([]models.Question(nil), b.categories[category]...)
}

// FetchQuestions shuffles the category and returns the first count questions.
func (b *Bank) FetchQuestions(ctx context.Context, category string, count int) ([]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	available := b.Questions(category)
	if len(available) == 0 {
		log.Warn().Str("category", category).Msg("no questions available for category")
		return []models.Question{}, nil
	}

	b.mu.Lock()
	b.rng.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	b.mu.Unlock()

	if count < len(available) {
		available = available[:max(count, 0)]
	}
	return available, nil
}
