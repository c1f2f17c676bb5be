package models

import (
	"errors"
	"fmt"
	"slices"
)

// Question is immutable once it has been written into a session.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options" yaml:"options"`
	Correct string   `json:"correct" yaml:"correct"`
}

// Validate checks that the question can be asked: it needs a prompt, at
// least two distinct options, and a correct answer drawn from them.
func (q Question) Validate() error {
	if q.Text == "" {
		return errors.New("text is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: at least two options are required", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("question %s: duplicate option %q", q.ID, o)
		}
		seen[o] = struct{}{}
	}
	if !slices.Contains(q.Options, q.Correct) {
		return fmt.Errorf("question %s: correct answer %q is not one of the options", q.ID, q.Correct)
	}
	return nil
}

// IsCorrect reports whether option is the designated answer.
func (q Question) IsCorrect(option string) bool {
	return option == q.Correct
}
