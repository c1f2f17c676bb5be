package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mcdev12/quizsync/go/internal/dbconfig"
	"github.com/mcdev12/quizsync/go/internal/quiz/questions"
)

// Loads a question bank into Postgres so the gateway can run with
// QUIZ_QUESTION_SOURCE=postgres. Usage: seed_questions [bank.yaml]
func main() {
	ctx := context.Background()

	// 1) Load the bank, falling back to the embedded one
	bank := questions.DefaultBank()
	if len(os.Args) > 1 {
		var err error
		bank, err = questions.LoadBank(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "load bank: %v\n", err)
			os.Exit(1)
		}
	}

	total := 0
	for _, c := range bank.Categories() {
		total += len(bank.Questions(c))
	}

	// 2) Migrate, then connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	if err := questions.Migrate(cfg.DSN()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	pool, err := cfg.NewPool(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert, leaving existing ids alone
	inserted, err := questions.Seed(ctx, pool, bank)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed questions: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped\n",
		total, inserted, total-inserted,
	)
}
