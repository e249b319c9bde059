// Package main provides a CLI tool for seeding the database with the LMS demo
// dataset.
// Usage: seed [--bulk <n>]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"softcascade/internal/app"
	"softcascade/internal/config"
	"softcascade/pkg/logger"
)

func main() {
	bulk := 0
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--bulk" && i+1 < len(os.Args) {
			n, err := strconv.Atoi(os.Args[i+1])
			if err != nil || n < 0 {
				fmt.Printf("invalid --bulk value %q\n", os.Args[i+1])
				os.Exit(1)
			}
			bulk = n
			i++
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatalw("failed to migrate", "error", err)
	}

	if err := a.Seed(ctx); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	if bulk > 0 {
		n, err := a.SeedBulk(ctx, bulk)
		if err != nil {
			log.Fatalw("failed to bulk seed", "error", err)
		}
		log.Infow("bulk enrollments loaded", "course", 1, "enrollments", n)
	}

	log.Info("seeding completed successfully")
}
