// Package main provides the cascade CLI.
// Usage: cascade delete course#1 [course#2 ...] [--actor <id>] [--email <email>]
//        cascade restore course#1
//        cascade preview delete course#1
//        cascade history course#1 [--limit 20]
//        cascade migrate
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"softcascade/internal/app"
	"softcascade/internal/config"
	"softcascade/internal/core/apperror"
	appctx "softcascade/internal/core/context"
	"softcascade/internal/core/entity"
	"softcascade/internal/domain/cascade"
	"softcascade/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "--help", "-h":
		printUsage()
		return
	case "delete", "restore", "preview", "history", "migrate":
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	args, err := parseArgs(os.Args[1], os.Args[2:])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, log)
	ctx = appctx.EnsureTrace(ctx)
	ctx = appctx.WithActor(ctx, &appctx.Actor{UserID: args.actor, Email: args.email, Source: "cli"})

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer a.Close()

	if err := run(ctx, a, args); err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			fmt.Printf("Error [%s]: %s\n", appErr.Code, appErr.Message)
			if len(appErr.Details) > 0 {
				details, _ := json.Marshal(appErr.Details)
				fmt.Printf("  details: %s\n", details)
			}
			if appErr.Err != nil {
				fmt.Printf("  cause: %v\n", appErr.Err)
			}
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Soft-delete cascade CLI

Usage:
  cascade <command> [options]

Commands:
  delete    Soft-delete rows and everything depending on them
  restore   Clear the deletion timestamp of rows and their dependents
  preview   Show what delete or restore would touch, without changing anything
  history   Show the audit log of one row
  migrate   Apply database migrations
  help      Show this help

Options:
  --actor <id>      Acting user recorded in the audit log (default $USER)
  --email <email>   Acting user's email
  --limit <n>       Number of history entries (default 20)

Environment Variables:
  DATABASE_URL           Connection string (required)
  CASCADE_KEEP_PARENTS   Leave parent-linked rows alone (default false)
  CASCADE_FAST_PATH      Update eligible leaf rows by predicate (default true)
  CASCADE_BATCH_SIZE     Keys per statement (default 100)
  AUDIT_ENABLED          Write audit rows (default true)
  AUDIT_FILTER           CEL expression over event, entity, key
  OUTBOX_ENABLED         Write outbox events (default true)

Examples:
  cascade migrate
  cascade preview delete course#1
  cascade delete course#1 --actor 42
  cascade restore course#1
  cascade history enrollment#7`)
}

// cliArgs are the parsed command line arguments.
type cliArgs struct {
	command string
	op      cascade.Operation
	refs    []entity.Ref
	actor   string
	email   string
	limit   int
}

func parseArgs(command string, argv []string) (cliArgs, error) {
	args := cliArgs{command: command, actor: os.Getenv("USER"), limit: 20}

	var positional []string
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "--actor", "--email", "--limit":
			if i+1 >= len(argv) {
				return args, fmt.Errorf("%s requires a value", argv[i])
			}
			value := argv[i+1]
			i++
			switch argv[i-1] {
			case "--actor":
				args.actor = value
			case "--email":
				args.email = value
			case "--limit":
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return args, fmt.Errorf("invalid --limit %q", value)
				}
				args.limit = n
			}
		default:
			if strings.HasPrefix(argv[i], "--") {
				return args, fmt.Errorf("unknown option %s", argv[i])
			}
			positional = append(positional, argv[i])
		}
	}

	switch command {
	case "migrate":
		if len(positional) > 0 {
			return args, fmt.Errorf("migrate takes no arguments")
		}
		return args, nil
	case "preview":
		if len(positional) == 0 {
			return args, fmt.Errorf("preview requires an operation (delete or restore)")
		}
		args.op = cascade.Operation(positional[0])
		if !args.op.Valid() {
			return args, fmt.Errorf("unknown operation %q", positional[0])
		}
		positional = positional[1:]
	case "delete":
		args.op = cascade.OpDelete
	case "restore":
		args.op = cascade.OpRestore
	}

	if len(positional) == 0 {
		return args, fmt.Errorf("%s requires at least one type#key reference", command)
	}
	if command == "history" && len(positional) > 1 {
		return args, fmt.Errorf("history takes exactly one reference")
	}
	for _, p := range positional {
		ref, err := entity.ParseRef(p)
		if err != nil {
			return args, err
		}
		args.refs = append(args.refs, ref)
	}
	return args, nil
}

func run(ctx context.Context, a *app.App, args cliArgs) error {
	switch args.command {
	case "migrate":
		if err := a.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil

	case "preview":
		plan, err := a.Cascade.Preview(ctx, args.op, roots(args.refs)...)
		if err != nil {
			return err
		}
		printPlan(plan)
		return nil

	case "history":
		return printHistory(ctx, a, args.refs[0], args.limit)
	}

	var (
		res *cascade.Result
		err error
	)
	if args.op == cascade.OpRestore {
		res, err = a.Cascade.Restore(ctx, roots(args.refs)...)
	} else {
		res, err = a.Cascade.Delete(ctx, roots(args.refs)...)
	}
	if err != nil {
		return err
	}

	printPlan(res.Plan)
	if res.DeletedAt != nil {
		fmt.Printf("deleted_at: %s\n", res.DeletedAt.Format(time.RFC3339Nano))
	}
	fmt.Printf("Updated %d rows\n", res.Total())
	return nil
}

func roots(refs []entity.Ref) []entity.Referencer {
	out := make([]entity.Referencer, len(refs))
	for i, r := range refs {
		out[i] = r
	}
	return out
}

func printPlan(plan *cascade.Plan) {
	fmt.Printf("%s plan (%d records, %d fast groups)\n", plan.Operation, plan.Len(), len(plan.Fast))
	for _, b := range plan.Batches {
		keys := make([]string, len(b.Records))
		for i, rec := range b.Records {
			keys[i] = rec.Key.String()
		}
		fmt.Printf("  %-20s %s\n", b.Type, strings.Join(keys, ","))
	}
	for _, g := range plan.Fast {
		keys := make([]string, len(g.ParentKeys))
		for i, k := range g.ParentKeys {
			keys[i] = k.String()
		}
		fmt.Printf("  %-20s where %s in (%s)\n", g.Edge.Child, g.Edge.Column, strings.Join(keys, ","))
	}
}

func printHistory(ctx context.Context, a *app.App, ref entity.Ref, limit int) error {
	entries, err := a.Audit.GetEntityHistory(ctx, ref.Type, ref.Key.String(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No audit entries for %s\n", ref)
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-12s by %-10s %s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.UserID, e.Changes)
	}
	return nil
}
