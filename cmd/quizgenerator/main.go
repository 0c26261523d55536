package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"quizbank"
)

const usage = `Usage: quizgenerator [global flags] <command> [command flags]

Commands:
  batch       Generate a template batch for one (interest, level, mode) cell
  approve     Approve template questions
  reject      Reject template questions
  unapprove   Return approved template questions to pending
  reconcile   Repair stale batch status labels
  fetch       Sample a quiz from the approved pools
  user        Create or update a user and their interests
  plan        Generate a user's full 30-set personalized plan
  page        Generate one page of a user's plan
  regenerate  Regenerate one quiz set
  batches     List template batches

Global flags:
`

type app struct {
	cfg       *quizbank.Config
	db        *quizbank.DB
	logger    *quizbank.Logger
	output    string
	completer quizbank.TextCompleter
	closeFn   func() error
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		outputFile = flag.String("output", "", "Output file for JSON results (default: stdout)")
		timeout    = flag.Duration("timeout", 30*time.Minute, "Overall timeout")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := quizbank.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger, err := quizbank.NewLogger(cfg.LogMode, cfg.Verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := quizbank.OpenDB(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer db.CloseDB()
	if err := db.CreateTables(); err != nil {
		logger.Fatal("Failed to create tables", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a := &app{cfg: cfg, db: db, logger: logger, output: *outputFile}
	defer a.close()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := a.run(ctx, cmd, args); err != nil {
		logger.Error("Command failed", "command", cmd, "error", err)
		a.close()
		os.Exit(1)
	}
}

func (a *app) close() {
	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			a.logger.Warn("Failed to close completer", "error", err)
		}
		a.closeFn = nil
	}
}

func (a *app) generator(ctx context.Context) (*quizbank.Generator, error) {
	if a.completer == nil {
		completer, closeFn, err := a.cfg.NewCompleter(ctx)
		if err != nil {
			return nil, err
		}
		a.completer, a.closeFn = completer, closeFn
	}
	return quizbank.NewGenerator(a.db, a.completer, a.cfg.GeneratorOptions(), a.logger), nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	moderator := quizbank.NewModerator(a.db, a.logger)

	switch cmd {
	case "batch":
		interest := fs.String("interest", "", "Interest (required)")
		level := fs.String("level", "", "CEFR level A1-C2 (required)")
		mode := fs.String("mode", "", "Game mode (required)")
		count := fs.Int("count", quizbank.DefaultBatchQuestions, "Number of questions to generate")
		by := fs.String("by", "cli", "Recorded as the batch's generator")
		fs.Parse(args)

		gen, err := a.generator(ctx)
		if err != nil {
			return err
		}
		batch, questions, err := gen.GenerateTemplateBatch(ctx, quizbank.BatchRequest{
			Interest:    *interest,
			Level:       quizbank.Level(*level),
			GameMode:    *mode,
			Count:       *count,
			GeneratedBy: *by,
		})
		if err != nil {
			return err
		}
		return a.write(map[string]interface{}{"batch": batch, "questions": questions})

	case "approve", "reject", "unapprove":
		ids := fs.String("ids", "", "Comma-separated question IDs (required)")
		admin := fs.String("admin", "cli", "Admin ID recorded on approval")
		reason := fs.String("reason", "", "Rejection reason")
		fs.Parse(args)

		list := splitCSV(*ids)
		var result *quizbank.ModerationResult
		var err error
		switch cmd {
		case "approve":
			result, err = moderator.Approve(ctx, list, *admin)
		case "reject":
			result, err = moderator.Reject(ctx, list, *reason)
		default:
			result, err = moderator.Unapprove(ctx, list)
		}
		if err != nil {
			return err
		}
		return a.write(result)

	case "reconcile":
		fs.Parse(args)
		n, err := moderator.ReconcileBatchStatuses(ctx)
		if err != nil {
			return err
		}
		return a.write(map[string]int{"repaired": n})

	case "fetch":
		interests := fs.String("interests", "", "Exactly three comma-separated interests")
		level := fs.String("level", "", "CEFR level")
		mode := fs.String("mode", "", "Game mode")
		per := fs.Int("per-interest", 5, "Questions per interest")
		fs.Parse(args)

		quiz, err := quizbank.NewQuestionPool(a.db, a.logger).FetchQuiz(ctx, quizbank.FetchRequest{
			Interests:   splitCSV(*interests),
			Level:       quizbank.Level(*level),
			GameMode:    *mode,
			PerInterest: *per,
		})
		if err != nil {
			return err
		}
		return a.write(quiz)

	case "user":
		id := fs.String("id", "", "User ID (required)")
		email := fs.String("email", "", "Email")
		interests := fs.String("interests", "", "Comma-separated interests")
		fs.Parse(args)
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		user := &quizbank.User{ID: *id, Email: *email, Interests: splitCSV(*interests)}
		if err := a.db.UpsertUser(ctx, user); err != nil {
			return err
		}
		return a.write(user)

	case "plan":
		user := fs.String("user", "", "User ID (required)")
		fs.Parse(args)
		gen, err := a.generator(ctx)
		if err != nil {
			return err
		}
		run, err := gen.GeneratePersonalizedQuizzes(ctx, *user)
		if err != nil {
			return err
		}
		return a.write(run)

	case "page":
		user := fs.String("user", "", "User ID (required)")
		page := fs.Int("page", 0, "Zero-based page of the plan")
		all := fs.Bool("all", false, "Keep going until the plan is complete")
		fs.Parse(args)
		gen, err := a.generator(ctx)
		if err != nil {
			return err
		}
		for p := *page; ; {
			result, err := gen.RunGenerationPage(ctx, *user, p)
			if err != nil {
				return err
			}
			a.logger.Info("Page done", "page", p, "progress", result.Progress, "total", result.Total)
			if !*all || result.Completed {
				return a.write(result)
			}
			p = result.NextPage
		}

	case "regenerate":
		id := fs.String("id", "", "Quiz set ID (required)")
		fs.Parse(args)
		gen, err := a.generator(ctx)
		if err != nil {
			return err
		}
		set, err := gen.RegenerateQuizSet(ctx, *id)
		if err != nil {
			return err
		}
		return a.write(set)

	case "batches":
		interest := fs.String("interest", "", "Filter by interest")
		level := fs.String("level", "", "Filter by level")
		mode := fs.String("mode", "", "Filter by game mode")
		fs.Parse(args)
		batches, err := a.db.ListBatches(ctx, quizbank.BatchFilter{
			Interest: *interest,
			Level:    quizbank.Level(*level),
			GameMode: *mode,
		})
		if err != nil {
			return err
		}
		return a.write(batches)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) write(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if a.output == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(a.output, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	a.logger.Info("Output saved", "path", a.output)
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
