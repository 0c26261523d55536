package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizbank"
)

// discoverer finds under-filled pool cells and generates template batches
// for them, and repairs stale batch status labels.
type discoverer struct {
	db        *quizbank.DB
	moderator *quizbank.Moderator
	generator *quizbank.Generator
	logger    *quizbank.Logger

	target   int
	maxCells int
	interest string
}

func (d *discoverer) reconcile(ctx context.Context) {
	n, err := d.moderator.ReconcileBatchStatuses(ctx)
	if err != nil {
		d.logger.Error("Reconciliation failed", "error", err)
		return
	}
	d.logger.Info("Reconciliation finished", "repaired", n)
}

func (d *discoverer) fillGaps(ctx context.Context) error {
	gaps, err := d.db.CoverageGaps(ctx, d.target)
	if err != nil {
		return err
	}
	d.logger.Info("Found under-filled cells", "count", len(gaps), "target", d.target)

	filled := 0
	for _, gap := range gaps {
		if d.interest != "" && gap.Interest != d.interest {
			continue
		}
		if d.maxCells > 0 && filled >= d.maxCells {
			break
		}
		count := gap.Missing(d.target)
		if count > quizbank.MaxBatchQuestions {
			count = quizbank.MaxBatchQuestions
		}
		d.logger.Info("Generating batch for cell",
			"interest", gap.Interest, "level", gap.Level, "game_mode", gap.GameMode,
			"approved", gap.Approved, "pending", gap.Pending, "count", count)

		batch, _, err := d.generator.GenerateTemplateBatch(ctx, quizbank.BatchRequest{
			Interest:    gap.Interest,
			Level:       gap.Level,
			GameMode:    gap.GameMode,
			Count:       count,
			GeneratedBy: "quizdiscoverer",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.logger.Warn("Batch generation failed; moving on", "error", err)
			continue
		}
		d.logger.Info("Batch created", "batch_id", batch.ID, "questions", batch.TotalQuestions)
		filled++
	}
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		dbPath     = flag.String("db", "", "Database path (overrides config)")
		target     = flag.Int("target", 30, "Approved plus pending questions wanted per cell")
		maxCells   = flag.Int("max-cells", 1, "Maximum cells to fill per pass (0 = all)")
		interest   = flag.String("interest", "", "Only fill cells of this interest")
		generate   = flag.Bool("generate", true, "Generate batches for under-filled cells")
		interval   = flag.Duration("interval", 0, "Repeat every interval (0 = run once; overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose output")
	)
	flag.Parse()

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
	if *interval > 0 {
		cfg.ReconcileInterval = *interval
	}

	logger, err := quizbank.NewLogger(cfg.LogMode, cfg.Verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := quizbank.OpenDB(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer db.CloseDB()
	if err := db.CreateTables(); err != nil {
		logger.Fatal("Failed to create tables", "error", err)
	}

	d := &discoverer{
		db:        db,
		moderator: quizbank.NewModerator(db, logger),
		logger:    logger,
		target:    *target,
		maxCells:  *maxCells,
		interest:  *interest,
	}
	if *generate {
		completer, closeCompleter, err := cfg.NewCompleter(ctx)
		if err != nil {
			logger.Fatal("Failed to create completer", "error", err)
		}
		defer closeCompleter()
		d.generator = quizbank.NewGenerator(db, completer, cfg.GeneratorOptions(), logger)
	}

	pass := func() {
		d.reconcile(ctx)
		if d.generator != nil {
			if err := d.fillGaps(ctx); err != nil {
				logger.Error("Gap fill failed", "error", err)
			}
		}
	}

	pass()
	if cfg.ReconcileInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping")
			return
		case <-ticker.C:
			pass()
		}
	}
}
