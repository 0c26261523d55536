package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizbank"

	"github.com/gin-gonic/gin"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		port       = flag.Int("port", 0, "Port to listen on (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	cfg, err := quizbank.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
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

	if cfg.SessionSecret == "" {
		logger.Fatal("SESSION_SECRET is required")
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is not set; admin login is disabled")
	}
	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := quizbank.OpenDB(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		logger.Fatal("Failed to create tables", "error", err)
	}
	if n, err := db.FailStaleRuns(ctx, "interrupted by server restart"); err != nil {
		logger.Fatal("Failed to close stale generation runs", "error", err)
	} else if n > 0 {
		logger.Warn("Marked stale generation runs failed", "count", n)
	}

	completer, closeCompleter, err := cfg.NewCompleter(ctx)
	if err != nil {
		logger.Fatal("Failed to create completer", "error", err)
	}
	defer closeCompleter()

	server := NewServer(ServerDeps{
		DB:                db,
		Generator:         quizbank.NewGenerator(db, completer, cfg.GeneratorOptions(), logger),
		Moderator:         quizbank.NewModerator(db, logger),
		Pool:              quizbank.NewQuestionPool(db, logger),
		SessionSecret:     cfg.SessionSecret,
		AdminPasswordHash: cfg.AdminPasswordHash,
		CORSOrigins:       cfg.CORSOrigins,
		Logger:            logger,
		Background:        ctx,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Server starting", "addr", srv.Addr, "provider", cfg.Provider, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", "error", err)
	}
	// In-flight requests and cancelled runs finish before the database closes.
	<-drained
	server.Wait()
	logger.Info("Server stopped")
}
