// Command reconcile compares document rows with stored blobs and optionally repairs drift
// left behind by crashes between the two halves of an upload or delete.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"meddocs/internal/config"
	"meddocs/internal/database"
	"meddocs/internal/logger"
	"meddocs/internal/repository/postgres"
	"meddocs/internal/service"
	"meddocs/internal/storage"
)

type options struct {
	removeOrphans  bool
	removeDangling bool
	grace          time.Duration
}

// parseFlags reads the sweep options.
//
//	-remove-orphans    delete blobs that have no row (older than -grace)
//	-remove-dangling   delete rows whose blob is missing
//	-grace duration    minimum blob age before it may be removed (default 1h; 0 also means 1h)
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.removeOrphans, "remove-orphans", false, "delete blobs without a document row")
	fs.BoolVar(&opts.removeDangling, "remove-dangling", false, "delete document rows whose blob is missing")
	fs.DurationVar(&opts.grace, "grace", service.DefaultGracePeriod, "minimum age of an orphan blob before removal")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.grace < 0 {
		return options{}, fmt.Errorf("grace must not be negative: %s", opts.grace)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, opts, log, os.Stdout); err != nil {
		log.Error("reconcile_failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, opts options, log *zap.Logger, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	svc := service.NewDocumentService(blobs, postgres.NewDocumentPostgres(db), log)
	report, err := svc.Reconcile(ctx, service.ReconcileOptions{
		RemoveOrphans:  opts.removeOrphans,
		RemoveDangling: opts.removeDangling,
		GracePeriod:    opts.grace,
	})
	if err != nil {
		return err
	}
	return writeReport(out, report)
}

func writeReport(w io.Writer, report *service.ReconcileReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
