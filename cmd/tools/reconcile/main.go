// cmd/tools/reconcile/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"admission-portal/internal/admission/ledger"
	"admission-portal/internal/admission/reconciliation"
	"admission-portal/internal/common/config"
	"admission-portal/internal/common/database"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	pgstore "admission-portal/internal/store/postgres"
)

// Exit codes.
const (
	exitOK          = 0
	exitErrors      = 1
	exitUnavailable = 2
)

type reconciler interface {
	RunPass(ctx context.Context, trigger string) (*reconciliation.Result, error)
	ReconcileSubmission(ctx context.Context, trigger string, submissionID int64) (*reconciliation.Result, error)
}

type options struct {
	submission int64
	strict     bool
	asJSON     bool
}

func main() {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	var opts options
	fs.Int64Var(&opts.submission, "submission", 0, "Reconcile a single submission by id instead of a full pass")
	fs.BoolVar(&opts.strict, "strict", false, "Exit 1 when any candidate was not claimed")
	fs.BoolVar(&opts.asJSON, "json", false, "Print the full result as JSON")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitErrors)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"tool": "reconcile"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err == nil {
		err = pg.Ping(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to PostgreSQL: %v\n", err)
		os.Exit(exitUnavailable)
	}

	st := pgstore.New(pg.DB)
	engine := reconciliation.NewEngine(st, ledger.New(st, log), log,
		reconciliation.WithConcurrency(cfg.Reconciliation.Concurrency),
		reconciliation.WithBatchSize(cfg.Reconciliation.BatchSize),
		reconciliation.WithClaimTimeout(config.GetDuration(cfg.Reconciliation.ClaimTimeout)),
	)

	code := run(ctx, engine, opts, os.Stdout, os.Stderr)
	pg.Close()
	os.Exit(code)
}

// run executes one pass (or a single submission) and returns the exit code.
func run(ctx context.Context, rec reconciler, opts options, stdout, stderr io.Writer) int {
	var (
		res *reconciliation.Result
		err error
	)
	if opts.submission > 0 {
		res, err = rec.ReconcileSubmission(ctx, reconciliation.TriggerCLI, opts.submission)
	} else {
		res, err = rec.RunPass(ctx, reconciliation.TriggerCLI)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, apperrors.ErrResourceUnavailable) {
			return exitUnavailable
		}
		return exitErrors
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(stderr, "Error encoding result: %v\n", err)
			return exitErrors
		}
	} else {
		for _, l := range res.Lines {
			fmt.Fprintln(stdout, l)
		}
		fmt.Fprintf(stdout, "processed=%d claimed=%d errors=%d\n", res.Processed, res.Claimed, res.Errors)
	}

	if opts.strict && res.Errors > 0 {
		return exitErrors
	}
	return exitOK
}
