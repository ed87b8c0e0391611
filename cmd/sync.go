package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/backendApi"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/kiwoomApi"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/notifier/telegramNotifier"
	"github.com/hyopark/stock_master_bridge/internal/service"
	"github.com/hyopark/stock_master_bridge/internal/service/syncService"
	"github.com/hyopark/stock_master_bridge/utils"
)

// Process exit codes, also part of the CLI contract for schedulers.
const (
	exitOK            = subcommands.ExitStatus(0)
	exitRunFailure    = subcommands.ExitStatus(1) // auth or fetch failure
	exitConfigError   = subcommands.ExitStatus(2)
	exitBackendDown   = subcommands.ExitStatus(3)
	exitUpsertFailure = subcommands.ExitStatus(4)
)

type syncCmd struct {
	cfg *config.Config

	dryRun  bool
	limit   int
	verbose bool
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "sync the security master from Kiwoom to the backend" }
func (*syncCmd) Usage() string {
	return `sync [-dry-run] [-limit n] [-verbose]

  Fetches all market listings from the Kiwoom REST API, normalizes and
  dedups them, and upserts the batch into the backend security master.
  Exit codes: 0 ok, 1 auth/fetch failure, 2 config error, 3 backend
  unreachable, 4 upsert failure.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "fetch and normalize only, skip backend health check and upsert")
	f.IntVar(&c.limit, "limit", 0, "truncate the deduplicated batch to the first n items (0 = no limit)")
	f.BoolVar(&c.verbose, "verbose", false, "per-market fetch logs")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if limitProvided(f) && c.limit < 1 {
		fmt.Println("-limit must be >= 1")
		printSummary(zeroSummary(c.dryRun))
		return exitConfigError
	}

	profile, err := c.cfg.Kiwoom.ResolveProfile()
	if err != nil {
		fmt.Println(err.Error())
		printSummary(zeroSummary(c.dryRun))
		return exitConfigError
	}

	ctx = utils.NewCtxWithRqID(ctx)

	syncSvc := syncService.New(
		c.cfg,
		profile,
		kiwoomApi.New(c.cfg, profile),
		backendApi.New(c.cfg.Backend.BaseURL),
	)

	summary, sample, err := syncSvc.Sync(ctx, model.SyncOptions{
		DryRun:  c.dryRun,
		Limit:   c.limit,
		Verbose: c.verbose,
	})

	telegramNotifier.New(c.cfg).NotifySyncResult(ctx, summary, err)

	if err != nil {
		fmt.Println(err.Error())
		printSummary(summary)
		return exitStatusFor(err)
	}

	if c.dryRun {
		fmt.Printf("total=%d\n", summary.LimitedTo)
		if sampleJson, marshalErr := json.MarshalIndent(sample, "", "  "); marshalErr == nil {
			fmt.Println(string(sampleJson))
		}
	} else if resultJson, marshalErr := json.Marshal(summary.PushResult); marshalErr == nil {
		fmt.Println(string(resultJson))
	}

	printSummary(summary)
	return exitOK
}

// limitProvided distinguishes an explicit -limit from the zero default:
// the default means no limit, an explicit value must be positive.
func limitProvided(f *flag.FlagSet) bool {
	provided := false
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == "limit" {
			provided = true
		}
	})
	return provided
}

func exitStatusFor(err error) subcommands.ExitStatus {
	switch {
	case errors.Is(err, service.ErrBackendUnavailable):
		return exitBackendDown
	case errors.Is(err, service.ErrUpsert):
		return exitUpsertFailure
	default:
		return exitRunFailure
	}
}

// printSummary emits the change summary as the final stdout line of every
// run, so operators can diagnose failed runs without re-running verbose.
func printSummary(summary model.ChangeSummary) {
	summaryJson, err := json.Marshal(summary)
	if err != nil {
		fmt.Printf("change_summary_marshal_error=%s\n", err)
		return
	}
	fmt.Printf("change_summary=%s\n", string(summaryJson))
}

func zeroSummary(dryRun bool) model.ChangeSummary {
	return model.NewChangeSummary(0, 0, nil, nil, dryRun, model.PushNotStarted)
}
