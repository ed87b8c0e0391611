package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/data"
	"github.com/hyopark/stock_master_bridge/data/cache"
	"github.com/hyopark/stock_master_bridge/data/repository/postgres"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/backendApi"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/kiwoomApi"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/notifier/telegramNotifier"
	"github.com/hyopark/stock_master_bridge/internal/scheduler"
	"github.com/hyopark/stock_master_bridge/internal/service/masterService"
	"github.com/hyopark/stock_master_bridge/internal/service/syncService"
	transportHttp "github.com/hyopark/stock_master_bridge/internal/transport/http"
	"github.com/hyopark/stock_master_bridge/utils"
)

type serveCmd struct {
	cfg *config.Config
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the security master HTTP API" }
func (*serveCmd) Usage() string {
	return `serve

  Runs the security master HTTP API on HTTP_PORT. When SYNC_JOB_INTERVAL
  is set, also runs the Kiwoom sync periodically in the background.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	pgClient := data.NewPostgresClient(c.cfg)
	defer pgClient.Close()

	redisClient := data.NewRedisClient(c.cfg)
	defer redisClient.Close()

	repo := postgres.NewPostgres(c.cfg, pgClient)
	redisCache := cache.NewRedisCache(redisClient, c.cfg)
	masterSvc := masterService.New(repo, redisCache)

	ctrl := transportHttp.NewController(c.cfg, masterSvc)
	srv := &http.Server{
		Addr:    ":" + c.cfg.HTTP.Port,
		Handler: transportHttp.NewRouter(ctrl),
	}

	if c.cfg.Jobs.SyncInterval > 0 {
		jobScheduler, err := c.startSyncJob()
		if err != nil {
			fmt.Println(err.Error())
			return exitConfigError
		}
		defer jobScheduler.Stop()
	}

	go func() {
		slog.Info("http server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", slog.String("err", err.Error()))
		return subcommands.ExitFailure
	}
	return exitOK
}

// startSyncJob schedules the full Kiwoom sync on SYNC_JOB_INTERVAL. The
// profile must resolve at startup: a server that silently skips its sync
// job is worse than one that refuses to start.
func (c *serveCmd) startSyncJob() (*scheduler.Scheduler, error) {
	profile, err := c.cfg.Kiwoom.ResolveProfile()
	if err != nil {
		return nil, err
	}

	syncSvc := syncService.New(
		c.cfg,
		profile,
		kiwoomApi.New(c.cfg, profile),
		backendApi.New(c.cfg.Backend.BaseURL),
	)
	notifier := telegramNotifier.New(c.cfg)

	jobScheduler := scheduler.New()
	jobScheduler.NewIntervalJob(
		"securityMasterSync",
		func(ctx context.Context) error {
			ctx = utils.NewCtxWithRqID(ctx)
			summary, _, err := syncSvc.Sync(ctx, model.SyncOptions{})
			notifier.NotifySyncResult(ctx, summary, err)
			return err
		},
		c.cfg.Jobs.SyncInterval,
		false,
	)
	jobScheduler.Start()
	return jobScheduler, nil
}
