// Package syncService sequences one sync run: authenticate against the
// source, fetch every market listing, normalize and dedup, optionally
// truncate, then either report (dry run) or health-check and push the batch
// to the backend.
package syncService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/externalApi/backendApi"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/normalizer"
	"github.com/hyopark/stock_master_bridge/internal/service"
	"github.com/hyopark/stock_master_bridge/utils"
)

type SourceApi interface {
	IssueToken(ctx context.Context, appKey, appSecret string) (tokenType, token string, err error)
	FetchStockList(ctx context.Context, tokenType, token, marketType string) ([]map[string]any, error)
}

type Backend interface {
	CheckHealth(ctx context.Context) bool
	UpsertSecurities(ctx context.Context, items []model.Security, bridgeKey string) (model.UpsertResult, error)
}

type SyncService struct {
	cfg     *config.Config
	profile config.Profile
	source  SourceApi
	backend Backend
}

func New(cfg *config.Config, profile config.Profile, source SourceApi, backend Backend) *SyncService {
	return &SyncService{
		cfg:     cfg,
		profile: profile,
		source:  source,
		backend: backend,
	}
}

// Sync runs the whole pipeline. It always returns a change summary, also on
// failure, so callers can report what was attempted; sample holds the first
// few selected items for dry-run output. Failures are wrapped in the
// service sentinels so the caller can map them to exit codes.
func (s *SyncService) Sync(ctx context.Context, opts model.SyncOptions) (summary model.ChangeSummary, sample []model.Security, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SyncService.Sync"

	slog.Debug("Sync start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Bool("dryRun", opts.DryRun),
		slog.Int("limit", opts.Limit),
	)

	rawCountTotal := 0
	fetchedMarkets := 0

	fail := func(pushResult any, cause error) (model.ChangeSummary, []model.Security, error) {
		return model.NewChangeSummary(fetchedMarkets, rawCountTotal, nil, nil, opts.DryRun, pushResult), nil, cause
	}

	tokenType, token, err := s.source.IssueToken(ctx, s.profile.AppKey, s.profile.AppSecret)
	if err != nil {
		slog.Error("got error from source.IssueToken", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return fail(model.PushNotStarted, fmt.Errorf("%w: %w", service.ErrAuthentication, err))
	}

	// Declared market order fixes the dedup tie-break; a single failed
	// market aborts the run, a partial catalog is worse than none.
	batches := make([]normalizer.RawBatch, 0, len(normalizer.MarketTypes))
	for _, marketType := range normalizer.MarketTypes {
		fetchedMarkets++

		records, fetchErr := s.source.FetchStockList(ctx, tokenType, token, marketType)
		if fetchErr != nil {
			slog.Error("got error from source.FetchStockList",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("marketType", marketType),
				slog.String("err", fetchErr.Error()),
			)
			return fail(model.PushNotStarted, fmt.Errorf("%w: %w", service.ErrFetch, fetchErr))
		}

		rawCountTotal += len(records)
		batches = append(batches, normalizer.RawBatch{MarketType: marketType, Records: records})

		if opts.Verbose {
			slog.Info("market fetched", slog.String("marketType", marketType), slog.Int("received", len(records)))
		}
	}

	normalized := normalizer.MergeBatches(batches)

	items := normalized
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}

	sample = items
	if len(sample) > 3 {
		sample = sample[:3]
	}

	if opts.DryRun {
		slog.Debug("Sync completed (dry run)", slog.String("rqID", rqID), slog.String("op", op), slog.Int("items", len(items)))
		return model.NewChangeSummary(fetchedMarkets, rawCountTotal, normalized, items, true, model.PushSkipped), sample, nil
	}

	if !s.backend.CheckHealth(ctx) {
		slog.Error("backend health check failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("baseURL", s.cfg.Backend.BaseURL))
		summary = model.NewChangeSummary(fetchedMarkets, rawCountTotal, normalized, items, false, model.PushHealthCheckFailed)
		return summary, sample, fmt.Errorf("%w: %s", service.ErrBackendUnavailable, s.cfg.Backend.BaseURL)
	}

	result, err := s.backend.UpsertSecurities(ctx, items, s.cfg.Backend.BridgeKey)
	if err != nil {
		slog.Error("got error from backend.UpsertSecurities", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		summary = model.NewChangeSummary(fetchedMarkets, rawCountTotal, normalized, items, false, upsertErrorTag(err))
		return summary, sample, fmt.Errorf("%w: %w", service.ErrUpsert, err)
	}

	slog.Debug("Sync completed",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
	)

	return model.NewChangeSummary(fetchedMarkets, rawCountTotal, normalized, items, false, result), sample, nil
}

func upsertErrorTag(err error) string {
	var upsertErr *backendApi.UpsertError
	if errors.As(err, &upsertErr) {
		return fmt.Sprintf("upsert_error_status_%d", upsertErr.StatusCode)
	}
	return "upsert_error_status_0"
}
