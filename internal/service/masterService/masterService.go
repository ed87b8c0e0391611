// Package masterService is the destination side of the bridge: batch upsert
// reconciliation over the security master table plus the read surface
// (listing, detail, stats, export).
package masterService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyopark/stock_master_bridge/data/repository"
	"github.com/hyopark/stock_master_bridge/internal/converter/dbConverter"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/model/dbModel"
	"github.com/hyopark/stock_master_bridge/internal/service"
	"github.com/hyopark/stock_master_bridge/utils"
)

const topCategoryLimit = 20

var allowedMarkets = map[string]struct{}{
	model.MarketKOSPI:  {},
	model.MarketKOSDAQ: {},
	model.MarketKONEX:  {},
	model.MarketETF:    {},
	model.MarketETN:    {},
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	GetSecurityByCode(ctx context.Context, code string) (dbModel.Security, error)
	InsertSecurity(ctx context.Context, row dbModel.Security) error
	UpdateSecurity(ctx context.Context, row dbModel.Security) error
	ListSecurities(ctx context.Context, filter model.SecurityFilter) (rows []dbModel.Security, total int, err error)
	ListAllSecurities(ctx context.Context) ([]dbModel.Security, error)
	GetMarketCounts(ctx context.Context) ([]dbModel.MarketCount, error)
	GetTopCategories(ctx context.Context, limit int) ([]dbModel.CategoryCount, error)
}

type Cache interface {
	GetStats(ctx context.Context) (model.Stats, error)
	SetStats(ctx context.Context, stats model.Stats) error
	FlushStats(ctx context.Context) error
}

type MasterService struct {
	repo  Repository
	cache Cache
}

func New(repo Repository, cache Cache) *MasterService {
	return &MasterService{repo: repo, cache: cache}
}

// UpsertSecurities reconciles one batch against stored state inside a
// single transaction: insert when absent, update when any field differs,
// count unchanged otherwise. The batch commits or rolls back as one unit.
func (s *MasterService) UpsertSecurities(ctx context.Context, items []model.Security) (result model.UpsertResult, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MasterService.UpsertSecurities"

	slog.Debug("UpsertSecurities start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("items", len(items)))
	defer func() {
		if err != nil {
			slog.Error("UpsertSecurities failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertSecurities completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	if err = validateBatch(items); err != nil {
		return model.UpsertResult{}, err
	}

	result.Received = len(items)

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, item := range items {
			item.Code = strings.ToUpper(item.Code)

			stored, getErr := s.repo.GetSecurityByCode(ctx, item.Code)
			if getErr != nil {
				if errors.Is(getErr, repository.ErrNotFound) {
					if insErr := s.repo.InsertSecurity(ctx, dbConverter.ConvertToRow(item)); insErr != nil {
						return insErr
					}
					result.Inserted++
					continue
				}
				return getErr
			}

			if dbConverter.ConvertSecurity(stored).Equal(item) {
				result.Unchanged++
				continue
			}

			if updErr := s.repo.UpdateSecurity(ctx, dbConverter.ConvertToRow(item)); updErr != nil {
				return updErr
			}
			result.Updated++
		}
		return nil
	})

	if err != nil {
		return model.UpsertResult{}, err
	}

	if result.Inserted+result.Updated > 0 {
		if flushErr := s.cache.FlushStats(ctx); flushErr != nil {
			slog.Error("got error from cache.FlushStats", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", flushErr.Error()))
		}
	}

	return result, nil
}

// Field limits mirror the security_master columns; varchar(n) counts
// characters, so lengths are checked in runes, not bytes.
func validateBatch(items []model.Security) error {
	for i, item := range items {
		code := strings.TrimSpace(item.Code)
		if code == "" || utf8.RuneCountInString(code) > 12 {
			return fmt.Errorf("%w: items[%d] invalid code", service.ErrValidation, i)
		}
		if name := strings.TrimSpace(item.NameKr); name == "" || utf8.RuneCountInString(name) > 120 {
			return fmt.Errorf("%w: items[%d] invalid name_kr", service.ErrValidation, i)
		}
		if !validLen(item.NameEn, 120) {
			return fmt.Errorf("%w: items[%d] invalid name_en", service.ErrValidation, i)
		}
		if !validLen(item.CategoryL1, 64) {
			return fmt.Errorf("%w: items[%d] invalid category_l1", service.ErrValidation, i)
		}
		if !validLen(item.CategoryL2, 64) {
			return fmt.Errorf("%w: items[%d] invalid category_l2", service.ErrValidation, i)
		}
		if _, ok := allowedMarkets[item.Market]; !ok {
			return fmt.Errorf("%w: items[%d] invalid market %q", service.ErrValidation, i, item.Market)
		}
		if !validDate(item.ListedDate) {
			return fmt.Errorf("%w: items[%d] invalid listed_date", service.ErrValidation, i)
		}
		if !validDate(item.DelistedDate) {
			return fmt.Errorf("%w: items[%d] invalid delisted_date", service.ErrValidation, i)
		}
	}
	return nil
}

func validLen(s *string, max int) bool {
	return s == nil || utf8.RuneCountInString(*s) <= max
}

func validDate(s *string) bool {
	if s == nil {
		return true
	}
	_, err := time.Parse("2006-01-02", *s)
	return err == nil
}

func (s *MasterService) GetSecurity(ctx context.Context, code string) (model.Security, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MasterService.GetSecurity"

	slog.Debug("GetSecurity start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))

	row, err := s.repo.GetSecurityByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Security{}, service.ErrNotFound
		}
		slog.Error("got error from repo.GetSecurityByCode", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Security{}, err
	}

	return dbConverter.ConvertSecurity(row), nil
}

func (s *MasterService) ListSecurities(ctx context.Context, filter model.SecurityFilter) (model.SecurityPage, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MasterService.ListSecurities"

	slog.Debug("ListSecurities start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("filter", filter))

	rows, total, err := s.repo.ListSecurities(ctx, filter)
	if err != nil {
		slog.Error("got error from repo.ListSecurities", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.SecurityPage{}, err
	}

	results := make([]model.Security, 0, len(rows))
	for _, row := range rows {
		results = append(results, dbConverter.ConvertSecurity(row))
	}

	return model.SecurityPage{
		Count:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Results:  results,
	}, nil
}

// GetStats serves the per-market and top-category breakdowns out of the
// redis cache when warm; the cache is flushed whenever an upsert changes
// anything.
func (s *MasterService) GetStats(ctx context.Context) (model.Stats, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MasterService.GetStats"

	slog.Debug("GetStats start", slog.String("rqID", rqID), slog.String("op", op))

	if stats, err := s.cache.GetStats(ctx); err == nil {
		return stats, nil
	}

	marketCounts, err := s.repo.GetMarketCounts(ctx)
	if err != nil {
		slog.Error("got error from repo.GetMarketCounts", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Stats{}, err
	}

	topCategories, err := s.repo.GetTopCategories(ctx, topCategoryLimit)
	if err != nil {
		slog.Error("got error from repo.GetTopCategories", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Stats{}, err
	}

	stats := model.Stats{
		ByMarket:      make(map[string]int, len(marketCounts)),
		TopCategoryL1: make([]model.CategoryCount, 0, len(topCategories)),
	}
	for _, row := range marketCounts {
		stats.ByMarket[row.Market] = row.Count
	}
	for _, row := range topCategories {
		stats.TopCategoryL1 = append(stats.TopCategoryL1, model.CategoryCount{CategoryL1: row.CategoryL1, Count: row.Count})
	}

	if setErr := s.cache.SetStats(ctx, stats); setErr != nil {
		slog.Error("got error from cache.SetStats", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", setErr.Error()))
	}

	return stats, nil
}

// ExportSecurities returns the whole master table in code order for the
// xlsx export.
func (s *MasterService) ExportSecurities(ctx context.Context) ([]model.Security, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MasterService.ExportSecurities"

	slog.Debug("ExportSecurities start", slog.String("rqID", rqID), slog.String("op", op))

	rows, err := s.repo.ListAllSecurities(ctx)
	if err != nil {
		slog.Error("got error from repo.ListAllSecurities", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	securities := make([]model.Security, 0, len(rows))
	for _, row := range rows {
		securities = append(securities, dbConverter.ConvertSecurity(row))
	}

	slog.Debug("ExportSecurities completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(securities)))

	return securities, nil
}
