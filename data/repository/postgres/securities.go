package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyopark/stock_master_bridge/data/repository"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/model/dbModel"
	"github.com/hyopark/stock_master_bridge/utils"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const securityColumns = `code, name_kr, name_en, market, category_l1, category_l2, is_active, listed_date, delisted_date, created_at, updated_at`

func (r *Postgres) GetSecurityByCode(ctx context.Context, code string) (row dbModel.Security, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetSecurityByCode"
	query := `SELECT ` + securityColumns + ` FROM security_master WHERE code = $1`

	slog.Debug("GetSecurityByCode start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetSecurityByCode failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSecurityByCode completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, code).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbModel.Security{}, repository.ErrNotFound
		}
		return dbModel.Security{}, err
	}

	return row, nil
}

func (r *Postgres) InsertSecurity(ctx context.Context, row dbModel.Security) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertSecurity"
	query := `
		INSERT INTO security_master(code, name_kr, name_en, market, category_l1, category_l2, is_active, listed_date, delisted_date)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

	slog.Debug("InsertSecurity start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", row.Code))
	defer func() {
		if err != nil {
			slog.Error("InsertSecurity failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertSecurity completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(
		ctx,
		query,
		row.Code,
		row.NameKr,
		row.NameEn,
		row.Market,
		row.CategoryL1,
		row.CategoryL2,
		row.IsActive,
		row.ListedDate,
		row.DelistedDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return repository.ErrAlreadyExists
			}
		}
		return err
	}

	return nil
}

func (r *Postgres) UpdateSecurity(ctx context.Context, row dbModel.Security) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdateSecurity"
	query := `
		UPDATE security_master
		SET
			name_kr = $1,
			name_en = $2,
			market = $3,
			category_l1 = $4,
			category_l2 = $5,
			is_active = $6,
			listed_date = $7,
			delisted_date = $8,
			updated_at = now()
		WHERE code = $9
		`

	slog.Debug("UpdateSecurity start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", row.Code))
	defer func() {
		if err != nil {
			slog.Error("UpdateSecurity failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateSecurity completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(
		ctx,
		query,
		row.NameKr,
		row.NameEn,
		row.Market,
		row.CategoryL1,
		row.CategoryL2,
		row.IsActive,
		row.ListedDate,
		row.DelistedDate,
		row.Code,
	)
	if err != nil {
		return err
	}

	return nil
}

var orderingToSQL = map[string]string{
	"code":        "code ASC",
	"-code":       "code DESC",
	"name_kr":     "name_kr ASC, code ASC",
	"-name_kr":    "name_kr DESC, code ASC",
	"updated_at":  "updated_at ASC, code ASC",
	"-updated_at": "updated_at DESC, code ASC",
}

func (r *Postgres) ListSecurities(ctx context.Context, filter model.SecurityFilter) (rows []dbModel.Security, total int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListSecurities"

	slog.Debug("ListSecurities start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("filter", filter))
	defer func() {
		if err != nil {
			slog.Error("ListSecurities failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListSecurities completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	where, args := buildListFilter(filter)

	orderBy, ok := orderingToSQL[filter.Ordering]
	if !ok {
		orderBy = orderingToSQL["code"]
	}

	countQuery := `SELECT COUNT(*) FROM security_master` + where
	countQuery, countArgs, err := bindIn(countQuery, args)
	if err != nil {
		return nil, 0, err
	}

	q := r.txOrDb(ctx)

	err = q.GetContext(ctx, &total, q.Rebind(countQuery), countArgs...)
	if err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + securityColumns + ` FROM security_master` + where +
		` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	listArgs := append(append([]any{}, args...), filter.PageSize, (filter.Page-1)*filter.PageSize)
	listQuery, listArgs, err = bindIn(listQuery, listArgs)
	if err != nil {
		return nil, 0, err
	}

	rows = make([]dbModel.Security, 0, filter.PageSize)
	err = q.SelectContext(ctx, &rows, q.Rebind(listQuery), listArgs...)
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

// buildListFilter composes the WHERE clause with ? placeholders; sqlx.In
// expands the slice arguments before the final Rebind to $n form.
func buildListFilter(filter model.SecurityFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0)

	if len(filter.Keywords) > 0 {
		tokenClauses := make([]string, 0, len(filter.Keywords))
		for _, token := range filter.Keywords {
			pattern := "%" + token + "%"
			tokenClauses = append(tokenClauses, `(code ILIKE ? OR name_kr ILIKE ? OR name_en ILIKE ?)`)
			args = append(args, pattern, pattern, pattern)
		}
		joiner := " AND "
		if filter.Op == "or" {
			joiner = " OR "
		}
		clauses = append(clauses, "("+strings.Join(tokenClauses, joiner)+")")
	}

	if len(filter.Markets) > 0 {
		clauses = append(clauses, `market IN (?)`)
		args = append(args, filter.Markets)
	}

	if len(filter.Categories) > 0 {
		clauses = append(clauses, `(category_l1 IN (?) OR category_l2 IN (?))`)
		args = append(args, filter.Categories, filter.Categories)
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func bindIn(query string, args []any) (string, []any, error) {
	if len(args) == 0 {
		return query, args, nil
	}
	boundQuery, boundArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand IN arguments: %w", err)
	}
	return boundQuery, boundArgs, nil
}

func (r *Postgres) ListAllSecurities(ctx context.Context) (rows []dbModel.Security, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListAllSecurities"
	query := `SELECT ` + securityColumns + ` FROM security_master ORDER BY code`

	slog.Debug("ListAllSecurities start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("ListAllSecurities failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListAllSecurities completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (r *Postgres) GetMarketCounts(ctx context.Context) (counts []dbModel.MarketCount, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetMarketCounts"
	query := `
		SELECT market, COUNT(code) AS count
		FROM security_master
		GROUP BY market
		ORDER BY market
		`

	slog.Debug("GetMarketCounts start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("GetMarketCounts failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetMarketCounts completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &counts, query)
	if err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *Postgres) GetTopCategories(ctx context.Context, limit int) (counts []dbModel.CategoryCount, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTopCategories"
	query := `
		SELECT category_l1, COUNT(code) AS count
		FROM security_master
		WHERE category_l1 IS NOT NULL AND category_l1 <> ''
		GROUP BY category_l1
		ORDER BY count DESC, category_l1
		LIMIT $1
		`

	slog.Debug("GetTopCategories start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("limit", limit))
	defer func() {
		if err != nil {
			slog.Error("GetTopCategories failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTopCategories completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &counts, query, limit)
	if err != nil {
		return nil, err
	}

	return counts, nil
}
