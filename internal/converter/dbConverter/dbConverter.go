package dbConverter

import (
	"database/sql"
	"time"

	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/internal/model/dbModel"
)

const dateLayout = "2006-01-02"

func ConvertSecurity(row dbModel.Security) model.Security {
	return model.Security{
		Code:         row.Code,
		NameKr:       row.NameKr,
		NameEn:       fromNullString(row.NameEn),
		Market:       row.Market,
		CategoryL1:   fromNullString(row.CategoryL1),
		CategoryL2:   fromNullString(row.CategoryL2),
		IsActive:     row.IsActive,
		ListedDate:   fromNullDate(row.ListedDate),
		DelistedDate: fromNullDate(row.DelistedDate),
	}
}

func ConvertToRow(item model.Security) dbModel.Security {
	return dbModel.Security{
		Code:         item.Code,
		NameKr:       item.NameKr,
		NameEn:       toNullString(item.NameEn),
		Market:       item.Market,
		CategoryL1:   toNullString(item.CategoryL1),
		CategoryL2:   toNullString(item.CategoryL2),
		IsActive:     item.IsActive,
		ListedDate:   toNullDate(item.ListedDate),
		DelistedDate: toNullDate(item.DelistedDate),
	}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func toNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNullDate(v sql.NullTime) *string {
	if !v.Valid {
		return nil
	}
	s := v.Time.Format(dateLayout)
	return &s
}

func toNullDate(v *string) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	t, err := time.Parse(dateLayout, *v)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
