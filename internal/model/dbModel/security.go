package dbModel

import (
	"database/sql"
	"time"
)

type Security struct {
	Code         string         `db:"code"`
	NameKr       string         `db:"name_kr"`
	NameEn       sql.NullString `db:"name_en"`
	Market       string         `db:"market"`
	CategoryL1   sql.NullString `db:"category_l1"`
	CategoryL2   sql.NullString `db:"category_l2"`
	IsActive     bool           `db:"is_active"`
	ListedDate   sql.NullTime   `db:"listed_date"`
	DelistedDate sql.NullTime   `db:"delisted_date"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

type MarketCount struct {
	Market string `db:"market"`
	Count  int    `db:"count"`
}

type CategoryCount struct {
	CategoryL1 string `db:"category_l1"`
	Count      int    `db:"count"`
}
