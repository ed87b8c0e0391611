// Package normalizer maps raw Kiwoom listing records onto the canonical
// security schema and merges per-market batches into one code-unique list.
package normalizer

import (
	"strconv"
	"strings"
	"time"

	"github.com/hyopark/stock_master_bridge/internal/model"
)

// MarketTypes is the declared fetch order. It also fixes the dedup
// tie-break: the first market in this order that carries a code wins.
var MarketTypes = []string{"0", "10", "50", "8", "3", "5", "4", "6", "9"}

var marketTypeToBackend = map[string]string{
	"0":  model.MarketKOSPI,
	"10": model.MarketKOSDAQ,
	"50": model.MarketKONEX,
	"8":  model.MarketETF,
}

// Ordered candidate keys per logical field; the API is inconsistent about
// field names across endpoints and environments.
var (
	codeKeys       = []string{"code", "stk_cd", "jongmok_cd", "isu_cd", "item_code", "symbol"}
	nameKrKeys     = []string{"name_kr", "stk_nm", "jongmok_nm", "isu_nm", "item_name", "name"}
	nameEnKeys     = []string{"name_en", "eng_nm", "item_name_en", "en_name"}
	listedDateKeys = []string{"regDay", "reg_day", "list_dt", "listed_date"}
	categoryL1Keys = []string{"upName", "up_name"}
	categoryL2Keys = []string{"companyClassName", "company_class_name"}
)

// RawBatch is one market's raw listing in fetch order.
type RawBatch struct {
	MarketType string
	Records    []map[string]any
}

// MapMarket resolves a raw market-type code to a canonical market.
// Unknown codes fall into the ETN bucket instead of failing.
func MapMarket(marketType string) string {
	if market, ok := marketTypeToBackend[strings.TrimSpace(marketType)]; ok {
		return market
	}
	return model.MarketETN
}

// Normalize maps one raw record onto the canonical schema. Records without
// a resolvable code or Korean name yield (zero, false) and are meant to be
// dropped silently by the caller.
func Normalize(record map[string]any, marketType string) (model.Security, bool) {
	code := strings.ToUpper(pickValue(record, codeKeys))
	nameKr := pickValue(record, nameKrKeys)

	if code == "" || nameKr == "" {
		return model.Security{}, false
	}

	return model.Security{
		Code:       code,
		NameKr:     nameKr,
		NameEn:     optional(pickValue(record, nameEnKeys)),
		Market:     MapMarket(marketType),
		CategoryL1: optional(pickValue(record, categoryL1Keys)),
		CategoryL2: optional(pickValue(record, categoryL2Keys)),
		IsActive:   true,
		ListedDate: parseListedDate(pickValue(record, listedDateKeys)),
	}, true
}

// MergeBatches normalizes every record in batch order and keeps the first
// occurrence of each code, preserving first-seen insertion order.
func MergeBatches(batches []RawBatch) []model.Security {
	seen := make(map[string]struct{})
	merged := make([]model.Security, 0)

	for _, batch := range batches {
		for _, record := range batch.Records {
			item, ok := Normalize(record, batch.MarketType)
			if !ok {
				continue
			}
			if _, dup := seen[item.Code]; dup {
				continue
			}
			seen[item.Code] = struct{}{}
			merged = append(merged, item)
		}
	}

	return merged
}

// pickValue returns the first non-empty trimmed value among the candidate
// keys. Numeric JSON values are rendered without a fractional tail so codes
// like 005930 arriving as numbers still resolve.
func pickValue(record map[string]any, keys []string) string {
	for _, key := range keys {
		if s := asString(record[key]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// parseListedDate converts an 8-digit YYYYMMDD code to ISO form,
// or nil when absent or unparsable.
func parseListedDate(raw string) *string {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return nil
	}
	iso := t.Format("2006-01-02")
	return &iso
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
