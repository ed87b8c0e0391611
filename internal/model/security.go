package model

// Canonical market buckets for the security master.
const (
	MarketKOSPI  = "KOSPI"
	MarketKOSDAQ = "KOSDAQ"
	MarketKONEX  = "KONEX"
	MarketETF    = "ETF"
	MarketETN    = "ETN"
)

// Security is the canonical representation of one listed instrument as it
// moves through the pipeline and over the upsert wire. Dates travel as ISO
// YYYY-MM-DD strings; nil means absent.
type Security struct {
	Code         string  `json:"code"`
	NameKr       string  `json:"name_kr"`
	NameEn       *string `json:"name_en"`
	Market       string  `json:"market"`
	CategoryL1   *string `json:"category_l1"`
	CategoryL2   *string `json:"category_l2"`
	IsActive     bool    `json:"is_active"`
	ListedDate   *string `json:"listed_date"`
	DelistedDate *string `json:"delisted_date"`
}

// Equal reports whether two securities carry identical field values,
// the comparison the upsert reconciler uses to decide updated vs unchanged.
func (s Security) Equal(other Security) bool {
	return s.Code == other.Code &&
		s.NameKr == other.NameKr &&
		equalStrPtr(s.NameEn, other.NameEn) &&
		s.Market == other.Market &&
		equalStrPtr(s.CategoryL1, other.CategoryL1) &&
		equalStrPtr(s.CategoryL2, other.CategoryL2) &&
		s.IsActive == other.IsActive &&
		equalStrPtr(s.ListedDate, other.ListedDate) &&
		equalStrPtr(s.DelistedDate, other.DelistedDate)
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpsertResult is the destination's reconciliation report for one batch.
type UpsertResult struct {
	Received  int `json:"received"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}
