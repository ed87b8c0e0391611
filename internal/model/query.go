package model

// SecurityFilter is the validated query surface of the listing endpoint.
type SecurityFilter struct {
	Keywords   []string
	Op         string // "and" | "or"
	Markets    []string
	Categories []string
	Ordering   string
	Page       int
	PageSize   int
}

type SecurityPage struct {
	Count    int        `json:"count"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Results  []Security `json:"results"`
}

type CategoryCount struct {
	CategoryL1 string `json:"category_l1"`
	Count      int    `json:"count"`
}

type Stats struct {
	ByMarket      map[string]int  `json:"by_market"`
	TopCategoryL1 []CategoryCount `json:"top_category_l1"`
}
