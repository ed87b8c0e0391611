package model

import "fmt"

// Push-result tags used in the change summary when no reconciliation result
// exists for the run.
const (
	PushNotStarted        = "not_started"
	PushSkipped           = "skipped"
	PushHealthCheckFailed = "health_check_failed"
)

type SyncOptions struct {
	DryRun  bool
	Limit   int // 0 = no limit
	Verbose bool
}

// QualityReport describes how complete the normalized batch is.
type QualityReport struct {
	ListedDateParsed  string         `json:"listed_date_parsed"`
	CategoryL1Missing string         `json:"category_l1_missing"`
	PerMarketCounts   map[string]int `json:"per_market_counts"`
}

// ChangeSummary is the structured end-of-run report. PushResult is either
// one of the Push* tags, an upsert error tag, or an UpsertResult.
type ChangeSummary struct {
	FetchedMarkets   int           `json:"fetched_markets"`
	RawCountTotal    int           `json:"raw_count_total"`
	NormalizedUnique int           `json:"normalized_unique"`
	LimitedTo        int           `json:"limited_to"`
	DryRun           bool          `json:"dry_run"`
	PushResult       any           `json:"push_result"`
	Quality          QualityReport `json:"quality"`
}

// NewChangeSummary computes the summary for a run over the full normalized
// batch and the (possibly truncated) selection that was pushed.
func NewChangeSummary(fetchedMarkets, rawCountTotal int, normalized, selected []Security, dryRun bool, pushResult any) ChangeSummary {
	listedDateParsed := 0
	categoryL1Missing := 0
	perMarket := make(map[string]int)

	for _, item := range normalized {
		if item.ListedDate != nil {
			listedDateParsed++
		}
		if item.CategoryL1 == nil {
			categoryL1Missing++
		}
		perMarket[item.Market]++
	}

	return ChangeSummary{
		FetchedMarkets:   fetchedMarkets,
		RawCountTotal:    rawCountTotal,
		NormalizedUnique: len(normalized),
		LimitedTo:        len(selected),
		DryRun:           dryRun,
		PushResult:       pushResult,
		Quality: QualityReport{
			ListedDateParsed:  fmt.Sprintf("%d/%d", listedDateParsed, len(normalized)),
			CategoryL1Missing: fmt.Sprintf("%d/%d", categoryL1Missing, len(normalized)),
			PerMarketCounts:   perMarket,
		},
	}
}
