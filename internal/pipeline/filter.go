package pipeline

import (
	"kzfm923/madealworker/internal/crawler"
	"kzfm923/madealworker/internal/finance"
	"kzfm923/madealworker/logger"
)

// Thresholds are per-source minimums in yen. Zero disables a check.
type Thresholds struct {
	MinRevenue int64
	MinProfit  int64
}

// FilterByThreshold keeps records whose financials meet the source's
// minimums. A range qualifies on its maximum. Records whose financial
// text carries no amount (非公開, 応相談, masked) are kept with a
// warning rather than silently dropped; a human reviewing the output
// decides what an undisclosed amount is worth.
func FilterByThreshold(records []crawler.RawRecord, th Thresholds) []crawler.RawRecord {
	if th.MinRevenue == 0 && th.MinProfit == 0 {
		return records
	}

	kept := make([]crawler.RawRecord, 0, len(records))
	for _, rec := range records {
		if !passes(rec, rec.Revenue, th.MinRevenue, "revenue") {
			continue
		}
		if !passes(rec, rec.Profit, th.MinProfit, "profit") {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func passes(rec crawler.RawRecord, text string, threshold int64, field string) bool {
	if threshold == 0 {
		return true
	}

	m := finance.Parse(text)
	if m.Absent {
		logger.ForSource(rec.Source).Warn().
			Str("record", rec.RecordID).
			Str("field", field).
			Str("raw", m.Raw).
			Msg("Undisclosed amount kept despite threshold")
		return true
	}
	return m.Qualifies(threshold)
}
