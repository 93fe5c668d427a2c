package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kzfm923/madealworker/internal/crawler"
)

func TestFilterByThreshold(t *testing.T) {
	records := []crawler.RawRecord{
		{Source: "s", RecordID: "1", Revenue: "5,000万円〜1億円"},
		{Source: "s", RecordID: "2", Revenue: "3,000万円"},
		{Source: "s", RecordID: "3", Revenue: "非公開"},
		{Source: "s", RecordID: "4", Revenue: "5億円以上"},
	}

	kept := FilterByThreshold(records, Thresholds{MinRevenue: 100_000_000})

	ids := make([]string, 0, len(kept))
	for _, r := range kept {
		ids = append(ids, r.RecordID)
	}
	assert.Equal(t, []string{"1", "3", "4"}, ids,
		"range max meets the bar, undisclosed is kept, below-threshold is dropped")
}

func TestFilterByProfit(t *testing.T) {
	records := []crawler.RawRecord{
		{Source: "s", RecordID: "1", Revenue: "2億円", Profit: "3,000万円"},
		{Source: "s", RecordID: "2", Revenue: "2億円", Profit: "▲500万円"},
		{Source: "s", RecordID: "3", Revenue: "2億円", Profit: "赤字"},
	}

	kept := FilterByThreshold(records, Thresholds{MinProfit: 10_000_000})
	require.Len(t, kept, 2)
	assert.Equal(t, "1", kept[0].RecordID)
	assert.Equal(t, "3", kept[1].RecordID, "赤字 reads as undisclosed, not as a number")
}

func TestFilterZeroThresholdsPassEverything(t *testing.T) {
	records := []crawler.RawRecord{{Source: "s", RecordID: "1", Revenue: "1円"}}
	assert.Len(t, FilterByThreshold(records, Thresholds{}), 1)
}

func TestUniqueID(t *testing.T) {
	id := UniqueID("sourceA", "https://a.example.com/deal/1")

	assert.Len(t, id, 12)
	assert.Equal(t, id, UniqueID("sourceA", "https://a.example.com/deal/1"), "deterministic")
	assert.NotEqual(t, id, UniqueID("sourceB", "https://a.example.com/deal/1"),
		"the source name participates in the hash")
}

func TestIngestDedup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	records := []crawler.RawRecord{
		{Source: "s", RecordID: "1", DetailLink: "https://x.example.com/1", Revenue: "5,000万円〜1億円"},
		{Source: "s", RecordID: "dup", DetailLink: "https://x.example.com/1", Revenue: "5,000万円〜1億円"},
		{Source: "s", RecordID: "2", DetailLink: "https://x.example.com/2", Revenue: "約820百万円"},
	}

	known := NewIDSet(nil)
	out := Ingest(records, known, now)

	require.Len(t, out, 2, "identical detail links collapse to one row")
	assert.Equal(t, "50～100百万円", out[0].Revenue)
	assert.Equal(t, "820百万円", out[1].Revenue)
	assert.Equal(t, "2026-03-01 12:30:00", out[0].ExtractedAt)
}

func TestIngestSkipsKnownIDs(t *testing.T) {
	rec := crawler.RawRecord{Source: "s", RecordID: "1", DetailLink: "https://x.example.com/1"}
	id := UniqueID("s", "https://x.example.com/1")

	known := NewIDSet(map[string]struct{}{id: {}})
	out := Ingest([]crawler.RawRecord{rec}, known, time.Now())
	assert.Empty(t, out)
}

func TestIngestTwiceProducesOnce(t *testing.T) {
	rec := crawler.RawRecord{Source: "s", RecordID: "1", DetailLink: "https://x.example.com/1"}
	known := NewIDSet(nil)

	first := Ingest([]crawler.RawRecord{rec}, known, time.Now())
	second := Ingest([]crawler.RawRecord{rec}, known, time.Now())

	assert.Len(t, first, 1)
	assert.Empty(t, second, "re-crawling the same listing adds nothing")
}

func TestIngestDashDefaults(t *testing.T) {
	rec := crawler.RawRecord{Source: "s", RecordID: "1"}
	out := Ingest([]crawler.RawRecord{rec}, NewIDSet(nil), time.Now())

	require.Len(t, out, 1)
	assert.Equal(t, "-", out[0].Title)
	assert.Equal(t, "-", out[0].Revenue)
	assert.Equal(t, "-", out[0].Profit)
	assert.Equal(t, "-", out[0].Location)
	assert.Equal(t, "-", out[0].DetailLink)
}

func TestNewIDSetCopiesSeed(t *testing.T) {
	seed := map[string]struct{}{"abc": {}}
	s := NewIDSet(seed)
	s.Add("def")

	assert.Len(t, seed, 1, "the caller's map is untouched")
	assert.Equal(t, 2, s.Len())
}
