package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"kzfm923/madealworker/internal/crawler"
	"kzfm923/madealworker/internal/finance"
)

// TimestampLayout is the extraction-time format written to the store
const TimestampLayout = "2006-01-02 15:04:05"

// FormattedRecord is a deduplicated, display-ready listing row.
// Financial fields are canonical 百万円 strings; empty source fields
// become "-".
type FormattedRecord struct {
	UniqueID    string `json:"unique_id"`
	Source      string `json:"source"`
	RecordID    string `json:"record_id"`
	Title       string `json:"title"`
	Revenue     string `json:"revenue"`
	Profit      string `json:"profit"`
	Price       string `json:"price"`
	Location    string `json:"location"`
	Features    string `json:"features"`
	DetailLink  string `json:"detail_link"`
	ExtractedAt string `json:"extracted_at"`
}

// UniqueID derives the stable 12-hex-char listing id from the source
// name and the record's stable input (detail link, else record id).
// The source name participates so the same listing syndicated on two
// sources stays two rows.
func UniqueID(source, stableInput string) string {
	sum := md5.Sum([]byte(source + "_" + stableInput))
	return hex.EncodeToString(sum[:])[:12]
}

// IDSet tracks known unique ids for one source's run. It is not safe
// for concurrent use; each source works on its own copy.
type IDSet struct {
	ids map[string]struct{}
}

// NewIDSet copies the seed ids (typically the store's existing ids) so
// the caller's map is never mutated.
func NewIDSet(seed map[string]struct{}) *IDSet {
	ids := make(map[string]struct{}, len(seed))
	for id := range seed {
		ids[id] = struct{}{}
	}
	return &IDSet{ids: ids}
}

// Has reports whether the id is already known
func (s *IDSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks an id as known
func (s *IDSet) Add(id string) {
	s.ids[id] = struct{}{}
}

// Len returns the number of known ids
func (s *IDSet) Len() int {
	return len(s.ids)
}

// Ingest converts raw records to formatted rows, skipping any whose
// unique id is already in known (previously stored or seen earlier in
// this run). New ids are added to known as they are produced, so a
// duplicate inside the batch also collapses to one row.
func Ingest(records []crawler.RawRecord, known *IDSet, now time.Time) []FormattedRecord {
	out := make([]FormattedRecord, 0, len(records))
	extractedAt := now.Format(TimestampLayout)

	for _, rec := range records {
		id := UniqueID(rec.Source, rec.StableInput())
		if known.Has(id) {
			continue
		}
		known.Add(id)

		out = append(out, FormattedRecord{
			UniqueID:    id,
			Source:      rec.Source,
			RecordID:    orDash(rec.RecordID),
			Title:       orDash(rec.Title),
			Revenue:     finance.FormatCanonical(rec.Revenue),
			Profit:      finance.FormatCanonical(rec.Profit),
			Price:       finance.FormatCanonical(rec.Price),
			Location:    orDash(rec.Location),
			Features:    orDash(rec.Features),
			DetailLink:  orDash(rec.DetailLink),
			ExtractedAt: extractedAt,
		})
	}
	return out
}

func orDash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return s
}
