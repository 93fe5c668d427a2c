package store

import (
	"kzfm923/madealworker/internal/pipeline"
)

// Store is the destination for formatted listing rows. ExistingIDs is
// read once before a run starts; Append writes one run's batch.
type Store interface {
	// ExistingIDs returns every uniqueId already persisted
	ExistingIDs() (map[string]struct{}, error)
	// Append persists a batch of new rows
	Append(records []pipeline.FormattedRecord) error
	// Close releases the store's resources
	Close() error
}

// header is the column order shared by all store backends
var header = []string{
	"uniqueId",
	"source",
	"recordId",
	"title",
	"revenue",
	"profit",
	"price",
	"location",
	"features",
	"detailLink",
	"extractedAt",
}

func recordCells(rec pipeline.FormattedRecord) []string {
	return []string{
		rec.UniqueID,
		rec.Source,
		rec.RecordID,
		rec.Title,
		rec.Revenue,
		rec.Profit,
		rec.Price,
		rec.Location,
		rec.Features,
		rec.DetailLink,
		rec.ExtractedAt,
	}
}
