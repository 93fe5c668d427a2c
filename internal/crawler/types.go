package crawler

// RawRecord is one business-sale listing as extracted from a source
// page, before normalization and qualification. Field values are the
// source's original text; empty means the source did not expose it.
type RawRecord struct {
	Source     string
	RecordID   string
	Title      string
	Revenue    string
	Profit     string
	Price      string
	Location   string
	Features   string
	DetailLink string
	PageURL    string
}

// StableInput returns the value hashed into the record's unique id: the
// detail link when present, else the source's own record id. Both are
// stable across crawls for the same listing.
func (r RawRecord) StableInput() string {
	if r.DetailLink != "" {
		return r.DetailLink
	}
	return r.RecordID
}
