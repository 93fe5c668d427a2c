package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"

	"kzfm923/madealworker/internal/extract"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/pkg/errors"
)

// Strategy selects how list pages are turned into records. Sources are
// configured with a strategy value, not a dedicated type.
type Strategy string

const (
	// StrategySelector walks DOM items with an item selector and per-field locator chains
	StrategySelector Strategy = "selector"
	// StrategyWindow slices the flattened page text into anchored windows and
	// reads fields by their Japanese labels
	StrategyWindow Strategy = "window"
)

// PaginationType names how page N's URL is built
type PaginationType string

const (
	// PaginationNone means the source has a single list page
	PaginationNone PaginationType = "none"
	// PaginationQueryParam appends ?param=N
	PaginationQueryParam PaginationType = "query_param"
	// PaginationPath substitutes N into a path template
	PaginationPath PaginationType = "path"
)

// Pagination describes a source's page-URL scheme. Page 1 is always the
// base URL itself.
type Pagination struct {
	Type PaginationType
	// Param is the query parameter name for query_param pagination
	Param string
	// Template is a full URL with one %d for path pagination
	Template string
}

// FieldSpec tells the extractor where a field lives: structural
// locators first, regex captures second, Japanese labels third.
type FieldSpec struct {
	Locators []extract.Locator
	Patterns []*regexp.Regexp
	Labels   []string
}

// AdapterConfig is the full data-driven description of one source
type AdapterConfig struct {
	Source     string
	URL        string
	MaxPages   int
	Pagination Pagination
	Strategy   Strategy

	// ItemSelector bounds one listing for the selector strategy
	ItemSelector string
	// ItemAnchor bounds one listing for the window strategy
	ItemAnchor *regexp.Regexp
	// WindowTail caps the final window's length in bytes
	WindowTail int

	// Fields maps canonical field names (title, id, revenue, profit,
	// price, location, features, link) to their extraction spec
	Fields map[string]FieldSpec

	// LinkTemplate builds a detail link from the record id when the
	// source exposes no href (one %s)
	LinkTemplate string

	// RevenueBands translates fixed revenue-band labels into canonical
	// amounts for sources that only publish bands
	RevenueBands map[string]string

	// DetailEnrich enables a second fetch of each record's detail page
	DetailEnrich bool
	// DetailFields overrides Fields when parsing detail pages
	DetailFields map[string]FieldSpec
}

// Adapter extracts RawRecords from one source's pages according to its
// data-driven config.
type Adapter struct {
	cfg AdapterConfig
	log *logger.Logger
}

// NewAdapter creates a source adapter
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySelector
	}
	if cfg.WindowTail == 0 {
		cfg.WindowTail = 600
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 1
	}
	if len(cfg.RevenueBands) > 0 {
		// Band labels are matched width-folded so full-width and
		// half-width tildes land on the same key
		normalized := make(map[string]string, len(cfg.RevenueBands))
		for k, v := range cfg.RevenueBands {
			normalized[strings.TrimSpace(width.Narrow.String(k))] = v
		}
		cfg.RevenueBands = normalized
	}
	return &Adapter{
		cfg: cfg,
		log: logger.ForSource(cfg.Source),
	}
}

// Source returns the source name
func (a *Adapter) Source() string {
	return a.cfg.Source
}

// MaxPages returns how many list pages to crawl
func (a *Adapter) MaxPages() int {
	return a.cfg.MaxPages
}

// DetailEnrich reports whether detail pages should be fetched
func (a *Adapter) DetailEnrich() bool {
	return a.cfg.DetailEnrich
}

// PageURL builds the URL for a 1-based page number. Page 1 is the base
// URL regardless of the pagination scheme.
func (a *Adapter) PageURL(page int) string {
	if page <= 1 {
		return a.cfg.URL
	}

	switch a.cfg.Pagination.Type {
	case PaginationQueryParam:
		sep := "?"
		if strings.Contains(a.cfg.URL, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%s%s=%d", a.cfg.URL, sep, a.cfg.Pagination.Param, page)
	case PaginationPath:
		return fmt.Sprintf(a.cfg.Pagination.Template, page)
	default:
		return a.cfg.URL
	}
}

// ParseList extracts the records on one list page
func (a *Adapter) ParseList(body []byte, pageURL string) ([]RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewExtract(a.cfg.Source, "failed to parse list page", err)
	}

	var records []RawRecord
	if a.cfg.Strategy == StrategyWindow {
		records = a.parseWindows(doc, pageURL)
	} else {
		records = a.parseItems(doc, pageURL)
	}

	for i := range records {
		a.finalize(&records[i])
	}
	return records, nil
}

// parseItems runs the selector strategy: one DOM subtree per record
func (a *Adapter) parseItems(doc *goquery.Document, pageURL string) []RawRecord {
	var records []RawRecord
	doc.Find(a.cfg.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		rec := RawRecord{Source: a.cfg.Source, PageURL: pageURL}
		text := extract.Flatten(item.Text())

		rec.RecordID = a.field(item, text, "id")
		rec.Title = a.field(item, text, "title")
		rec.Revenue = a.field(item, text, "revenue")
		rec.Profit = a.field(item, text, "profit")
		rec.Price = a.field(item, text, "price")
		rec.Location = a.field(item, text, "location")
		rec.Features = a.field(item, text, "features")
		rec.DetailLink = a.field(item, text, "link")

		if rec.RecordID == "" && rec.Title == "" && rec.DetailLink == "" {
			return
		}
		records = append(records, rec)
	})
	return records
}

// parseWindows runs the window strategy: the page text is flattened and
// sliced into anchored per-item windows, and fields are read by label.
func (a *Adapter) parseWindows(doc *goquery.Document, pageURL string) []RawRecord {
	if a.cfg.ItemAnchor == nil {
		a.log.Error().Msg("Window strategy requires an item anchor")
		return nil
	}

	text := extract.Flatten(doc.Text())
	windows := extract.Windows(text, a.cfg.ItemAnchor, a.cfg.WindowTail)
	stops := a.stopLabels()

	var records []RawRecord
	for _, window := range windows {
		rec := RawRecord{Source: a.cfg.Source, PageURL: pageURL}
		rec.RecordID = a.labeled(window, "id", stops)
		rec.Title = a.labeled(window, "title", stops)
		rec.Revenue = a.labeled(window, "revenue", stops)
		rec.Profit = a.labeled(window, "profit", stops)
		rec.Price = a.labeled(window, "price", stops)
		rec.Location = a.labeled(window, "location", stops)
		rec.Features = a.labeled(window, "features", stops)

		if rec.RecordID == "" && rec.Title == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// EnrichDetail fills empty fields from a record's detail page. Values
// already present from the list stage are kept.
func (a *Adapter) EnrichDetail(rec *RawRecord, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return errors.NewExtract(a.cfg.Source, "failed to parse detail page", err)
	}

	fields := a.cfg.DetailFields
	if fields == nil {
		fields = a.cfg.Fields
	}
	text := extract.Flatten(doc.Text())

	set := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if val := a.fieldFrom(fields, doc.Selection, text, name); val != "" {
			*dst = val
		}
	}

	set(&rec.Title, "title")
	set(&rec.Revenue, "revenue")
	set(&rec.Profit, "profit")
	set(&rec.Price, "price")
	set(&rec.Location, "location")
	set(&rec.Features, "features")

	a.finalize(rec)
	return nil
}

// field resolves one canonical field from an item subtree
func (a *Adapter) field(item *goquery.Selection, flatText, name string) string {
	return a.fieldFrom(a.cfg.Fields, item, flatText, name)
}

func (a *Adapter) fieldFrom(fields map[string]FieldSpec, item *goquery.Selection, flatText, name string) string {
	spec, ok := fields[name]
	if !ok {
		return ""
	}

	if val := extract.Chain(item, spec.Locators, spec.Patterns); val != "" {
		return val
	}

	labels := spec.Labels
	if labels == nil {
		labels = extract.DefaultLabels[name]
	}
	if len(labels) == 0 {
		return ""
	}
	return extract.LabeledValue(flatText, labels, a.stopLabels())
}

// labeled resolves one field from a text window by its labels
func (a *Adapter) labeled(window, name string, stops []string) string {
	spec := a.cfg.Fields[name]
	labels := spec.Labels
	if labels == nil {
		labels = extract.DefaultLabels[name]
	}
	if len(labels) == 0 {
		return ""
	}
	return extract.LabeledValue(window, labels, stops)
}

func (a *Adapter) stopLabels() []string {
	stops := extract.StopLabels()
	for _, spec := range a.cfg.Fields {
		stops = append(stops, spec.Labels...)
	}
	return stops
}

// finalize applies per-record post-processing: relative detail links are
// resolved against the source URL, id-only sources get a templated
// link, band-only revenue labels are translated, and the features blob
// is cleaned up.
func (a *Adapter) finalize(rec *RawRecord) {
	if rec.DetailLink == "" && rec.RecordID != "" && a.cfg.LinkTemplate != "" {
		rec.DetailLink = fmt.Sprintf(a.cfg.LinkTemplate, rec.RecordID)
	}
	rec.DetailLink = a.absoluteURL(rec.DetailLink)

	if len(a.cfg.RevenueBands) > 0 && rec.Revenue != "" {
		key := strings.TrimSpace(width.Narrow.String(rec.Revenue))
		if band, ok := a.cfg.RevenueBands[key]; ok {
			rec.Revenue = band
		}
	}

	if rec.Features != "" {
		rec.Features = extract.CleanText(rec.Features)
	}
}

// absoluteURL resolves a possibly-relative href against the source URL
func (a *Adapter) absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}

	base, err := url.Parse(a.cfg.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
