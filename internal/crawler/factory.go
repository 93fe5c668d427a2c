package crawler

import (
	"fmt"
	"regexp"

	"kzfm923/madealworker/config"
	"kzfm923/madealworker/internal/extract"
)

// BuildAdapter compiles a source's plain-data config into an Adapter.
// Regex compilation happens here, once per source, so a bad pattern
// fails the run at startup instead of mid-crawl.
func BuildAdapter(src config.SourceConfig) (*Adapter, error) {
	fields, err := buildFields(src.Name, src.Fields)
	if err != nil {
		return nil, err
	}
	detailFields, err := buildFields(src.Name, src.DetailFields)
	if err != nil {
		return nil, err
	}

	var anchor *regexp.Regexp
	if src.ItemAnchor != "" {
		anchor, err = regexp.Compile(src.ItemAnchor)
		if err != nil {
			return nil, fmt.Errorf("source %q: bad item_anchor: %w", src.Name, err)
		}
	}

	return NewAdapter(AdapterConfig{
		Source:   src.Name,
		URL:      src.URL,
		MaxPages: src.MaxPages,
		Pagination: Pagination{
			Type:     PaginationType(src.Pagination.Type),
			Param:    src.Pagination.Param,
			Template: src.Pagination.Template,
		},
		Strategy:     Strategy(src.Strategy),
		ItemSelector: src.ItemSelector,
		ItemAnchor:   anchor,
		WindowTail:   src.WindowTail,
		Fields:       fields,
		LinkTemplate: src.LinkTemplate,
		RevenueBands: src.RevenueBands,
		DetailEnrich: src.DetailEnrich,
		DetailFields: detailFields,
	}), nil
}

// BuildFetcher selects the fetcher implementation for a source
func BuildFetcher(src config.SourceConfig) Fetcher {
	if src.UseBrowser {
		return NewRenderedFetcher(src.WaitSelector, 0)
	}
	return StaticFetcher{}
}

func buildFields(source string, fields map[string]config.FieldConfig) (map[string]FieldSpec, error) {
	if fields == nil {
		return nil, nil
	}

	out := make(map[string]FieldSpec, len(fields))
	for name, fc := range fields {
		spec := FieldSpec{Labels: fc.Labels}

		for _, loc := range fc.Selectors {
			spec.Locators = append(spec.Locators, extract.Locator{
				Selector: loc.Selector,
				Attr:     loc.Attr,
			})
		}

		for _, pattern := range fc.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("source %q: bad pattern for field %q: %w", source, name, err)
			}
			spec.Patterns = append(spec.Patterns, re)
		}

		out[name] = spec
	}
	return out, nil
}
