package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SourceConfig describes one listing source: where its pages are, how
// to find the items on them, and which listings are worth keeping.
// Everything here is plain data; the crawler factory compiles it.
type SourceConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`

	// MaxPages caps the list pages crawled per run
	MaxPages   int              `mapstructure:"max_pages"`
	Pagination PaginationConfig `mapstructure:"pagination"`

	// UseBrowser switches to the headless-browser fetcher
	UseBrowser bool `mapstructure:"use_browser"`
	// WaitSelector is waited for before a rendered page is captured
	WaitSelector string `mapstructure:"wait_selector"`

	// Strategy is "selector" (default) or "window"
	Strategy     string `mapstructure:"strategy"`
	ItemSelector string `mapstructure:"item_selector"`
	ItemAnchor   string `mapstructure:"item_anchor"`
	WindowTail   int    `mapstructure:"window_tail"`

	Fields       map[string]FieldConfig `mapstructure:"fields"`
	DetailEnrich bool                   `mapstructure:"detail_enrich"`
	DetailFields map[string]FieldConfig `mapstructure:"detail_fields"`

	// LinkTemplate builds detail links from record ids (one %s)
	LinkTemplate string `mapstructure:"link_template"`

	// RevenueBands translates band-only revenue labels
	RevenueBands map[string]string `mapstructure:"revenue_bands"`

	Thresholds ThresholdConfig `mapstructure:"thresholds"`
}

// PaginationConfig names the page-URL scheme
type PaginationConfig struct {
	Type string `mapstructure:"type"` // none, query_param, path
	// Param is the query parameter for query_param pagination
	Param string `mapstructure:"param"`
	// Template is a full URL with one %d for path pagination
	Template string `mapstructure:"template"`
}

// FieldConfig is one field's extraction spec
type FieldConfig struct {
	Selectors []LocatorConfig `mapstructure:"selectors"`
	Patterns  []string        `mapstructure:"patterns"`
	Labels    []string        `mapstructure:"labels"`
}

// LocatorConfig is one structural locator
type LocatorConfig struct {
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`
}

// ThresholdConfig holds per-source minimums in million yen; zero
// disables a check
type ThresholdConfig struct {
	MinRevenueMillion int64 `mapstructure:"min_revenue_million"`
	MinProfitMillion  int64 `mapstructure:"min_profit_million"`
}

// LoadSources reads the source table from a YAML file
func LoadSources(path string) ([]SourceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var sources []SourceConfig
	if err := v.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources file %s: %w", path, err)
	}

	for i, s := range sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source %d has no name", i)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("source %q has no url", s.Name)
		}
		if s.Strategy == "window" && s.ItemAnchor == "" {
			return nil, fmt.Errorf("source %q uses the window strategy but has no item_anchor", s.Name)
		}
	}
	return sources, nil
}

// EnabledSources filters the table down to the sources to crawl
func EnabledSources(sources []SourceConfig) []SourceConfig {
	enabled := make([]SourceConfig, 0, len(sources))
	for _, s := range sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
