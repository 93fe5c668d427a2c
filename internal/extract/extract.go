package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Locator identifies one place a field value may live inside an item's
// DOM subtree. An empty Attr means the element's text content.
type Locator struct {
	Selector string
	Attr     string
}

// maxPatternValue caps regex-extracted values; longer captures are
// almost always a selector matching the whole page.
const maxPatternValue = 120

// whitespaceRe collapses runs of whitespace (including newlines left by
// goquery's Text) into single spaces.
var whitespaceRe = regexp.MustCompile(`\s+`)

// Chain resolves a field by trying structural locators in order and
// falling back to regex captures over the flattened item text. It never
// errors; a miss is an empty string.
func Chain(sel *goquery.Selection, locators []Locator, patterns []*regexp.Regexp) string {
	for _, loc := range locators {
		found := sel.Find(loc.Selector).First()
		if found.Length() == 0 {
			continue
		}

		var val string
		if loc.Attr != "" {
			val, _ = found.Attr(loc.Attr)
		} else {
			val = found.Text()
		}
		val = Flatten(val)
		if val != "" {
			return val
		}
	}

	if len(patterns) == 0 {
		return ""
	}

	text := Flatten(sel.Text())
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		val := strings.TrimSpace(match[1])
		if val != "" && len(val) <= maxPatternValue {
			return val
		}
	}
	return ""
}

// Flatten collapses all whitespace runs to single spaces and trims the
// result, so regex patterns see one continuous line.
func Flatten(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// Windows slices an unstructured text blob into per-item windows, each
// running from one anchor match to the next. The final window is capped
// at maxTail bytes past its anchor since there is no following anchor to
// bound it.
func Windows(text string, anchor *regexp.Regexp, maxTail int) []string {
	indices := anchor.FindAllStringIndex(text, -1)
	if len(indices) == 0 {
		return nil
	}

	windows := make([]string, 0, len(indices))
	for i, idx := range indices {
		start := idx[0]
		var end int
		if i+1 < len(indices) {
			end = indices[i+1][0]
		} else {
			end = start + maxTail
			if end > len(text) {
				end = len(text)
			}
			for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		windows = append(windows, text[start:end])
	}
	return windows
}

// LabeledValue extracts the value following a "label: value" marker in
// flattened text. The value is truncated at the first occurrence of any
// stop label, so adjacent fields do not bleed into each other. Labels
// are tried in order; the first hit wins.
func LabeledValue(text string, labels, stopLabels []string) string {
	for _, label := range labels {
		idx := strings.Index(text, label)
		if idx < 0 {
			continue
		}

		rest := text[idx+len(label):]
		rest = strings.TrimLeft(rest, ":： 　")

		cut := len(rest)
		for _, stop := range stopLabels {
			if stop == label {
				continue
			}
			if stopIdx := strings.Index(rest, stop); stopIdx >= 0 && stopIdx < cut {
				cut = stopIdx
			}
		}

		val := strings.TrimSpace(rest[:cut])
		if val != "" {
			return val
		}
	}
	return ""
}

// DefaultLabels maps canonical record fields to the Japanese labels
// sources attach to them. Used by the label-based fallback when a
// source has no usable structural locators.
var DefaultLabels = map[string][]string{
	"id":       {"案件No", "案件ID", "案件番号"},
	"revenue":  {"売上高", "概算売上", "年商"},
	"profit":   {"営業利益", "経常利益"},
	"price":    {"希望金額", "譲渡希望価格", "希望譲渡価格", "売却希望額"},
	"location": {"所在地", "エリア", "地域"},
	"features": {"特色", "事業内容", "事業概要"},
}

// StopLabels returns every known label; LabeledValue uses them to bound
// a value at the start of the next field.
func StopLabels() []string {
	var stops []string
	for _, labels := range DefaultLabels {
		stops = append(stops, labels...)
	}
	return stops
}

var bulletRe = regexp.MustCompile(`[●○■□◆◇▶►★☆]`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// CleanText normalizes a features/description blob: bullet markers are
// unified, trailing whitespace per line is dropped, and runs of blank
// lines collapse to one.
func CleanText(text string) string {
	s := bulletRe.ReplaceAllString(text, "・")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t　")
	}
	s = strings.Join(lines, "\n")

	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// JoinSections assembles labeled text sections into one display blob,
// skipping empties.
func JoinSections(sections map[string]string, order []string) string {
	var parts []string
	for _, label := range order {
		text := strings.TrimSpace(sections[label])
		if text == "" {
			continue
		}
		parts = append(parts, "【"+label+"】"+text)
	}
	return strings.Join(parts, "\n")
}
