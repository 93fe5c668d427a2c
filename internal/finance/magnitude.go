package finance

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Magnitude represents a financial amount in yen, parsed from free-form
// Japanese listing text. Min == Max for single values. Unbounded marks an
// explicitly open-ended upper bound ("5億円以上", trailing "〜"). Absent
// marks text that carries no usable amount (非公開, 応相談, masked values).
type Magnitude struct {
	Min       int64
	Max       int64
	Unbounded bool
	Absent    bool
	Raw       string
}

// absentMarkers are phrases sources use instead of a disclosed amount.
var absentMarkers = []string{
	"非公開",
	"応相談",
	"要相談",
	"非開示",
	"赤字",
	"希望なし",
	"黒字なし",
	"損益なし",
}

// unitMultipliers maps kanji unit suffixes to yen. Compound units must be
// listed before their suffix parts (千万 before 千 and 万).
var unitAlternatives = "千万|百万|億|万|千"

var unitMultipliers = map[string]int64{
	"億":  100_000_000,
	"千万": 10_000_000,
	"百万": 1_000_000,
	"万":  10_000,
	"千":  1_000,
}

var segmentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(` + unitAlternatives + `)?`)

// rangeSeparators are tried in order, matched after width folding, so
// the prolonged sound mark appears in its halfwidth form "ｰ". The ASCII
// hyphen is handled separately because it doubles as a minus sign.
var rangeSeparators = []string{"〜", "~", "ー", "ｰ", "–", "—", "?"}

// noiseTokens are stripped before parsing; they never change the amount.
var noiseTokens = []string{"約", "およそ", "程度", "/年間", "/年", "円", " "}

// Parse converts free-form financial text into a Magnitude. It never
// errors; unusable text yields an Absent magnitude with Raw preserved.
func Parse(text string) Magnitude {
	raw := strings.TrimSpace(text)
	m := Magnitude{Raw: raw}

	if raw == "" || strings.Contains(raw, "**") {
		m.Absent = true
		return m
	}

	s := normalize(raw)

	upper := strings.ToUpper(s)
	if strings.Contains(upper, "N/A") {
		m.Absent = true
		return m
	}
	for _, marker := range absentMarkers {
		if strings.Contains(s, marker) {
			m.Absent = true
			return m
		}
	}

	// Explicit open-ended upper bound.
	for _, suffix := range []string{"以上", "超"} {
		if idx := strings.Index(s, suffix); idx >= 0 {
			if v, ok := parseSide(s[:idx], 0); ok {
				m.Min = v
				m.Max = v
				m.Unbounded = true
				return m
			}
		}
	}

	// Explicit upper bound only.
	for _, suffix := range []string{"未満", "以下"} {
		if idx := strings.Index(s, suffix); idx >= 0 {
			if v, ok := parseSide(s[:idx], 0); ok {
				m.Min = 0
				m.Max = v
				return m
			}
		}
	}

	if left, right, found := splitRange(s); found {
		return parseRange(left, right, raw)
	}

	if v, ok := parseSide(s, 0); ok {
		m.Min = v
		m.Max = v
		return m
	}

	m.Absent = true
	return m
}

// Qualifies reports whether the magnitude meets a minimum threshold in
// yen. The comparison uses the most optimistic bound: a range qualifies
// when its maximum does. A negative maximum never meets a positive
// threshold, and absent amounts never qualify here (the filter stage
// decides what to do with them).
func (m Magnitude) Qualifies(threshold int64) bool {
	if m.Absent {
		return false
	}
	if m.Unbounded {
		return true
	}
	if threshold > 0 && m.Max < 0 {
		return false
	}
	return m.Max >= threshold
}

// normalize folds full-width characters, unifies minus markers, and
// strips separators and noise tokens so the value grammar is uniform.
func normalize(text string) string {
	s := width.Narrow.String(text)

	for _, minus := range []string{"▲", "△", "−"} {
		s = strings.ReplaceAll(s, minus, "-")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "？", "?")
	for _, tok := range noiseTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return strings.TrimSpace(s)
}

// splitRange finds the first range separator and returns both sides.
// The ASCII hyphen counts as a separator only when it follows a digit or
// a unit character; a leading hyphen is a minus sign.
func splitRange(s string) (left, right string, found bool) {
	for _, sep := range rangeSeparators {
		if idx := strings.Index(s, sep); idx >= 0 {
			return s[:idx], s[idx+len(sep):], true
		}
	}

	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if runes[i] != '-' {
			continue
		}
		prev := runes[i-1]
		if (prev >= '0' && prev <= '9') || strings.ContainsRune("億千百万", prev) {
			return string(runes[:i]), string(runes[i+1:]), true
		}
	}
	return "", "", false
}

// parseRange combines two side values into a range magnitude. A unitless
// lower bound inherits the upper bound's unit ("5～10億円" reads as 5億
// to 10億). An empty right side is an open-ended upper bound; an empty
// left side means "up to".
func parseRange(left, right, raw string) Magnitude {
	m := Magnitude{Raw: raw}

	if strings.TrimSpace(right) == "" {
		if v, ok := parseSide(left, 0); ok {
			m.Min = v
			m.Max = v
			m.Unbounded = true
			return m
		}
		m.Absent = true
		return m
	}

	rightVal, rightUnit, rightOK := parseSideWithUnit(right)
	if !rightOK {
		m.Absent = true
		return m
	}

	if strings.TrimSpace(left) == "" {
		m.Min = 0
		m.Max = rightVal
		return m
	}

	leftVal, ok := parseSide(left, rightUnit)
	if !ok {
		m.Min = 0
		m.Max = rightVal
		return m
	}

	if leftVal > rightVal {
		leftVal, rightVal = rightVal, leftVal
	}
	m.Min = leftVal
	m.Max = rightVal
	return m
}

// parseSide parses one side of a value or range into yen. inheritUnit,
// when non-zero, scales a unitless number (the lower bound of "5～10億円").
func parseSide(s string, inheritUnit int64) (int64, bool) {
	v, unit, ok := parseSideWithUnit(s)
	if !ok {
		return 0, false
	}
	if unit == 0 && inheritUnit > 0 {
		v *= inheritUnit
	}
	return v, true
}

// parseSideWithUnit sums numeric segments ("1億5000万" is two segments)
// and reports the primary unit multiplier, zero when no unit appeared.
func parseSideWithUnit(s string) (int64, int64, bool) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	matches := segmentRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}

	var total float64
	var primaryUnit int64
	for _, match := range matches {
		num, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, 0, false
		}
		if match[2] != "" {
			mul := unitMultipliers[match[2]]
			num *= float64(mul)
			if primaryUnit == 0 {
				primaryUnit = mul
			}
		}
		total += num
	}

	v := int64(total)
	if negative {
		v = -v
	}
	return v, primaryUnit, true
}
