package finance

import (
	"strconv"
	"strings"
)

// FormatCanonical re-expresses financial text in the canonical display
// unit (百万円) with thousands separators and "～" as the range
// separator. Text that carries no amount passes through unchanged, or
// becomes "-" when empty. The function is idempotent: formatting an
// already-canonical string returns it as-is.
func FormatCanonical(text string) string {
	return Parse(text).Canonical()
}

// Canonical renders the magnitude in 百万円.
func (m Magnitude) Canonical() string {
	if m.Absent {
		raw := strings.TrimSpace(m.Raw)
		if raw == "" {
			return "-"
		}
		return raw
	}

	if m.Unbounded {
		return millions(m.Min) + "百万円以上"
	}
	if m.Min == m.Max {
		return millions(m.Max) + "百万円"
	}
	if m.Min == 0 {
		return "～" + millions(m.Max) + "百万円"
	}
	return millions(m.Min) + "～" + millions(m.Max) + "百万円"
}

// millions renders a yen amount in units of one million, grouped with
// commas. Sub-million remainders keep one decimal place.
func millions(v int64) string {
	whole := v / 1_000_000
	if v%1_000_000 == 0 {
		return groupDigits(whole)
	}
	return strconv.FormatFloat(float64(v)/1_000_000, 'f', 1, 64)
}

// groupDigits formats an integer with comma thousands separators.
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
