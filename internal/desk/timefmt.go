package desk

import (
	"strings"
	"time"
)

var tradeZoneSuffixes = []string{" ET", " PT", " EST", " EDT"}

var tradeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTradeDate parses the timestamps the desk emits, such as
// "2026-01-06 15:55:32 ET" or "2026-01-06T15:55:32Z". Timestamps without an
// offset are read in loc (time.Local when nil). The zone abbreviation is
// dropped, not interpreted.
func ParseTradeDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, suffix := range tradeZoneSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	// "2006-01-02 15:04..." becomes ISO form.
	if len(s) >= 16 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range tradeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTradeDate renders s as "Jan 6", or "--" when it does not parse.
func FormatTradeDate(s string, loc *time.Location) string {
	return formatTrade(s, loc, "Jan 2")
}

// FormatTradeTime renders s as "3:55 PM".
func FormatTradeTime(s string, loc *time.Location) string {
	return formatTrade(s, loc, "3:04 PM")
}

// FormatTradeDateTime renders s as "Jan 6, 3:55 PM".
func FormatTradeDateTime(s string, loc *time.Location) string {
	return formatTrade(s, loc, "Jan 2, 3:04 PM")
}

func formatTrade(s string, loc *time.Location, layout string) string {
	t, ok := ParseTradeDate(s, loc)
	if !ok {
		return "--"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(layout)
}
