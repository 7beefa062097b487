package desk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTradeDate(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2026-01-06 15:55:32 ET", true, time.Date(2026, 1, 6, 15, 55, 32, 0, time.UTC)},
		{"2026-01-06 15:55:32 EDT", true, time.Date(2026, 1, 6, 15, 55, 32, 0, time.UTC)},
		{"2026-01-06T15:55:32Z", true, time.Date(2026, 1, 6, 15, 55, 32, 0, time.UTC)},
		{"2026-01-06 09:31", true, time.Date(2026, 1, 6, 9, 31, 0, 0, time.UTC)},
		{"2026-01-06", true, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTradeDate(tt.in, time.UTC)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestFormatTrade(t *testing.T) {
	assert.Equal(t, "Jan 6", FormatTradeDate("2026-01-06 15:55:32 ET", time.UTC))
	assert.Equal(t, "3:55 PM", FormatTradeTime("2026-01-06 15:55:32 ET", time.UTC))
	assert.Equal(t, "Jan 6, 3:55 PM", FormatTradeDateTime("2026-01-06T15:55:32Z", time.UTC))
	assert.Equal(t, "--", FormatTradeTime("n/a", time.UTC))
}
