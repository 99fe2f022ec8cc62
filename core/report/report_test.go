package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodAt(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	tests := []struct {
		name                string
		now                 time.Time
		wantWeek, wantMonth string
	}{
		{"mid week", time.Date(2024, 5, 15, 13, 0, 0, 0, loc), "2024-05-13", "2024-05-01"},
		{"monday", time.Date(2024, 5, 13, 0, 0, 0, 0, loc), "2024-05-13", "2024-05-01"},
		{"sunday", time.Date(2024, 5, 19, 23, 59, 0, 0, loc), "2024-05-13", "2024-05-01"},
		{"week across months", time.Date(2024, 6, 1, 8, 0, 0, 0, loc), "2024-05-27", "2024-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PeriodAt(tt.now)
			assert.Equal(t, tt.wantWeek, p.WeekStart.Format("2006-01-02"))
			assert.Equal(t, 7*24*time.Hour, p.WeekEnd.Sub(p.WeekStart))
			assert.Equal(t, tt.wantMonth, p.MonthStart.Format("2006-01-02"))
			assert.Equal(t, 1, p.MonthEnd.Day())
			assert.Equal(t, loc, p.WeekStart.Location())
		})
	}
}
