package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 5, 6, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		aStart     time.Time
		aEnd       time.Time
		bStart     time.Time
		bEnd       time.Time
		wantResult bool
	}{
		{name: "partial overlap", aStart: at(10, 0), aEnd: at(11, 0), bStart: at(10, 30), bEnd: at(11, 30), wantResult: true},
		{name: "contained", aStart: at(9, 0), aEnd: at(12, 0), bStart: at(10, 0), bEnd: at(11, 0), wantResult: true},
		{name: "identical", aStart: at(10, 0), aEnd: at(11, 0), bStart: at(10, 0), bEnd: at(11, 0), wantResult: true},
		{name: "back to back", aStart: at(10, 0), aEnd: at(11, 0), bStart: at(11, 0), bEnd: at(12, 0)},
		{name: "back to back reversed", aStart: at(11, 0), aEnd: at(12, 0), bStart: at(10, 0), bEnd: at(11, 0)},
		{name: "disjoint", aStart: at(8, 0), aEnd: at(9, 0), bStart: at(10, 0), bEnd: at(11, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantResult, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.wantResult, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		marks, total float64
		want         string
	}{
		{80, 100, "A"},
		{35, 50, "B"},
		{60, 100, "C"},
		{50, 100, "D"},
		{49.5, 100, "E"},
		{10, 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.marks, tt.total), "Grade(%v, %v)", tt.marks, tt.total)
	}
}
