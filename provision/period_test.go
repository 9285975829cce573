package provision_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/provision"
)

func TestPeriod_Navigation(t *testing.T) {
	p, err := provision.ParsePeriod("2025-01")
	require.NoError(t, err)

	assert.Equal(t, "2024-12", p.Previous().String())
	assert.Equal(t, "2025-02", p.Next().String())
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), provision.Period{Year: 2024, Month: 2}.End())

	_, err = provision.ParsePeriod("2025-13")
	assert.ErrorIs(t, err, provision.ErrInvalidPeriod)
	assert.True(t, provision.IsClientError(err))
}

func TestPeriod_QuarterEnd(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		p := provision.Period{Year: 2025, Month: m}
		want := m == time.March || m == time.June || m == time.September || m == time.December
		assert.Equal(t, want, p.IsQuarterEnd(), p.String())
	}
}

func TestReportDate(t *testing.T) {
	tests := []struct {
		day  int
		week int
	}{
		{1, 1}, {8, 1}, {9, 2}, {15, 2}, {16, 3}, {22, 3}, {23, 4}, {31, 4},
	}
	for _, tt := range tests {
		rd := provision.NewReportDate(time.Date(2025, time.March, tt.day, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, tt.week, rd.Week, "day %d", tt.day)
	}

	rd := provision.NewReportDate(time.Date(2025, time.January, 31, 15, 4, 0, 0, time.UTC))
	assert.Equal(t, "01", rd.Month)
	assert.Equal(t, "25", rd.Year)
	assert.Equal(t, "31", rd.Day)
	assert.Equal(t, "01425", rd.FeedSuffix())
	assert.Equal(t, "0125", rd.MonthSuffix())
	assert.Equal(t, "31/01/25", rd.Display())
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), rd.PrevMonth)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), rd.YearEnd)
	assert.Equal(t, "2025-01", rd.Period().String())
}
