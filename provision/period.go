package provision

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The reporting month a run provisions
// =============================================================================

// Period identifies one monthly reporting period.
// All carried state (category rates, opening balances) is keyed by Period.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a "YYYY-MM" key.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

// String returns the "YYYY-MM" key.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Previous returns the period before p.
func (p Period) Previous() Period {
	return PeriodOf(p.start().AddDate(0, -1, 0))
}

// Next returns the period after p.
func (p Period) Next() Period {
	return PeriodOf(p.start().AddDate(0, 1, 0))
}

// End returns the last calendar day of p.
func (p Period) End() time.Time {
	return p.start().AddDate(0, 1, -1)
}

// IsQuarterEnd reports whether p closes a calendar quarter.
func (p Period) IsQuarterEnd() bool {
	return p.Month%3 == 0
}

func (p Period) start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// REPORT DATE - Calendar convention of the source feeds
// =============================================================================

// ReportDate derives the naming fields the upstream feeds are keyed by.
type ReportDate struct {
	Date      time.Time
	Week      int    // 1-4, from the day of month
	Month     string // "01".."12"
	Year      string // 2-digit year
	Day       string // "01".."31"
	PrevMonth time.Time
	YearEnd   time.Time // last day of the previous year
}

// NewReportDate computes the report fields for d.
// Days 1-8 are week 1, 9-15 week 2, 16-22 week 3, the rest week 4.
func NewReportDate(d time.Time) ReportDate {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	var wk int
	switch day := d.Day(); {
	case day <= 8:
		wk = 1
	case day <= 15:
		wk = 2
	case day <= 22:
		wk = 3
	default:
		wk = 4
	}
	return ReportDate{
		Date:      d,
		Week:      wk,
		Month:     fmt.Sprintf("%02d", int(d.Month())),
		Year:      fmt.Sprintf("%02d", d.Year()%100),
		Day:       fmt.Sprintf("%02d", d.Day()),
		PrevMonth: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1),
		YearEnd:   time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1),
	}
}

// Period returns the reporting period of the date.
func (r ReportDate) Period() Period {
	return PeriodOf(r.Date)
}

// FeedSuffix is the MMWYY token the weekly HP snapshot is named with.
func (r ReportDate) FeedSuffix() string {
	return fmt.Sprintf("%s%d%s", r.Month, r.Week, r.Year)
}

// MonthSuffix is the MMYY token monthly files are named with.
func (r ReportDate) MonthSuffix() string {
	return r.Month + r.Year
}

// Display renders DD/MM/YY for report headers.
func (r ReportDate) Display() string {
	return fmt.Sprintf("%s/%s/%s", r.Day, r.Month, r.Year)
}
