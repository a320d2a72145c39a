package domain

import (
	"fmt"
	"time"

	dErrors "examdesk/pkg/domain-errors"
)

// Date is a civil calendar date. Exam timetables are tenant-local day grids;
// keeping the date free of zone and clock information makes same-date
// comparison exact.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates a time to its civil date in the time's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, dErrors.New(dErrors.CodeInvalidInput, "invalid date, want YYYY-MM-DD")
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of the date, for storage as a SQL date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// ClockMinutes is a time of day expressed as minutes since midnight.
// Integer minutes make the half-open overlap comparison exact and avoid any
// dependence on wall-clock zones.
type ClockMinutes int

// ParseClock accepts HH:MM (24h).
func ParseClock(s string) (ClockMinutes, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid time, want HH:MM")
	}
	return ClockMinutes(t.Hour()*60 + t.Minute()), nil
}

func (c ClockMinutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Overlaps reports whether [c, cEnd) and [o, oEnd) intersect. Both intervals
// are half-open, so an exam ending at 11:00 never clashes with one starting
// at 11:00.
func Overlaps(s1, e1, s2, e2 ClockMinutes) bool {
	return s1 < e2 && s2 < e1
}
