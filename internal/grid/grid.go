// Package grid computes month-grid geometry for a 7-column calendar view.
//
// Layout contract: a month is drawn as LeadingBlanks empty cells followed by
// DaysInMonth day cells. With a Sunday week start LeadingBlanks equals
// FirstWeekdayOffset.
package grid

import (
	"strings"
	"time"

	"schedcal/internal/datekey"
)

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear applies the proleptic Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days of the given month. Month indices
// outside 0..11 roll over into neighbouring years.
func DaysInMonth(year, monthIndex0 int) int {
	year, monthIndex0 = Shift(year, monthIndex0, 0)
	if monthIndex0 == 1 && IsLeapYear(year) {
		return 29
	}
	return monthDays[monthIndex0]
}

// FirstWeekdayOffset returns the weekday of day 1, 0 = Sunday .. 6 = Saturday.
func FirstWeekdayOffset(year, monthIndex0 int) int {
	year, monthIndex0 = Shift(year, monthIndex0, 0)
	return int(time.Date(year, time.Month(monthIndex0+1), 1, 0, 0, 0, 0, time.UTC).Weekday())
}

// LeadingBlanks returns the number of empty cells before day 1 when weeks
// start on weekStart.
func LeadingBlanks(year, monthIndex0 int, weekStart time.Weekday) int {
	return (FirstWeekdayOffset(year, monthIndex0) - int(weekStart) + 7) % 7
}

// Shift moves delta months from (year, monthIndex0) and normalizes the
// result so that the month index is in 0..11.
func Shift(year, monthIndex0, delta int) (int, int) {
	total := year*12 + monthIndex0 + delta
	y := total / 12
	m := total % 12
	if m < 0 {
		m += 12
		y--
	}
	return y, m
}

// ParseWeekStart maps the config values "sunday" and "monday" to a weekday.
// Anything else is treated as monday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// Cell is one slot of the grid. Blank cells have Day == 0 and an empty Key.
type Cell struct {
	Day     int          `json:"day,omitempty"`
	Key     datekey.Key  `json:"date,omitempty"`
	Weekday time.Weekday `json:"weekday"`
	Weekend bool         `json:"weekend"`
}

// Blank reports whether c is a leading filler cell.
func (c Cell) Blank() bool {
	return c.Day == 0
}

// Month is the computed layout of one month.
type Month struct {
	Year        int          `json:"year"`
	MonthIndex0 int          `json:"month_index0"`
	Days        int          `json:"days"`
	FirstOffset int          `json:"first_weekday_offset"`
	WeekStart   time.Weekday `json:"week_start"`
	Cells       []Cell       `json:"cells"`
}

// Build lays out the month for the given week start.
func Build(year, monthIndex0 int, weekStart time.Weekday) Month {
	year, monthIndex0 = Shift(year, monthIndex0, 0)

	days := DaysInMonth(year, monthIndex0)
	first := FirstWeekdayOffset(year, monthIndex0)
	blanks := LeadingBlanks(year, monthIndex0, weekStart)

	m := Month{
		Year:        year,
		MonthIndex0: monthIndex0,
		Days:        days,
		FirstOffset: first,
		WeekStart:   weekStart,
		Cells:       make([]Cell, 0, blanks+days),
	}

	for i := 0; i < blanks; i++ {
		wd := time.Weekday((int(weekStart) + i) % 7)
		m.Cells = append(m.Cells, Cell{Weekday: wd, Weekend: isWeekend(wd)})
	}
	for d := 1; d <= days; d++ {
		wd := time.Weekday((first + d - 1) % 7)
		m.Cells = append(m.Cells, Cell{
			Day:     d,
			Key:     datekey.Make(year, monthIndex0, d),
			Weekday: wd,
			Weekend: isWeekend(wd),
		})
	}

	return m
}

// Weeks returns the number of 7-cell rows needed, counting a partial row.
func (m Month) Weeks() int {
	return (len(m.Cells) + 6) / 7
}

// IsToday reports whether key names today's date.
func IsToday(key, today datekey.Key) bool {
	return key != "" && key == today
}

func isWeekend(wd time.Weekday) bool {
	return wd == time.Saturday || wd == time.Sunday
}
