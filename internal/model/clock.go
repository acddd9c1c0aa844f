package model

import "fmt"

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// EndOfDay is the largest accepted value, written "24:00".
const EndOfDay Clock = 24 * 60

// ParseClock parses a strict HH:MM string. Hours are 00..23 and minutes
// 00..59; "24:00" is also accepted so an event may run to midnight.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, &ValidationError{Value: s, Reason: "time must be HH:MM"}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, &ValidationError{Value: s, Reason: "time out of range"}
	}
	return Clock(h*60 + m), nil
}

// ValidClock reports whether s parses as a Clock.
func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Interval is the half-open range [Start, End) of an event.
type Interval struct {
	Start Clock
	End   Clock
}

// ParseInterval parses both ends and requires End after Start.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, withField(err, "start_time")
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, withField(err, "end_time")
	}
	if e <= s {
		return Interval{}, &ValidationError{
			Field:  "end_time",
			Value:  end,
			Reason: "end time must be after start time " + start,
		}
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps reports whether the two half-open intervals share an instant.
// Touching intervals (one ends exactly when the other starts) do not.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

// Minutes is the interval length.
func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}
