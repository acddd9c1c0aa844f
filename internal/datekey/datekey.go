// Package datekey implements the canonical YYYY-MM-DD identity of a calendar
// day. Keys compare as plain strings and that order is chronological for
// years 0000 through 9999, so callers may sort by key without parsing.
package datekey

import (
	"fmt"
	"time"

	"schedcal/internal/apperr"
)

const layout = "2006-01-02"

// ErrInvalid is returned by Parse for strings that are not a real
// calendar day in YYYY-MM-DD form. It wraps apperr.ErrValidation, so
// errors.Is(err, model.ErrValidation) holds for every key error.
var ErrInvalid = fmt.Errorf("%w: invalid date key", apperr.ErrValidation)

// Key is a day identity of the form YYYY-MM-DD.
type Key string

// Make formats a key from a year, a zero-based month index and a day of
// month. It performs no range checks and no normalization; callers pass
// values already bounded by the month grid.
func Make(year, monthIndex0, day int) Key {
	return Key(fmt.Sprintf("%04d-%02d-%02d", year, monthIndex0+1, day))
}

// Parse validates s and returns it as a Key. Only the exact zero-padded
// form naming an existing Gregorian day is accepted.
func Parse(s string) (Key, error) {
	if len(s) != len(layout) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	// Keys must be canonical so that string equality is day equality.
	if t.Format(layout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Key(s), nil
}

// Valid reports whether s would be accepted by Parse.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// FromTime returns the key of the day t falls on in t's location.
func FromTime(t time.Time) Key {
	return Make(t.Year(), int(t.Month())-1, t.Day())
}

// Parts splits the key back into year, zero-based month index and day.
func (k Key) Parts() (year, monthIndex0, day int, err error) {
	t, err := time.Parse(layout, string(k))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalid, string(k))
	}
	return t.Year(), int(t.Month()) - 1, t.Day(), nil
}

// Time returns midnight of the key's day in loc. A nil loc means UTC.
func (k Key) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(layout, string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, string(k))
	}
	return t, nil
}

// AddDays returns the key n days after k (before, for negative n).
func (k Key) AddDays(n int) (Key, error) {
	t, err := k.Time(time.UTC)
	if err != nil {
		return "", err
	}
	return FromTime(t.AddDate(0, 0, n)), nil
}

func (k Key) String() string {
	return string(k)
}

// Before reports whether k is strictly earlier than other.
func (k Key) Before(other Key) bool {
	return k < other
}

// Compare returns -1, 0 or +1 by byte-wise string order.
func Compare(a, b Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
