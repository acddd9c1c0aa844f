package model

import "schedcal/internal/datekey"

// Event is a single time-boxed entry on one calendar day. The core treats
// it as an immutable value: ID is its identity, Date only partitions.
type Event struct {
	ID   string      `json:"id" yaml:"id"`
	Date datekey.Key `json:"date" yaml:"date"`

	// StartTime and EndTime are HH:MM, 24-hour, zero-padded.
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`

	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	Color       string `json:"color" yaml:"color"`
}

// Interval parses the event's start and end into a validated half-open
// interval.
func (e Event) Interval() (Interval, error) {
	iv, err := ParseInterval(e.StartTime, e.EndTime)
	if err != nil {
		return Interval{}, withEvent(err, e.ID)
	}
	return iv, nil
}

// Day validates the event's date key.
func (e Event) Day() (datekey.Key, error) {
	return ParseDate(e.ID, "date", e.Date)
}

// Start parses only the start time.
func (e Event) Start() (Clock, error) {
	c, err := ParseClock(e.StartTime)
	if err != nil {
		return 0, withEvent(withField(err, "start_time"), e.ID)
	}
	return c, nil
}

// End parses only the end time.
func (e Event) End() (Clock, error) {
	c, err := ParseClock(e.EndTime)
	if err != nil {
		return 0, withEvent(withField(err, "end_time"), e.ID)
	}
	return c, nil
}

// Clone returns a copy of events so callers can sort or filter without
// touching the caller's slice. A nil input yields an empty, non-nil slice.
func Clone(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
