package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schedcal/internal/log"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	instanceKeyLayout = "20060102T1504"
)

// Occurrence is one concrete instance of a parsed event.
type Occurrence struct {
	SourceID string
	UID      string

	// InstanceKey identifies one instance of a recurring event and is
	// derived from its local start. Empty for non-recurring events.
	InstanceKey string

	Summary     string
	Description string
	Category    string
	Color       string

	AllDay bool

	Start time.Time
	End   time.Time
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the zone occurrences are converted to. If nil,
	// time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences.
type ExpandResult struct {
	Occurrences []Occurrence
	// TruncatedEvents records UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// Expand flattens parsed events into single occurrences inside the
// configured window, applying RRULE, EXDATE and RECURRENCE-ID overrides.
// Occurrences are returned grouped by UID in first-seen order.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping first-seen order so
	// the output is deterministic.
	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	all := make([]Occurrence, 0)
	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			all = append(all, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Occurrences = all
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, cfg ExpandConfig) []Occurrence {
	if !timeRangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{makeOccurrence(ev, ev.Start, ev.End, cfg.DisplayLocation, "")}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	out := make([]Occurrence, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = day
			occEnd = day.AddDate(0, 0, 1)
		} else {
			occEnd = occStart.Add(dur)
		}

		// The key stays on the original slot even when an override moves it.
		key := occStart.In(cfg.DisplayLocation).Format(instanceKeyLayout)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			out = append(out, makeOccurrence(o, o.Start, o.End, cfg.DisplayLocation, key))
			continue
		}
		out = append(out, makeOccurrence(ev, occStart, occEnd, cfg.DisplayLocation, key))
	}

	return out, hitCap
}

// findOverrideForStart finds the override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, start, end time.Time, displayLoc *time.Location, instanceKey string) Occurrence {
	return Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: instanceKey,
		Summary:     ev.Summary,
		Description: ev.Description,
		Category:    ev.Category,
		Color:       ev.Color,
		AllDay:      ev.AllDay,
		Start:       start.In(displayLoc),
		End:         end.In(displayLoc),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
