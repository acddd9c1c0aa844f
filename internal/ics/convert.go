package ics

import (
	"time"

	"schedcal/internal/datekey"
	"schedcal/internal/model"
)

// ConvertResult is the outcome of ToEvents.
type ConvertResult struct {
	Events []model.Event
	// SkippedAllDay counts all-day occurrences.
	SkippedAllDay int
	// SkippedMultiDay counts occurrences spanning more than one day or
	// having no positive duration.
	SkippedMultiDay int
	// Duplicates counts occurrences dropped because their id was already
	// taken within the same source.
	Duplicates int
}

// ToEvents converts occurrences into single-day events. Occurrences are
// expected in the display zone (see ExpandConfig). An occurrence that ends
// exactly at the following midnight keeps an end time of "24:00".
//
// Event ids are the UID for single events and UID@InstanceKey for
// instances of a recurring event. Ids are unique in the result: when an id
// is already taken by an earlier occurrence it is qualified as
// SourceID/id, and if that is taken too the occurrence is a duplicate
// VEVENT and is dropped.
func ToEvents(occs []Occurrence) ConvertResult {
	res := ConvertResult{Events: make([]model.Event, 0, len(occs))}
	seen := make(map[string]struct{}, len(occs))

	for _, occ := range occs {
		if occ.AllDay {
			res.SkippedAllDay++
			continue
		}

		start, end := occ.Start, occ.End
		if !end.After(start) {
			res.SkippedMultiDay++
			continue
		}

		startKey := datekey.FromTime(start)
		endClock := model.Clock(end.Hour()*60 + end.Minute())
		switch {
		case datekey.FromTime(end) == startKey:
		case endClock == 0 && datekey.FromTime(end.Add(-time.Minute)) == startKey:
			endClock = model.EndOfDay
		default:
			res.SkippedMultiDay++
			continue
		}

		startClock := model.Clock(start.Hour()*60 + start.Minute())
		if endClock <= startClock {
			res.SkippedMultiDay++
			continue
		}

		id := occ.UID
		if occ.InstanceKey != "" {
			id = occ.UID + "@" + occ.InstanceKey
		}
		if _, taken := seen[id]; taken {
			id = occ.SourceID + "/" + id
			if _, taken := seen[id]; taken {
				res.Duplicates++
				continue
			}
		}
		seen[id] = struct{}{}

		res.Events = append(res.Events, model.Event{
			ID:          id,
			Date:        startKey,
			StartTime:   startClock.String(),
			EndTime:     endClock.String(),
			Title:       occ.Summary,
			Description: occ.Description,
			Category:    occ.Category,
			Color:       occ.Color,
		})
	}

	return res
}
