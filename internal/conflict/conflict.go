// Package conflict decides whether a candidate event overlaps any existing
// event on the same day. It is the precise check used before committing a
// create or edit; see package index for the cheaper adjacent-only badge.
package conflict

import (
	"schedcal/internal/model"
)

// FindConflict returns the first event in existing, in the given order,
// that shares candidate's date and overlaps its time interval. Events whose
// ID equals excludeID are skipped so that an edited event does not collide
// with its previous version; an empty excludeID skips nothing.
//
// A date key that is not YYYY-MM-DD, on the candidate or on any existing
// event, is a *model.ValidationError. A candidate missing its start or end
// time is not yet comparable and yields (nil, nil). Malformed or inverted
// times on the candidate or on any same-day event are reported as a
// *model.ValidationError before any comparison is made.
func FindConflict(candidate model.Event, existing []model.Event, excludeID string) (*model.Event, error) {
	all, err := scan(candidate, existing, excludeID, true)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}

// FindAll returns every same-day event overlapping candidate, in input
// order. It applies the same filtering and validation as FindConflict.
func FindAll(candidate model.Event, existing []model.Event, excludeID string) ([]model.Event, error) {
	return scan(candidate, existing, excludeID, false)
}

type parsed struct {
	ev model.Event
	iv model.Interval
}

func scan(candidate model.Event, existing []model.Event, excludeID string, firstOnly bool) ([]model.Event, error) {
	if _, err := candidate.Day(); err != nil {
		return nil, err
	}
	for _, ev := range existing {
		if _, err := ev.Day(); err != nil {
			return nil, err
		}
	}

	if candidate.StartTime == "" || candidate.EndTime == "" {
		return nil, nil
	}

	civ, err := candidate.Interval()
	if err != nil {
		return nil, err
	}

	sameDay := make([]parsed, 0, len(existing))
	for _, ev := range existing {
		if ev.Date != candidate.Date {
			continue
		}
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		iv, err := ev.Interval()
		if err != nil {
			return nil, err
		}
		sameDay = append(sameDay, parsed{ev: ev, iv: iv})
	}

	var out []model.Event
	for _, p := range sameDay {
		if civ.Overlaps(p.iv) {
			out = append(out, p.ev)
			if firstOnly {
				break
			}
		}
	}
	return out, nil
}
