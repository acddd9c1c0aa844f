// Package index groups a flat event snapshot by day and derives the views
// the calendar widgets need: ordered days, the per-day conflict badge, the
// upcoming list, search/category filtering, category counts and the
// truncated cell preview.
//
// Every function takes the snapshot by value and never mutates it.
package index

import (
	"sort"
	"strings"

	"schedcal/internal/datekey"
	"schedcal/internal/model"
)

// CategoryAll disables category filtering in FilterBy.
const CategoryAll = "all"

// Index maps a day to its events ordered by start time.
type Index map[datekey.Key][]model.Event

// Build groups events by Date and orders every group by start time. Events
// starting at the same minute keep their input order. A malformed date key
// or start time anywhere in the snapshot is returned as a
// *model.ValidationError.
func Build(events []model.Event) (Index, error) {
	for _, ev := range events {
		if _, err := ev.Day(); err != nil {
			return nil, err
		}
		if _, err := ev.Start(); err != nil {
			return nil, err
		}
	}

	idx := make(Index)
	for _, ev := range events {
		idx[ev.Date] = append(idx[ev.Date], ev)
	}
	for _, day := range idx {
		sortByStart(day)
	}
	return idx, nil
}

// Day returns the ordered events of key, or nil.
func (idx Index) Day(key datekey.Key) []model.Event {
	return idx[key]
}

// HasEvents reports whether key has at least one event.
func (idx Index) HasEvents(key datekey.Key) bool {
	return len(idx[key]) > 0
}

// Keys returns the indexed days in ascending order.
func (idx Index) Keys() []datekey.Key {
	keys := make([]datekey.Key, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// HasConflictWithinDay is the cheap badge check for a start-ordered day: it
// compares each event only with its successor and reports true if one ends
// after the next one starts. It says nothing about which pairs overlap;
// for 09:00-17:00, 10:00-11:00, 15:00-16:00 only the first pair is ever
// compared and the 09:00-17:00 / 15:00-16:00 overlap is never examined.
// Input that is not start-ordered trips the check on any descent. Use
// package conflict for the full pairwise scan.
func HasConflictWithinDay(day []model.Event) (bool, error) {
	flags, err := OverlapsPrevious(day)
	if err != nil {
		return false, err
	}
	for _, f := range flags {
		if f {
			return true, nil
		}
	}
	return false, nil
}

// OverlapsPrevious flags, for each event of a start-ordered day, whether the
// previous event ends after it starts. The first flag is always false.
func OverlapsPrevious(day []model.Event) ([]bool, error) {
	flags := make([]bool, len(day))
	for i := 1; i < len(day); i++ {
		prevEnd, err := day[i-1].End()
		if err != nil {
			return nil, err
		}
		start, err := day[i].Start()
		if err != nil {
			return nil, err
		}
		flags[i] = prevEnd > start
	}
	return flags, nil
}

// Upcoming returns events dated today or later ordered by date, then start
// time, truncated to limit. A limit of zero or less yields no events.
// today and every event date must be canonical keys; start times are only
// checked on the events kept.
func Upcoming(events []model.Event, today datekey.Key, limit int) ([]model.Event, error) {
	if _, err := model.ParseDate("", "date", today); err != nil {
		return nil, err
	}

	out := make([]model.Event, 0)
	for _, ev := range events {
		if _, err := ev.Day(); err != nil {
			return nil, err
		}
		if ev.Date >= today {
			if _, err := ev.Start(); err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return mustStart(out[i]) < mustStart(out[j])
	})

	if limit <= 0 {
		return out[:0], nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FilterBy keeps events whose title or description contains search,
// case-insensitively, and whose category equals category. An empty search
// matches everything; category "all" or "" disables the category filter.
func FilterBy(events []model.Event, search, category string) []model.Event {
	needle := strings.ToLower(search)
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if category != "" && category != CategoryAll && ev.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(ev.Title), needle) &&
			!strings.Contains(strings.ToLower(ev.Description), needle) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// CategoryCount is one row of Stats.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes a snapshot for the sidebar.
type Stats struct {
	Total      int             `json:"total"`
	ByCategory []CategoryCount `json:"by_category"`
}

// CountByCategory counts events per category, reporting categories in the
// given order. Events in categories not listed only count toward Total.
func CountByCategory(events []model.Event, categories []string) Stats {
	counts := make(map[string]int, len(categories))
	for _, ev := range events {
		counts[ev.Category]++
	}
	st := Stats{Total: len(events), ByCategory: make([]CategoryCount, 0, len(categories))}
	for _, c := range categories {
		if c == CategoryAll {
			continue
		}
		st.ByCategory = append(st.ByCategory, CategoryCount{Name: c, Count: counts[c]})
	}
	return st
}

// Preview returns at most limit events of a day and how many were left out.
func Preview(day []model.Event, limit int) ([]model.Event, int) {
	if limit < 0 {
		limit = 0
	}
	if len(day) <= limit {
		return day, 0
	}
	return day[:limit], len(day) - limit
}

func sortByStart(day []model.Event) {
	sort.SliceStable(day, func(i, j int) bool {
		return mustStart(day[i]) < mustStart(day[j])
	})
}

// mustStart is only called on events whose start was validated first.
func mustStart(ev model.Event) model.Clock {
	s, _ := ev.Start()
	return s
}
