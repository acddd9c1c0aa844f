package ics

import (
	"context"
	"errors"
	"strings"
	"time"

	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// ImportConfig describes one import run.
type ImportConfig struct {
	Sources []Source
	// Location is the display zone; floating times are read in it too.
	Location *time.Location
	// From / To bound recurrence expansion.
	From time.Time
	To   time.Time
}

// ImportResult is the flattened snapshot plus per-step diagnostics.
type ImportResult struct {
	Events          []model.Event
	SkippedAllDay   int
	SkippedMultiDay int
	Duplicates      int
	TruncatedUIDs   []string
	Errors          []error
}

// Import fetches, parses and flattens every source into single-day
// events. A failing source is recorded in Errors and skipped; the others
// still contribute.
func Import(ctx context.Context, f *Fetcher, cfg ImportConfig) (ImportResult, error) {
	var res ImportResult

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	fetched, errs := f.FetchAll(ctx, cfg.Sources)
	res.Errors = append(res.Errors, errs...)

	parsed := make([]ParsedEvent, 0)
	for _, fr := range fetched {
		events, err := Parse(fr.Source, fr.Body, loc)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		parsed = append(parsed, events...)
	}

	expanded, err := Expand(parsed, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      cfg.From,
		RangeEnd:        cfg.To,
	})
	if err != nil {
		return res, err
	}
	res.TruncatedUIDs = expanded.TruncatedEvents

	conv := ToEvents(expanded.Occurrences)
	res.Events = conv.Events
	res.SkippedAllDay = conv.SkippedAllDay
	res.SkippedMultiDay = conv.SkippedMultiDay
	res.Duplicates = conv.Duplicates
	if res.Duplicates > 0 {
		appLog.Warn("ics import dropped duplicate events", "count", res.Duplicates)
	}

	appLog.Info("ics import completed",
		"sources", len(cfg.Sources),
		"events", len(res.Events),
		"skipped_all_day", res.SkippedAllDay,
		"skipped_multi_day", res.SkippedMultiDay,
		"duplicates", res.Duplicates,
		"error_count", len(res.Errors),
	)
	return res, nil
}

// JoinErrors flattens a list of errors into one, or nil.
func JoinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
