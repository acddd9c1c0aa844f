package ics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcal/internal/ics"
	"schedcal/internal/model"
)

// ---- fixtures --------------------------------------------------------------

func icsDoc(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var feed = icsDoc(
	"BEGIN:VEVENT",
	"UID:weekly",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Sync",
	"CATEGORIES:meeting",
	"DTSTART:20240603T090000",
	"DTEND:20240603T100000",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20240610T090000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Sync (moved)",
	"RECURRENCE-ID:20240617T090000",
	"DTSTART:20240617T140000",
	"DTEND:20240617T150000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20240605",
	"DTEND;VALUE=DATE:20240606",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:overnight",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Night shift",
	"DTSTART:20240606T220000",
	"DTEND:20240607T020000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:late",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Late show",
	"DTSTART:20240608T220000",
	"DTEND:20240609T000000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:berlin",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Berlin call",
	"DTSTART;TZID=Europe/Berlin:20240612T090000",
	"DTEND;TZID=Europe/Berlin:20240612T100000",
	"END:VEVENT",
)

func window() ics.ExpandConfig {
	return ics.ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func byID(events []model.Event) map[string]model.Event {
	out := make(map[string]model.Event, len(events))
	for _, e := range events {
		out[e.ID] = e
	}
	return out
}

// ---- Parse / Expand / ToEvents ---------------------------------------------

func TestParse(t *testing.T) {
	parsed, err := ics.Parse(ics.Source{ID: "test"}, feed, time.UTC)
	require.NoError(t, err)
	require.Len(t, parsed, 6)

	base := parsed[0]
	assert.Equal(t, "weekly", base.UID)
	assert.Equal(t, "Sync", base.Summary)
	assert.Equal(t, "meeting", base.Category)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)))

	assert.True(t, parsed[1].IsOverride)
	assert.True(t, parsed[2].AllDay)
	assert.Equal(t, "Europe/Berlin", parsed[5].Start.Location().String())
}

func TestParse_empty(t *testing.T) {
	_, err := ics.Parse(ics.Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestExpandAndConvert(t *testing.T) {
	parsed, err := ics.Parse(ics.Source{ID: "test"}, feed, time.UTC)
	require.NoError(t, err)

	expanded, err := ics.Expand(parsed, window())
	require.NoError(t, err)
	assert.Empty(t, expanded.TruncatedEvents)

	res := ics.ToEvents(expanded.Occurrences)
	assert.Equal(t, 1, res.SkippedAllDay)
	assert.Equal(t, 1, res.SkippedMultiDay)

	got := byID(res.Events)
	require.Len(t, got, 5)

	first := got["weekly@20240603T0900"]
	assert.Equal(t, "2024-06-03", string(first.Date))
	assert.Equal(t, "09:00", first.StartTime)
	assert.Equal(t, "10:00", first.EndTime)
	assert.Equal(t, "meeting", first.Category)

	assert.NotContains(t, got, "weekly@20240610T0900", "EXDATE removes the instance")

	moved := got["weekly@20240617T0900"]
	assert.Equal(t, "Sync (moved)", moved.Title)
	assert.Equal(t, "14:00", moved.StartTime)
	assert.Equal(t, "15:00", moved.EndTime)

	assert.Contains(t, got, "weekly@20240624T0900")

	late := got["late"]
	assert.Equal(t, "2024-06-08", string(late.Date))
	assert.Equal(t, "24:00", late.EndTime)

	berlin := got["berlin"]
	assert.Equal(t, "07:00", berlin.StartTime)
	assert.Equal(t, "08:00", berlin.EndTime)
}

func TestExpand_cap(t *testing.T) {
	parsed, err := ics.Parse(ics.Source{ID: "test"}, icsDoc(
		"BEGIN:VEVENT",
		"UID:daily",
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:Daily",
		"DTSTART:20240601T080000",
		"DTEND:20240601T081500",
		"RRULE:FREQ=DAILY",
		"END:VEVENT",
	), time.UTC)
	require.NoError(t, err)

	cfg := window()
	cfg.MaxOccurrencesPerEvent = 10
	expanded, err := ics.Expand(parsed, cfg)

	require.NoError(t, err)
	assert.Len(t, expanded.Occurrences, 10)
	assert.Equal(t, []string{"daily"}, expanded.TruncatedEvents)
}

func TestExpand_invertedWindow(t *testing.T) {
	cfg := window()
	cfg.RangeStart, cfg.RangeEnd = cfg.RangeEnd, cfg.RangeStart

	_, err := ics.Expand(nil, cfg)
	assert.Error(t, err)
}

// ---- Export ----------------------------------------------------------------

func TestExport_roundTrip(t *testing.T) {
	events := []model.Event{
		{ID: "a", Date: "2024-06-01", StartTime: "09:00", EndTime: "10:00", Title: "Standup", Description: "daily sync", Category: "meeting", Color: "#3b82f6"},
		{ID: "b", Date: "2024-06-02", StartTime: "22:30", EndTime: "24:00", Title: "Late", Category: "personal"},
	}

	body, err := ics.Export(events, ics.ExportOptions{Stamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "DTSTART:20240601T090000")

	parsed, err := ics.Parse(ics.Source{ID: "rt"}, body, time.UTC)
	require.NoError(t, err)
	expanded, err := ics.Expand(parsed, window())
	require.NoError(t, err)

	res := ics.ToEvents(expanded.Occurrences)
	assert.Equal(t, events, res.Events)
}

func TestExport_rejectsInvalid(t *testing.T) {
	_, err := ics.Export([]model.Event{{ID: "a", Date: "2024-06-01", StartTime: "10:00", EndTime: "09:00"}}, ics.ExportOptions{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = ics.Export([]model.Event{{ID: "a", Date: "June 1", StartTime: "09:00", EndTime: "10:00"}}, ics.ExportOptions{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

// ---- Fetcher and Import ----------------------------------------------------

func TestFetcher_etagCache(t *testing.T) {
	var hits, notModified int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	f := ics.NewFetcher(t.TempDir())
	src := ics.Source{ID: "remote", URL: srv.URL + "/cal.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, feed, first.Body)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, feed, second.Body)

	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, notModified)
}

func TestFetcher_errorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := ics.NewFetcher(t.TempDir()).FetchOne(context.Background(), ics.Source{ID: "x", URL: srv.URL})
	assert.Error(t, err)
}

func TestImport_localFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.ics")
	require.NoError(t, os.WriteFile(path, feed, 0o600))

	res, err := ics.Import(context.Background(), ics.NewFetcher(dir), ics.ImportConfig{
		Sources: []ics.Source{
			{ID: "local", URL: path},
			{ID: "missing", URL: "file://" + filepath.Join(dir, "nope.ics")},
		},
		Location: time.UTC,
		From:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Len(t, res.Events, 5)
	assert.Equal(t, 1, res.SkippedAllDay)
	assert.Len(t, res.Errors, 1)
	assert.Error(t, ics.JoinErrors(res.Errors))
	assert.NoError(t, ics.JoinErrors(nil))
}

func TestImport_idsUniqueAcrossSources(t *testing.T) {
	sameEvent := []string{
		"BEGIN:VEVENT",
		"UID:same@x",
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:Shared",
		"DTSTART:20240610T090000",
		"DTEND:20240610T100000",
		"END:VEVENT",
	}
	dir := t.TempDir()
	first := filepath.Join(dir, "a.ics")
	second := filepath.Join(dir, "b.ics")
	require.NoError(t, os.WriteFile(first, icsDoc(sameEvent...), 0o600))
	// The second feed also repeats the VEVENT within itself.
	require.NoError(t, os.WriteFile(second, icsDoc(append(append([]string{}, sameEvent...), sameEvent...)...), 0o600))

	res, err := ics.Import(context.Background(), ics.NewFetcher(dir), ics.ImportConfig{
		Sources: []ics.Source{
			{ID: "a", URL: first},
			{ID: "b", URL: second},
		},
		Location: time.UTC,
		From:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "same@x", res.Events[0].ID)
	assert.Equal(t, "b/same@x", res.Events[1].ID)
	assert.Equal(t, 1, res.Duplicates)

	seen := map[string]bool{}
	for _, ev := range res.Events {
		assert.False(t, seen[ev.ID], "duplicate id %s", ev.ID)
		seen[ev.ID] = true
	}
}

func TestFetcher_bodySizeLimit(t *testing.T) {
	var big atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if big.Load() {
			_, _ = w.Write(append(append([]byte{}, feed...), feed...))
			return
		}
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	src := ics.Source{ID: "remote", URL: srv.URL + "/cal.ics"}

	t.Run("oversized without cache", func(t *testing.T) {
		f := ics.NewFetcher(t.TempDir())
		f.SetMaxBodySize(64)

		_, err := f.FetchOne(context.Background(), src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 64 bytes")
	})

	t.Run("oversized falls back to cache", func(t *testing.T) {
		big.Store(false)
		f := ics.NewFetcher(t.TempDir())
		f.SetMaxBodySize(int64(len(feed)))

		first, err := f.FetchOne(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, feed, first.Body, "a body of exactly the limit is accepted")

		big.Store(true)
		second, err := f.FetchOne(context.Background(), src)
		require.NoError(t, err)
		assert.True(t, second.FromCache)
		assert.Equal(t, feed, second.Body)
	})
}
