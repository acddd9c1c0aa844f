package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "schedcal/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT before
// recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID string

	Summary     string
	Description string
	Category    string
	Color       string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// Parse parses one ICS payload. Floating date-times (no TZID, no Z) are
// read in loc; a nil loc means time.Local.
//
//   - All-day events are detected from VALUE=DATE or a date-only DTSTART.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded but not expanded; see Expand.
//   - A VEVENT that cannot be parsed is logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		// Only the first category maps onto an event's single category.
		out.Category = unescapeText(strings.SplitN(p.Value, ",", 2)[0])
	}
	if p := ve.GetProperty(propertyColor); p != nil {
		out.Color = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propertyTime(dtStart, loc)
	if err != nil {
		return out, err
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, _, err := propertyTime(dtEnd, loc)
		if err != nil {
			return out, err
		}
		out.End = end
	} else if allDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := paramLocation(p.ICalParameters, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, exLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil {
		ridLoc := paramLocation(ridProp.ICalParameters, start.Location())
		if t, err := parseICSTime(ridProp.Value, ridLoc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// propertyTime reads a DTSTART/DTEND style property, honoring TZID and
// VALUE=DATE.
func propertyTime(p *ical.IANAProperty, floating *time.Location) (time.Time, bool, error) {
	val := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(val, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	t, err := parseICSTime(val, paramLocation(p.ICalParameters, floating))
	return t, allDay, err
}

// paramLocation resolves a TZID parameter, falling back to def when absent
// or unknown.
func paramLocation(params map[string][]string, def *time.Location) *time.Location {
	tzs, ok := params["TZID"]
	if !ok || len(tzs) == 0 {
		return def
	}
	loc, err := time.LoadLocation(strings.Trim(tzs[0], `"`))
	if err != nil {
		appLog.Warn("unknown TZID; using default location", "tzid", tzs[0])
		return def
	}
	return loc
}

// parseICSTime parses a basic ICS date or date-time. UTC values keep their
// Z; everything else is read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
