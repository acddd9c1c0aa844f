package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"schedcal/internal/model"
)

const (
	defaultProductID = "-//schedcal//schedcal//EN"

	floatingLayout = "20060102T150405"
	dateLayout     = "20060102"
)

// propertyColor is the RFC 7986 COLOR property.
const propertyColor = ical.ComponentProperty("COLOR")

// ExportOptions controls calendar-level properties of Export.
type ExportOptions struct {
	// ProductID is written as PRODID. Empty means defaultProductID.
	ProductID string
	// Stamp is written as every event's DTSTAMP. Zero means now.
	Stamp time.Time
}

// Export serializes a snapshot as an iCalendar document. Events carry
// floating local DTSTART/DTEND since the core has no timezone; an end of
// "24:00" is written as midnight of the next day. Events with invalid
// dates or times are rejected with a *model.ValidationError.
func Export(events []model.Event, opts ExportOptions) ([]byte, error) {
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now().UTC()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	for _, ev := range events {
		start, end, err := eventTimes(ev)
		if err != nil {
			return nil, err
		}

		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(opts.Stamp)
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
		ve.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, ev.Category)
		}
		if ev.Color != "" {
			ve.SetProperty(propertyColor, ev.Color)
		}
	}

	return []byte(cal.Serialize()), nil
}

// eventTimes turns an event's date key and clock times into floating
// instants (in UTC, formatted without zone).
func eventTimes(ev model.Event) (time.Time, time.Time, error) {
	if _, err := ev.Day(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	iv, err := ev.Interval()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day, err := ev.Date.Time(time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("ics.Export: %w", err)
	}
	start := day.Add(time.Duration(iv.Start) * time.Minute)
	end := day.Add(time.Duration(iv.End) * time.Minute)
	return start, end, nil
}
