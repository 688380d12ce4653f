// Package ics converts calendar events to and from iCalendar feeds.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/screening-console/internal/application"
	"github.com/example/screening-console/internal/datemath"
)

const (
	productID = "-//Screening Console//Calendar//EN"
	uidSuffix = "@screening-console"

	// DefaultDuration is the length given to timed events, which carry
	// only a start time.
	DefaultDuration = 30 * time.Minute
)

// Extension properties carrying fields that have no iCalendar equivalent.
const (
	propEventType  ical.ComponentProperty = "X-CONSOLE-EVENT-TYPE"
	propClient     ical.ComponentProperty = "X-CONSOLE-CLIENT"
	propCompany    ical.ComponentProperty = "X-CONSOLE-COMPANY"
	propTestType   ical.ComponentProperty = "X-CONSOLE-TEST-TYPE"
	propTestMethod ical.ComponentProperty = "X-CONSOLE-TEST-METHOD"
	propStatus     ical.ComponentProperty = "X-CONSOLE-STATUS"
	propNoShow     ical.ComponentProperty = "X-CONSOLE-NO-SHOW"
)

// Options controls feed rendering.
type Options struct {
	// Name is published as X-WR-CALNAME when set.
	Name string
	// Location interprets event dates and times. Nil means UTC.
	Location *time.Location
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Encode renders events as a VCALENDAR document.
func Encode(events []application.CalendarEvent, opts Options) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	loc := opts.location()
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, event := range events {
		addEvent(cal, event, loc, stamp.UTC())
	}
	return cal.Serialize()
}

// Write renders events to w.
func Write(w io.Writer, events []application.CalendarEvent, opts Options) error {
	if _, err := io.WriteString(w, Encode(events, opts)); err != nil {
		return fmt.Errorf("ics: write feed: %w", err)
	}
	return nil
}

func addEvent(cal *ical.Calendar, event application.CalendarEvent, loc *time.Location, stamp time.Time) {
	ve := cal.AddEvent(event.ID + uidSuffix)
	ve.SetDtStampTime(stamp)
	if !event.CreatedAt.IsZero() {
		ve.SetCreatedTime(event.CreatedAt.UTC())
	}
	if !event.UpdatedAt.IsZero() {
		ve.SetModifiedAt(event.UpdatedAt.UTC())
	}

	if start, ok := startTime(event, loc); ok {
		ve.SetStartAt(start.UTC())
		ve.SetEndAt(start.Add(DefaultDuration).UTC())
	} else {
		day := event.Date.In(loc)
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(event.Date.AddDays(1).In(loc))
	}

	ve.SetSummary(summary(event))
	if desc := description(event); desc != "" {
		ve.SetDescription(desc)
	}
	ve.SetProperty(ical.ComponentPropertyStatus, icalStatus(event.Status))
	ve.SetProperty(ical.ComponentPropertyCategories, string(event.EventType))

	ve.SetProperty(propEventType, string(event.EventType))
	ve.SetProperty(propClient, event.ClientName)
	ve.SetProperty(propStatus, string(event.Status))
	if event.EventType == application.EventTypeDrugTesting {
		ve.SetProperty(propCompany, event.CompanyName)
		ve.SetProperty(propTestMethod, event.TestMethod)
		for _, t := range event.TestTypes {
			ve.AddProperty(propTestType, t)
		}
		ve.SetProperty(propNoShow, strconv.FormatBool(event.NoShow))
	}
}

func startTime(event application.CalendarEvent, loc *time.Location) (time.Time, bool) {
	if event.Time == "" {
		return time.Time{}, false
	}
	clock, err := datemath.ParseTimeOfDay(event.Time)
	if err != nil {
		return time.Time{}, false
	}
	day := event.Date.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour, clock.Minute, 0, 0, loc), true
}

func summary(event application.CalendarEvent) string {
	if event.EventType == application.EventTypeDrugTesting && event.CompanyName != "" {
		return fmt.Sprintf("%s (%s)", event.ClientName, event.CompanyName)
	}
	return event.ClientName
}

func description(event application.CalendarEvent) string {
	if event.EventType != application.EventTypeDrugTesting {
		return ""
	}
	parts := []string{"Drug test"}
	if len(event.TestTypes) > 0 {
		parts = append(parts, "types: "+strings.Join(event.TestTypes, " "))
	}
	if event.TestMethod != "" {
		parts = append(parts, "method: "+event.TestMethod)
	}
	if event.NoShow {
		parts = append(parts, "no-show")
	}
	return strings.Join(parts, "; ")
}

func icalStatus(status application.EventStatus) string {
	switch status {
	case application.EventStatusCancelled:
		return string(ical.ObjectStatusCancelled)
	case application.EventStatusScheduled:
		return string(ical.ObjectStatusTentative)
	}
	return string(ical.ObjectStatusConfirmed)
}
