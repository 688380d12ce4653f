package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/screening-console/internal/application"
)

// ErrEmptyFeed is returned when a feed carries no data.
var ErrEmptyFeed = errors.New("ics: empty feed")

// Imported is one VEVENT converted to event input.
type Imported struct {
	UID   string
	Input application.EventInput
}

// Decode reads VEVENTs from r. Events without a start are skipped. Extension
// properties written by Encode are honoured; foreign events become "other"
// events named after their SUMMARY.
func Decode(r io.Reader, loc *time.Location) ([]Imported, error) {
	if loc == nil {
		loc = time.UTC
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ics: read feed: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyFeed
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse feed: %w", err)
	}

	out := make([]Imported, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		item, ok := decodeEvent(ve, loc)
		if !ok {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeEvent(ve *ical.VEvent, loc *time.Location) (Imported, bool) {
	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil || strings.TrimSpace(start.Value) == "" {
		return Imported{}, false
	}

	var item Imported
	if uid := ve.GetProperty(ical.ComponentPropertyUniqueId); uid != nil {
		item.UID = strings.TrimSuffix(uid.Value, uidSuffix)
	}

	raw := strings.TrimSpace(start.Value)
	if isDateOnly(start) {
		day, err := time.Parse("20060102", raw)
		if err != nil {
			return Imported{}, false
		}
		item.Input.Date = day.Format("2006-01-02")
	} else {
		at, err := ve.GetStartAt()
		if err != nil {
			return Imported{}, false
		}
		local := at.In(loc)
		item.Input.Date = local.Format("2006-01-02")
		item.Input.Time = local.Format("15:04")
	}

	item.Input.EventType = text(ve, propEventType)
	item.Input.ClientName = text(ve, propClient)
	item.Input.Status = text(ve, propStatus)
	if item.Input.EventType == "" {
		item.Input.EventType = string(application.EventTypeOther)
	}
	if item.Input.ClientName == "" {
		item.Input.ClientName = text(ve, ical.ComponentPropertySummary)
	}
	if item.Input.Status == "" && strings.EqualFold(text(ve, ical.ComponentPropertyStatus), string(ical.ObjectStatusCancelled)) {
		item.Input.Status = string(application.EventStatusCancelled)
	}

	if item.Input.EventType == string(application.EventTypeDrugTesting) {
		item.Input.CompanyName = text(ve, propCompany)
		item.Input.TestMethod = text(ve, propTestMethod)
		for _, p := range ve.GetProperties(propTestType) {
			if v := strings.TrimSpace(p.Value); v != "" {
				item.Input.TestTypes = append(item.Input.TestTypes, v)
			}
		}
		item.Input.NoShow, _ = strconv.ParseBool(text(ve, propNoShow))
	}
	return item, true
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)

func text(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(textUnescaper.Replace(p.Value))
}
