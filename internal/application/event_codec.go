package application

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/screening-console/internal/datemath"
	"github.com/example/screening-console/internal/persistence"
)

// Supported drug test types for newly scheduled events.
var schedulableTestTypes = map[string]struct{}{
	"urine":  {},
	"oral":   {},
	"breath": {},
}

var testMethods = map[string]struct{}{
	TestMethodExpress:      {},
	TestMethodExpressToLab: {},
	TestMethodLab:          {},
}

// encodeEvent renders an event as a stored document body.
func encodeEvent(event CalendarEvent) persistence.Fields {
	fields := persistence.Fields{
		"userId":      event.UserID,
		"date":        event.Date.String(),
		"time":        event.Time,
		"eventType":   string(event.EventType),
		"clientName":  event.ClientName,
		"companyName": nil,
		"testType":    nil,
		"testMethod":  nil,
		"status":      string(event.Status),
		"noShow":      event.NoShow,
		"createdAt":   persistence.FormatTime(event.CreatedAt),
		"updatedAt":   persistence.FormatTime(event.UpdatedAt),
	}
	if event.EventType == EventTypeDrugTesting {
		fields["companyName"] = event.CompanyName
		fields["testType"] = append([]string(nil), event.TestTypes...)
		fields["testMethod"] = event.TestMethod
	}
	return fields
}

// decodeEvent reads a stored document, tolerating older shapes: a scalar
// testType, a missing noShow flag and a missing eventType.
func decodeEvent(doc persistence.Document) (CalendarEvent, error) {
	f := doc.Fields
	date, err := datemath.ParseDate(f.Text("date"))
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("%w: event %s: %v", persistence.ErrInvalidDocument, doc.ID, err)
	}

	eventType := EventType(strings.TrimSpace(f.Text("eventType")))
	if eventType == "" {
		eventType = EventTypeDrugTesting
	}
	status := EventStatus(strings.TrimSpace(f.Text("status")))
	if status == "" {
		status = EventStatusScheduled
	}

	clock, err := datemath.NormalizeTime(f.Text("time"))
	if err != nil {
		clock = ""
	}

	return CalendarEvent{
		ID:          doc.ID,
		UserID:      f.Text("userId"),
		Date:        date,
		Time:        clock,
		EventType:   eventType,
		ClientName:  f.Text("clientName"),
		CompanyName: f.Text("companyName"),
		TestTypes:   normalizeTestTypes(f.StringSlice("testType")),
		TestMethod:  f.Text("testMethod"),
		Status:      status,
		NoShow:      f.Bool("noShow"),
		CreatedAt:   f.Time("createdAt"),
		UpdatedAt:   f.Time("updatedAt"),
	}, nil
}

func normalizeTestTypes(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// buildEvent validates input and returns the event fields it describes.
// Identity, ownership and timestamps are left for the caller to fill in.
func buildEvent(input EventInput) (CalendarEvent, error) {
	vErr := &ValidationError{}

	var event CalendarEvent

	date, err := datemath.ParseDate(input.Date)
	if err != nil {
		vErr.add("date", "Please select a valid date.")
	}
	event.Date = date

	clock, err := datemath.NormalizeTime(input.Time)
	if err != nil {
		vErr.add("time", "Please select a valid time.")
	}
	event.Time = clock

	event.ClientName = strings.TrimSpace(input.ClientName)
	if event.ClientName == "" {
		vErr.add("clientName", "Client name is required.")
	}

	event.EventType = EventType(strings.TrimSpace(input.EventType))
	switch event.EventType {
	case "":
		event.EventType = EventTypeDrugTesting
	case EventTypeDrugTesting, EventTypeConsultation, EventTypeFollowUp, EventTypeOther:
	default:
		vErr.add("eventType", fmt.Sprintf("Unsupported event type: %s", input.EventType))
	}

	event.Status = EventStatus(strings.TrimSpace(input.Status))
	switch event.Status {
	case "":
		event.Status = EventStatusScheduled
	case EventStatusScheduled, EventStatusCompleted, EventStatusCancelled:
	default:
		vErr.add("status", fmt.Sprintf("Unsupported status: %s", input.Status))
	}

	if event.EventType == EventTypeDrugTesting {
		if event.Time == "" && strings.TrimSpace(input.Time) == "" {
			vErr.add("time", "Please select a time for drug testing events.")
		}

		types := normalizeTestTypes(input.TestTypes)
		if len(types) == 0 {
			vErr.add("testType", "Please select at least one test type (Urine, Oral or Breath).")
		}
		for _, t := range types {
			if _, ok := schedulableTestTypes[t]; !ok {
				vErr.add("testType", fmt.Sprintf("Unsupported test type selected: %s", t))
			}
		}
		event.TestTypes = types

		event.TestMethod = strings.TrimSpace(input.TestMethod)
		if _, ok := testMethods[event.TestMethod]; !ok {
			vErr.add("testMethod", "Please select a test method (Express, Express-to-Lab, or Lab Test).")
		}

		event.CompanyName = strings.TrimSpace(input.CompanyName)
		if event.CompanyName == "" {
			vErr.add("companyName", "Company name is required for drug testing events.")
		}
		event.NoShow = input.NoShow
	}

	if err := vErr.errOrNil(); err != nil {
		return CalendarEvent{}, err
	}
	return event, nil
}
