// Package calendar builds the month and week grid view models rendered by the
// admin console.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/screening-console/internal/datemath"
)

// Mode selects the grid layout.
type Mode string

const (
	ModeMonth Mode = "month"
	ModeWeek  Mode = "week"
)

// ParseMode returns the mode named by value, defaulting to month.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ModeMonth):
		return ModeMonth, nil
	case string(ModeWeek):
		return ModeWeek, nil
	}
	return "", fmt.Errorf("calendar: unknown view mode %q", value)
}

// Direction moves the reference date of a view.
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

const (
	monthCells     = 42
	weekCells      = 7
	visibleEvents  = 5
	untimedDisplay = "—"
)

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Entry is the slice of an event the grid needs.
type Entry struct {
	ID         string
	Date       datemath.Date
	Time       string
	EventType  string
	Status     string
	NoShow     bool
	ClientName string
	TestTypes  []string
}

// Lookup returns the entries scheduled on a date.
type Lookup func(datemath.Date) []Entry

// View is the rendered grid.
type View struct {
	Mode       Mode          `json:"mode"`
	Reference  datemath.Date `json:"reference"`
	Title      string        `json:"title"`
	WeekYear   int           `json:"weekYear,omitempty"`
	WeekNumber int           `json:"weekNumber,omitempty"`
	Weekdays   []string      `json:"weekdays"`
	Cells      []DayCell     `json:"cells"`
}

// DayCell is a single day of the grid. Filler cells pad a month grid with
// days of the neighbouring months and never carry events.
type DayCell struct {
	Date           datemath.Date `json:"date"`
	DayNumber      int           `json:"dayNumber"`
	Row            int           `json:"row"`
	InCurrentMonth bool          `json:"inCurrentMonth"`
	Filler         bool          `json:"filler"`
	IsToday        bool          `json:"isToday"`
	Events         []EventCell   `json:"events"`
	MoreCount      int           `json:"moreCount"`
}

// MoreLabel returns the overflow text such as "+2 more", or "".
func (c DayCell) MoreLabel() string {
	if c.MoreCount <= 0 {
		return ""
	}
	return fmt.Sprintf("+%d more", c.MoreCount)
}

// EventCell is the compact rendering of one event inside a day cell.
type EventCell struct {
	ID          string   `json:"id"`
	Time        string   `json:"time"`
	ClientName  string   `json:"clientName"`
	TypeLabel   string   `json:"typeLabel"`
	TestBadges  []string `json:"testBadges,omitempty"`
	StatusColor string   `json:"statusColor"`
	StatusClass string   `json:"statusClass"`
	IsPast      bool     `json:"isPast"`
	NoShow      bool     `json:"noShow"`
}

// Build renders the grid for reference in the given mode. now decides which
// cell is today and which events are past.
func Build(reference datemath.Date, mode Mode, lookup Lookup, now time.Time) View {
	if lookup == nil {
		lookup = func(datemath.Date) []Entry { return nil }
	}
	today := datemath.DateOf(now)

	switch mode {
	case ModeWeek:
		return buildWeek(reference, lookup, today, now)
	default:
		return buildMonth(reference, lookup, today, now)
	}
}

func buildMonth(reference datemath.Date, lookup Lookup, today datemath.Date, now time.Time) View {
	first := reference.FirstOfMonth()
	start := first.AddDays(-int(first.Weekday()))

	cells := make([]DayCell, 0, monthCells)
	for i := 0; i < monthCells; i++ {
		day := start.AddDays(i)
		cell := DayCell{
			Date:           day,
			DayNumber:      day.Day,
			Row:            i/weekCells + 1,
			InCurrentMonth: day.SameMonth(first),
			IsToday:        day == today,
		}
		if cell.InCurrentMonth {
			fillEvents(&cell, lookup(day), now)
		} else {
			cell.Filler = true
			cell.Events = []EventCell{}
		}
		cells = append(cells, cell)
	}

	return View{
		Mode:      ModeMonth,
		Reference: reference,
		Title:     fmt.Sprintf("%s %d", first.Month, first.Year),
		Weekdays:  append([]string(nil), weekdayNames...),
		Cells:     cells,
	}
}

func buildWeek(reference datemath.Date, lookup Lookup, today datemath.Date, now time.Time) View {
	start := datemath.StartOfWeek(reference)

	cells := make([]DayCell, 0, weekCells)
	headers := make([]string, 0, weekCells)
	for i := 0; i < weekCells; i++ {
		day := start.AddDays(i)
		cell := DayCell{
			Date:           day,
			DayNumber:      day.Day,
			Row:            1,
			InCurrentMonth: day.SameMonth(reference),
			IsToday:        day == today,
		}
		fillEvents(&cell, lookup(day), now)
		cells = append(cells, cell)
		headers = append(headers, fmt.Sprintf("%s %d", weekdayNames[i], day.Day))
	}

	weekYear, weekNumber := datemath.WeekLabel(reference)
	return View{
		Mode:       ModeWeek,
		Reference:  reference,
		Title:      fmt.Sprintf("%s - Week %d", weekSpanLabel(start, start.AddDays(weekCells-1)), weekNumber),
		WeekYear:   weekYear,
		WeekNumber: weekNumber,
		Weekdays:   headers,
		Cells:      cells,
	}
}

func weekSpanLabel(start, end datemath.Date) string {
	startMonth := shortMonth(start.Month)
	endMonth := shortMonth(end.Month)
	switch {
	case start.Year != end.Year:
		return fmt.Sprintf("%s %d - %s %d", startMonth, start.Year, endMonth, end.Year)
	case start.Month != end.Month:
		return fmt.Sprintf("%s - %s %d", startMonth, endMonth, end.Year)
	default:
		return fmt.Sprintf("%s %d", startMonth, start.Year)
	}
}

func shortMonth(m time.Month) string {
	return m.String()[:3]
}

func fillEvents(cell *DayCell, entries []Entry, now time.Time) {
	sorted := SortEntries(entries)
	visible := sorted
	if len(sorted) > visibleEvents {
		visible = sorted[:visibleEvents]
		cell.MoreCount = len(sorted) - visibleEvents
	}
	cell.Events = make([]EventCell, 0, len(visible))
	for _, entry := range visible {
		cell.Events = append(cell.Events, renderEntry(entry, now))
	}
}

// SortEntries returns a copy of entries ordered by time, untimed entries
// first, ties broken by id.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := datemath.SortKey(out[i].Time), datemath.SortKey(out[j].Time)
		if ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func renderEntry(entry Entry, now time.Time) EventCell {
	display := entry.Time
	if strings.TrimSpace(display) == "" {
		display = untimedDisplay
	}
	var badges []string
	for _, tt := range entry.TestTypes {
		if abbrev := TestAbbreviation(tt); abbrev != "" {
			badges = append(badges, abbrev)
		}
	}
	return EventCell{
		ID:          entry.ID,
		Time:        display,
		ClientName:  entry.ClientName,
		TypeLabel:   TypeLabel(entry.EventType),
		TestBadges:  badges,
		StatusColor: StatusColor(entry.EventType, entry.Status, entry.NoShow),
		StatusClass: StatusClass(entry.EventType, entry.Status, entry.NoShow),
		IsPast:      datemath.IsEventPast(entry.Date, entry.Time, now),
		NoShow:      entry.NoShow,
	}
}

// Navigate returns the reference date one step away from reference. Month
// views move by a calendar month anchored on the 1st, week views by 7 days.
func Navigate(reference datemath.Date, mode Mode, dir Direction) datemath.Date {
	step := int(dir)
	if step == 0 {
		return reference
	}
	if mode == ModeWeek {
		return reference.AddDays(7 * step)
	}
	return reference.FirstOfMonth().AddMonths(step)
}
