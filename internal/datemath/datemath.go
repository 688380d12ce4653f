// Package datemath holds the calendar arithmetic used by the scheduling views:
// zone-free calendar dates, HH:MM clock times, Sunday-anchored weeks and the
// quarter-hour time options offered when booking an event.
package datemath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]?\d)$`)

var (
	// ErrInvalidDate is returned when a value is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("datemath: invalid date")
	// ErrInvalidTime is returned when a value is not an HH:MM 24h clock time.
	ErrInvalidTime = errors.New("datemath: invalid time of day")
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalises the supplied components, so NewDate(2025, 3, 32) is April 1st.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(value string) (Date, error) {
	trimmed := strings.TrimSpace(value)
	t, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) utc() time.Time {
	return d.In(time.UTC)
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.utc().AddDate(0, 0, n))
}

// AddMonths shifts d by n calendar months. The day is clamped to the last day
// of the target month instead of overflowing into the month after.
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := d.Day
	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// Compare returns -1, 0 or 1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// SameMonth reports whether d and other share year and month.
func (d Date) SameMonth(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfWeek returns the Sunday on or before d.
func StartOfWeek(d Date) Date {
	return d.AddDays(-int(d.Weekday()))
}

// WeekNumberInMonth returns the 1-based row d occupies in a Sunday-first month grid.
func WeekNumberInMonth(d Date) int {
	offset := int(d.FirstOfMonth().Weekday())
	return (d.Day-1+offset)/7 + 1
}

// WeekLabel returns the ISO-8601 year and week number used to label the
// Sunday-anchored week containing d. The Monday of that week decides, so every
// day from Sunday to Saturday carries the same label.
func WeekLabel(d Date) (year, week int) {
	return StartOfWeek(d).AddDays(1).utc().ISOWeek()
}

// TimeOfDay is a 24h wall clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an HH:MM value. Single-digit components, as found in
// older stored events, are accepted.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// String formats t as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// NormalizeTime returns value reformatted as HH:MM, or "" when blank.
func NormalizeTime(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	t, err := ParseTimeOfDay(value)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// SortKey orders clock strings with blanks sorting as midnight.
func SortKey(clock string) int {
	t, err := ParseTimeOfDay(clock)
	if err != nil {
		return 0
	}
	return t.Minutes()
}

// IsEventPast reports whether an event on date at clock (HH:MM or blank) has
// already happened relative to now. Untimed events are never past on their
// own day. Dates are compared in now's location.
func IsEventPast(date Date, clock string, now time.Time) bool {
	today := DateOf(now)
	switch date.Compare(today) {
	case 1:
		return false
	case -1:
		return true
	}
	if strings.TrimSpace(clock) == "" {
		return false
	}
	t, err := ParseTimeOfDay(clock)
	if err != nil {
		return false
	}
	start := time.Date(date.Year, date.Month, date.Day, t.Hour, t.Minute, 0, 0, now.Location())
	return start.Before(now)
}

// TimeOptions lists the selectable hours and minutes for an event time.
type TimeOptions struct {
	Hours   []string `json:"hours"`
	Minutes []string `json:"minutes"`
}

// GenerateTimeOptions returns hours "00".."23" and quarter-hour minutes.
func GenerateTimeOptions() TimeOptions {
	hours := make([]string, 0, 24)
	for h := 0; h < 24; h++ {
		hours = append(hours, fmt.Sprintf("%02d", h))
	}
	return TimeOptions{
		Hours:   hours,
		Minutes: []string{"00", "15", "30", "45"},
	}
}

// NextQuarterHour rounds now up to the next quarter hour and returns it as HH:MM.
// Exact quarters with no seconds are kept. Rounding past 23:45 wraps to 00:00.
func NextQuarterHour(now time.Time) string {
	h, m := now.Hour(), now.Minute()
	if m%15 == 0 && (now.Second() > 0 || now.Nanosecond() > 0) {
		m++
	}
	m = ((m + 14) / 15) * 15
	if m == 60 {
		m = 0
		h = (h + 1) % 24
	}
	return TimeOfDay{Hour: h, Minute: m}.String()
}
