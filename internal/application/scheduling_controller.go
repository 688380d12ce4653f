package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/screening-console/internal/calendar"
	"github.com/example/screening-console/internal/datemath"
)

// EventStoreProvider returns the event store of a user.
type EventStoreProvider interface {
	For(ctx context.Context, userID string) (*EventStore, error)
}

// Deducter consumes supplies for a saved event.
type Deducter interface {
	Deduct(ctx context.Context, event CalendarEvent) (*DeductionReport, error)
}

// SchedulingController validates and persists calendar events, triggers
// supply deduction on completion and renders calendar views.
type SchedulingController struct {
	events   EventStoreProvider
	ledger   Deducter
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

// NewSchedulingController constructs a SchedulingController.
func NewSchedulingController(events EventStoreProvider, ledger Deducter, now func() time.Time, location *time.Location) *SchedulingController {
	return NewSchedulingControllerWithLogger(events, ledger, now, location, nil)
}

// NewSchedulingControllerWithLogger constructs a SchedulingController with a specified logger.
func NewSchedulingControllerWithLogger(events EventStoreProvider, ledger Deducter, now func() time.Time, location *time.Location, logger *slog.Logger) *SchedulingController {
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &SchedulingController{
		events:   events,
		ledger:   ledger,
		now:      now,
		location: location,
		logger:   defaultLogger(logger),
	}
}

func (c *SchedulingController) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "SchedulingController", operation, attrs...)
}

// Now returns the current time in the console's location.
func (c *SchedulingController) Now() time.Time {
	return c.now().In(c.location)
}

// Location returns the time zone event dates and times are interpreted in.
func (c *SchedulingController) Location() *time.Location {
	return c.location
}

func (c *SchedulingController) storeFor(ctx context.Context, principal Principal) (*EventStore, error) {
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	return c.events.For(ctx, principal.UserID)
}

// Events lists every event of the principal.
func (c *SchedulingController) Events(ctx context.Context, principal Principal) ([]CalendarEvent, error) {
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	return store.All(), nil
}

// Event returns one of the principal's events.
func (c *SchedulingController) Event(ctx context.Context, principal Principal, id string) (CalendarEvent, error) {
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return CalendarEvent{}, err
	}
	event, ok := store.Get(id)
	if !ok {
		return CalendarEvent{}, ErrNotFound
	}
	return event, nil
}

// SaveEvent validates and stores an event. When the save turns a drug test
// into a completed, attended one its supplies are deducted; ledger failures
// are reported on the result and do not undo the save.
func (c *SchedulingController) SaveEvent(ctx context.Context, params SaveEventParams) (result SaveEventResult, err error) {
	if c == nil {
		err = fmt.Errorf("SchedulingController is nil")
		return
	}
	logger := c.loggerWith(ctx, "SaveEvent",
		"user_id", params.Principal.UserID,
		"event_id", params.EventID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "save event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event saved", "saved_id", result.Event.ID, "status", string(result.Event.Status))
	}()

	var event CalendarEvent
	event, err = buildEvent(params.Input)
	if err != nil {
		return
	}

	var store *EventStore
	store, err = c.storeFor(ctx, params.Principal)
	if err != nil {
		return
	}

	wasCompleted := false
	if params.EventID != "" {
		previous, ok := store.Get(params.EventID)
		if !ok {
			err = ErrNotFound
			return
		}
		if previous.UserID != params.Principal.UserID {
			err = ErrUnauthorized
			return
		}
		wasCompleted = previous.Completed()
		event.ID = previous.ID
	}

	var saved CalendarEvent
	saved, err = store.Save(ctx, event)
	if err != nil {
		return
	}
	result.Event = saved

	if saved.Completed() && !wasCompleted && !params.SkipDeduction && c.ledger != nil {
		report, deductErr := c.ledger.Deduct(ctx, saved)
		result.Deduction = report
		if deductErr != nil {
			logger.WarnContext(ctx, "supply deduction incomplete", "error", deductErr, "error_kind", ErrorKind(deductErr))
			result.LedgerWarn = deductErr.Error()
		}
	}
	return
}

// DeleteEvent removes one of the principal's events.
func (c *SchedulingController) DeleteEvent(ctx context.Context, principal Principal, id string) error {
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}

// MoveEvent reschedules an event to the date given as YYYY-MM-DD.
func (c *SchedulingController) MoveEvent(ctx context.Context, principal Principal, id, date string) (CalendarEvent, error) {
	target, err := datemath.ParseDate(date)
	if err != nil {
		return CalendarEvent{}, &ValidationError{FieldErrors: map[string]string{"date": "Please select a valid date."}}
	}
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return CalendarEvent{}, err
	}
	return store.MoveToDate(ctx, id, target)
}

// EventsOnDate lists the principal's events on date in display order.
func (c *SchedulingController) EventsOnDate(ctx context.Context, principal Principal, date datemath.Date) ([]CalendarEvent, error) {
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	return store.EventsOnDate(date), nil
}

// View renders the calendar around reference. A zero reference means today.
func (c *SchedulingController) View(ctx context.Context, principal Principal, reference datemath.Date, mode calendar.Mode) (calendar.View, error) {
	store, err := c.storeFor(ctx, principal)
	if err != nil {
		return calendar.View{}, err
	}
	now := c.Now()
	if reference.IsZero() {
		reference = datemath.DateOf(now)
	}
	lookup := func(d datemath.Date) []calendar.Entry {
		events := store.EventsOnDate(d)
		entries := make([]calendar.Entry, 0, len(events))
		for _, e := range events {
			entries = append(entries, toEntry(e))
		}
		return entries
	}
	return calendar.Build(reference, mode, lookup, now), nil
}

// Navigate renders the view one step before or after reference.
func (c *SchedulingController) Navigate(ctx context.Context, principal Principal, reference datemath.Date, mode calendar.Mode, dir calendar.Direction) (calendar.View, error) {
	if reference.IsZero() {
		reference = datemath.DateOf(c.Now())
	}
	return c.View(ctx, principal, calendar.Navigate(reference, mode, dir), mode)
}

// NewEventDefaults returns the prefilled form for a new event on date. The
// time is the current time rounded up to the next quarter hour.
func (c *SchedulingController) NewEventDefaults(date datemath.Date) EventInput {
	now := c.Now()
	if date.IsZero() {
		date = datemath.DateOf(now)
	}
	return EventInput{
		Date:      date.String(),
		Time:      datemath.NextQuarterHour(now),
		EventType: string(EventTypeDrugTesting),
		Status:    string(EventStatusScheduled),
	}
}

func toEntry(e CalendarEvent) calendar.Entry {
	return calendar.Entry{
		ID:         e.ID,
		Date:       e.Date,
		Time:       e.Time,
		EventType:  string(e.EventType),
		Status:     string(e.Status),
		NoShow:     e.NoShow,
		ClientName: e.ClientName,
		TestTypes:  append([]string(nil), e.TestTypes...),
	}
}

