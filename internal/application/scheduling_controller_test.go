package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/screening-console/internal/calendar"
	"github.com/example/screening-console/internal/datemath"
	"github.com/example/screening-console/internal/persistence"
	"github.com/example/screening-console/internal/testfixtures"
)

func TestSchedulingController_CompletionDeductsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	itemID := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemQuantity(10))

	created, err := h.controller.SaveEvent(ctx, SaveEventParams{
		Principal: testPrincipal,
		Input:     drugTestInput("2025-03-15", "09:00", "scheduled"),
	})
	if err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if created.Deduction != nil {
		t.Fatalf("expected no deduction for a scheduled event, got %#v", created.Deduction)
	}

	completed, err := h.controller.SaveEvent(ctx, SaveEventParams{
		Principal: testPrincipal,
		EventID:   created.Event.ID,
		Input:     drugTestInput("2025-03-15", "09:00", "completed"),
	})
	if err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if !completed.Deduction.Applied() || completed.LedgerWarn != "" {
		t.Fatalf("expected applied deduction, got %#v / %q", completed.Deduction, completed.LedgerWarn)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
		t.Fatalf("expected 9 cups, got %d", got)
	}

	resaved, err := h.controller.SaveEvent(ctx, SaveEventParams{
		Principal: testPrincipal,
		EventID:   created.Event.ID,
		Input:     drugTestInput("2025-03-15", "09:30", "completed"),
	})
	if err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if resaved.Deduction != nil {
		t.Fatalf("expected no second deduction, got %#v", resaved.Deduction)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
		t.Fatalf("expected cups to stay at 9, got %d", got)
	}

	notes, err := h.notifications.List(ctx, testPrincipal)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
}

func TestSchedulingController_NoShowDoesNotDeduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	itemID := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemQuantity(10))

	in := drugTestInput("2025-03-15", "09:00", "completed")
	in.NoShow = true
	result, err := h.controller.SaveEvent(ctx, SaveEventParams{Principal: testPrincipal, Input: in})
	if err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if result.Deduction != nil || !result.Event.NoShow {
		t.Fatalf("expected stored no-show without deduction, got %#v", result)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 10 {
		t.Fatalf("expected cups untouched, got %d", got)
	}
}

func TestSchedulingController_SkipDeductionStoresRecordOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	itemID := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemQuantity(10))

	result, err := h.controller.SaveEvent(ctx, SaveEventParams{
		Principal:     testPrincipal,
		Input:         drugTestInput("2025-03-15", "09:00", "completed"),
		SkipDeduction: true,
	})
	if err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if !result.Event.Completed() {
		t.Fatalf("expected completed event, got %#v", result.Event)
	}
	if result.Deduction != nil {
		t.Fatalf("expected no deduction, got %#v", result.Deduction)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 10 {
		t.Fatalf("expected cups untouched, got %d", got)
	}
}

func TestSchedulingController_InvalidInputWritesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()

	in := drugTestInput("2025-03-15", "", "scheduled")
	in.TestTypes = nil
	_, err := h.controller.SaveEvent(ctx, SaveEventParams{Principal: testPrincipal, Input: in})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	docs, err := h.store.Query(ctx, persistence.CollectionEvents)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no stored events, got %d", len(docs))
	}
}

type deducterStub struct {
	calls int
	err   error
}

func (d *deducterStub) Deduct(ctx context.Context, event CalendarEvent) (*DeductionReport, error) {
	d.calls++
	return &DeductionReport{EventID: event.ID}, d.err
}

func TestSchedulingController_LedgerFailureKeepsSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	ledger := &deducterStub{err: &DeductionError{EventID: "x", Failed: []string{"Urine Test Cups"}, Err: errors.New("boom")}}
	controller := NewSchedulingController(h.events, ledger, h.clock.NowFunc(), nil)

	result, err := controller.SaveEvent(ctx, SaveEventParams{
		Principal: testPrincipal,
		Input:     drugTestInput("2025-03-15", "09:00", "completed"),
	})
	if err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if ledger.calls != 1 || result.LedgerWarn == "" {
		t.Fatalf("expected ledger warning, calls=%d warn=%q", ledger.calls, result.LedgerWarn)
	}
	if _, err := controller.Event(ctx, testPrincipal, result.Event.ID); err != nil {
		t.Fatalf("expected event to be stored, got %v", err)
	}
}

func TestSchedulingController_Ownership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	other := Principal{UserID: "user-2"}
	id := testfixtures.SeedEvent(t, h.store, testfixtures.WithEventUser(other.UserID))

	if _, err := h.controller.Event(ctx, testPrincipal, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user's event to be invisible, got %v", err)
	}
	if _, err := h.controller.SaveEvent(ctx, SaveEventParams{
		Principal: testPrincipal,
		EventID:   id,
		Input:     drugTestInput("2025-03-15", "09:00", "scheduled"),
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.controller.Events(ctx, Principal{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without principal, got %v", err)
	}

	events, err := h.controller.Events(ctx, other)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected owner to see event, got %d (%v)", len(events), err)
	}
}

func TestSchedulingController_MoveAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	id := testfixtures.SeedEvent(t, h.store)

	if _, err := h.controller.MoveEvent(ctx, testPrincipal, id, "April 1st"); err == nil {
		t.Fatalf("expected invalid date to be rejected")
	}
	moved, err := h.controller.MoveEvent(ctx, testPrincipal, id, "2025-04-01")
	if err != nil {
		t.Fatalf("MoveEvent failed: %v", err)
	}
	if moved.Date.String() != "2025-04-01" {
		t.Fatalf("unexpected date %s", moved.Date)
	}

	onNew, _ := h.controller.EventsOnDate(ctx, testPrincipal, datemath.MustParseDate("2025-04-01"))
	onOld, _ := h.controller.EventsOnDate(ctx, testPrincipal, datemath.MustParseDate("2025-03-15"))
	if len(onNew) != 1 || len(onOld) != 0 {
		t.Fatalf("expected event to move, new=%d old=%d", len(onNew), len(onOld))
	}

	if err := h.controller.DeleteEvent(ctx, testPrincipal, id); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := h.controller.Event(ctx, testPrincipal, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSchedulingController_Views(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	testfixtures.SeedEvent(t, h.store)
	testfixtures.SeedEvent(t, h.store, testfixtures.WithEventTime(""), testfixtures.WithEventType("consultation"), testfixtures.WithEventClient("Walk In"))

	view, err := h.controller.View(ctx, testPrincipal, datemath.Date{}, calendar.ModeMonth)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Title != "March 2025" || len(view.Cells) != 42 {
		t.Fatalf("unexpected month view %q with %d cells", view.Title, len(view.Cells))
	}
	leading, current := 0, 0
	for _, cell := range view.Cells {
		if cell.InCurrentMonth {
			current++
		} else if current == 0 {
			leading++
		}
	}
	if leading != 6 || current != 31 {
		t.Fatalf("expected 6 leading and 31 current cells, got %d / %d", leading, current)
	}

	day := view.Cells[20]
	if day.Date.String() != "2025-03-15" || len(day.Events) != 2 {
		t.Fatalf("expected two events on March 15, got %s with %d", day.Date, len(day.Events))
	}
	if day.Events[0].ClientName != "Walk In" || day.Events[1].Time != "09:00" {
		t.Fatalf("expected untimed event first, got %#v", day.Events)
	}
	if !view.Cells[19].IsToday {
		t.Fatalf("expected March 14 to be today")
	}

	next, err := h.controller.Navigate(ctx, testPrincipal, datemath.MustParseDate("2025-03-15"), calendar.ModeWeek, calendar.Next)
	if err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if next.Reference.String() != "2025-03-22" || next.Mode != calendar.ModeWeek {
		t.Fatalf("expected week after, got %s %s", next.Mode, next.Reference)
	}

	prev, err := h.controller.Navigate(ctx, testPrincipal, datemath.MustParseDate("2025-03-31"), calendar.ModeMonth, calendar.Previous)
	if err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if prev.Title != "February 2025" {
		t.Fatalf("expected February, got %q", prev.Title)
	}
}

func TestSchedulingController_NewEventDefaults(t *testing.T) {
	t.Parallel()

	h := newConsoleHarness()
	defaults := h.controller.NewEventDefaults(datemath.Date{})
	if defaults.Date != "2025-03-14" || defaults.Time != "10:15" {
		t.Fatalf("expected today at 10:15, got %s %s", defaults.Date, defaults.Time)
	}
	if defaults.EventType != string(EventTypeDrugTesting) || defaults.Status != string(EventStatusScheduled) {
		t.Fatalf("unexpected defaults %#v", defaults)
	}

	picked := h.controller.NewEventDefaults(datemath.MustParseDate("2025-04-02"))
	if picked.Date != "2025-04-02" {
		t.Fatalf("expected chosen date, got %s", picked.Date)
	}
}
