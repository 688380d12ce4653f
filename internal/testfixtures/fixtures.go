package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/screening-console/internal/persistence"
)

var referenceTime = time.Date(2025, time.March, 14, 10, 7, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultUserID owns fixtures unless overridden.
const DefaultUserID = "user-1"

// ----------------------------- Event fixtures -----------------------------

// EventFixture is a stored calendar event document.
type EventFixture struct {
	UserID      string
	Date        string
	Time        string
	EventType   string
	ClientName  string
	CompanyName string
	TestTypes   []string
	TestMethod  string
	Status      string
	NoShow      bool
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a scheduled urine test on 2025-03-15 at 09:00.
func NewEventFixture(opts ...EventOption) EventFixture {
	fixture := EventFixture{
		UserID:      DefaultUserID,
		Date:        "2025-03-15",
		Time:        "09:00",
		EventType:   "drug-testing",
		ClientName:  "Jordan Client",
		CompanyName: "Acme",
		TestTypes:   []string{"urine"},
		TestMethod:  "express",
		Status:      "scheduled",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventUser overrides the owner.
func WithEventUser(id string) EventOption {
	return func(f *EventFixture) { f.UserID = id }
}

// WithEventDate overrides the date.
func WithEventDate(date string) EventOption {
	return func(f *EventFixture) { f.Date = date }
}

// WithEventTime overrides the time.
func WithEventTime(clock string) EventOption {
	return func(f *EventFixture) { f.Time = clock }
}

// WithEventType overrides the event type.
func WithEventType(eventType string) EventOption {
	return func(f *EventFixture) { f.EventType = eventType }
}

// WithEventStatus overrides the status.
func WithEventStatus(status string) EventOption {
	return func(f *EventFixture) { f.Status = status }
}

// WithEventTestTypes overrides the test types.
func WithEventTestTypes(types ...string) EventOption {
	return func(f *EventFixture) { f.TestTypes = types }
}

// WithEventClient overrides the client name.
func WithEventClient(name string) EventOption {
	return func(f *EventFixture) { f.ClientName = name }
}

// WithEventNoShow marks the event as a no-show.
func WithEventNoShow(noShow bool) EventOption {
	return func(f *EventFixture) { f.NoShow = noShow }
}

// Fields renders the fixture as a stored document.
func (f EventFixture) Fields() persistence.Fields {
	types := make([]any, 0, len(f.TestTypes))
	for _, t := range f.TestTypes {
		types = append(types, t)
	}
	created := persistence.FormatTime(referenceTime)
	return persistence.Fields{
		"userId":      f.UserID,
		"date":        f.Date,
		"time":        f.Time,
		"eventType":   f.EventType,
		"clientName":  f.ClientName,
		"companyName": f.CompanyName,
		"testType":    types,
		"testMethod":  f.TestMethod,
		"status":      f.Status,
		"noShow":      f.NoShow,
		"createdAt":   created,
		"updatedAt":   created,
	}
}

// --------------------------- Inventory fixtures ---------------------------

// InventoryFixture is a stored inventory document. Without allocations it
// mirrors the legacy flat-quantity shape.
type InventoryFixture struct {
	UserID       string
	ItemName     string
	CompanyName  string
	Category     string
	Quantity     int
	ReorderLevel int
	Notes        string
	Allocations  []AllocationFixture
	CreatedAt    time.Time
}

// AllocationFixture is one company share of an inventory fixture.
type AllocationFixture struct {
	CompanyID   string
	CompanyName string
	Qty         int
}

// InventoryOption configures the generated inventory fixture.
type InventoryOption func(*InventoryFixture)

// NewInventoryFixture returns ten urine cups with a reorder level of 3.
func NewInventoryFixture(opts ...InventoryOption) InventoryFixture {
	fixture := InventoryFixture{
		UserID:       DefaultUserID,
		ItemName:     "Urine Test Cups",
		CompanyName:  "Acme",
		Category:     "Testing Supplies",
		Quantity:     10,
		ReorderLevel: 3,
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithItemName overrides the item name.
func WithItemName(name string) InventoryOption {
	return func(f *InventoryFixture) { f.ItemName = name }
}

// WithItemUser overrides the owner.
func WithItemUser(id string) InventoryOption {
	return func(f *InventoryFixture) { f.UserID = id }
}

// WithItemQuantity overrides the flat quantity.
func WithItemQuantity(qty int) InventoryOption {
	return func(f *InventoryFixture) { f.Quantity = qty }
}

// WithItemReorderLevel overrides the reorder level.
func WithItemReorderLevel(level int) InventoryOption {
	return func(f *InventoryFixture) { f.ReorderLevel = level }
}

// WithItemCategory overrides the category.
func WithItemCategory(category string) InventoryOption {
	return func(f *InventoryFixture) { f.Category = category }
}

// WithItemNotes overrides the notes.
func WithItemNotes(notes string) InventoryOption {
	return func(f *InventoryFixture) { f.Notes = notes }
}

// WithItemCreatedAt overrides the creation time.
func WithItemCreatedAt(t time.Time) InventoryOption {
	return func(f *InventoryFixture) { f.CreatedAt = t }
}

// WithItemAllocations sets allocations; the stored quantity becomes their sum.
func WithItemAllocations(allocations ...AllocationFixture) InventoryOption {
	return func(f *InventoryFixture) {
		f.Allocations = allocations
		f.Quantity = 0
		for _, a := range allocations {
			f.Quantity += a.Qty
		}
	}
}

// Fields renders the fixture as a stored document.
func (f InventoryFixture) Fields() persistence.Fields {
	fields := persistence.Fields{
		"userId":       f.UserID,
		"itemName":     f.ItemName,
		"companyName":  f.CompanyName,
		"category":     f.Category,
		"quantity":     f.Quantity,
		"reorderLevel": f.ReorderLevel,
		"notes":        f.Notes,
		"createdAt":    persistence.FormatTime(f.CreatedAt),
		"updatedAt":    persistence.FormatTime(f.CreatedAt),
	}
	if len(f.Allocations) > 0 {
		allocations := make([]any, 0, len(f.Allocations))
		for _, a := range f.Allocations {
			allocations = append(allocations, map[string]any{
				"companyId":   a.CompanyID,
				"companyName": a.CompanyName,
				"qty":         a.Qty,
			})
		}
		fields["allocations"] = allocations
	}
	return fields
}

// ------------------------------- Seeding -------------------------------

// Seed adds fields to collection and returns the new document id.
func Seed(tb testing.TB, store persistence.DocumentStore, collection string, fields persistence.Fields) string {
	tb.Helper()
	id, err := store.Add(context.Background(), collection, fields)
	if err != nil {
		tb.Fatalf("seed %s: %v", collection, err)
	}
	return id
}

// SeedEvent stores an event fixture.
func SeedEvent(tb testing.TB, store persistence.DocumentStore, opts ...EventOption) string {
	tb.Helper()
	return Seed(tb, store, persistence.CollectionEvents, NewEventFixture(opts...).Fields())
}

// SeedInventory stores an inventory fixture.
func SeedInventory(tb testing.TB, store persistence.DocumentStore, opts ...InventoryOption) string {
	tb.Helper()
	return Seed(tb, store, persistence.CollectionInventory, NewInventoryFixture(opts...).Fields())
}

// Quantity reads the stored quantity of an inventory document.
func Quantity(tb testing.TB, store persistence.DocumentStore, id string) int {
	tb.Helper()
	doc, err := store.Get(context.Background(), persistence.CollectionInventory, id)
	if err != nil {
		tb.Fatalf("get inventory %s: %v", id, err)
	}
	return doc.Fields.Int("quantity")
}
