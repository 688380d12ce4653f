package application

import (
	"time"

	"github.com/example/screening-console/internal/datemath"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	IsAdmin     bool
}

// EventType classifies a calendar event.
type EventType string

const (
	EventTypeDrugTesting  EventType = "drug-testing"
	EventTypeConsultation EventType = "consultation"
	EventTypeFollowUp     EventType = "follow-up"
	EventTypeOther        EventType = "other"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Test methods offered for drug tests.
const (
	TestMethodExpress      = "express"
	TestMethodExpressToLab = "express-to-lab"
	TestMethodLab          = "lab"
)

// CalendarEvent is a scheduled appointment owned by one user.
type CalendarEvent struct {
	ID          string
	UserID      string
	Date        datemath.Date
	Time        string
	EventType   EventType
	ClientName  string
	CompanyName string
	TestTypes   []string
	TestMethod  string
	Status      EventStatus
	NoShow      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Completed reports whether the event is a drug test that was actually carried out.
func (e CalendarEvent) Completed() bool {
	return e.EventType == EventTypeDrugTesting && e.Status == EventStatusCompleted && !e.NoShow
}

// EventInput captures caller provided event fields.
type EventInput struct {
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

// SaveEventParams wraps the data required to create or update an event.
// An empty EventID creates a new event. SkipDeduction saves the event as a
// record without consuming supplies, as for imported history.
type SaveEventParams struct {
	Principal     Principal
	EventID       string
	Input         EventInput
	SkipDeduction bool
}

// SaveEventResult is the outcome of a save, including any supply deduction.
type SaveEventResult struct {
	Event      CalendarEvent
	Deduction  *DeductionReport
	LedgerWarn string
}

// Allocation is the share of an inventory item held for one company.
type Allocation struct {
	CompanyID   string
	CompanyName string
	Qty         int
}

// StockStatus is derived from quantity and reorder level.
type StockStatus string

const (
	StockOut StockStatus = "out of stock"
	StockLow StockStatus = "low stock"
	StockIn  StockStatus = "in stock"
)

// InventoryItem is a supply line tracked for one user.
type InventoryItem struct {
	ID           string
	UserID       string
	ItemName     string
	CompanyName  string
	Category     string
	Allocations  []Allocation
	Quantity     int
	ReorderLevel int
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Status returns the stock status of the item.
func (i InventoryItem) Status() StockStatus {
	switch {
	case i.Quantity <= 0:
		return StockOut
	case i.Quantity <= i.ReorderLevel:
		return StockLow
	}
	return StockIn
}

// InventoryInput captures caller provided inventory fields.
type InventoryInput struct {
	ItemName     string
	CompanyName  string
	Category     string
	Allocations  []Allocation
	Quantity     int
	ReorderLevel int
	Notes        string
}

// SaveInventoryParams wraps the data required to create or update an item.
type SaveInventoryParams struct {
	Principal Principal
	ItemID    string
	Input     InventoryInput
}

// ListInventoryParams narrows and orders an inventory listing.
type ListInventoryParams struct {
	Principal Principal
	Query     string
	Category  string
	SortField string
	SortDesc  bool
}

// NotificationKind groups notifications for display.
type NotificationKind string

const (
	NotificationInventory NotificationKind = "inventory"
	NotificationEvent     NotificationKind = "event"
	NotificationAlert     NotificationKind = "alert"
	NotificationInfo      NotificationKind = "info"
)

// Notification is an entry in a user's notification log.
type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	Title     string
	Message   string
	Data      map[string]any
	IsRead    bool
	CreatedAt time.Time
	ReadAt    *time.Time
}

// User represents a console account.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
	Disabled     bool
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}
