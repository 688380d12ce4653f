package persistence

// Collections used by the console.
const (
	CollectionEvents        = "calendar_events"
	CollectionInventory     = "inventory"
	CollectionNotifications = "notifications"
	CollectionUsers         = "users"
	CollectionSessions      = "sessions"
)

// Fields is the JSON-compatible body of a document. Values are strings,
// float64 numbers, bools, nil, []any or map[string]any after a store round trip.
type Fields map[string]any

// Document is a stored record and its identifier.
type Document struct {
	ID     string
	Fields Fields
}

// Filter selects documents whose field equals value.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}
