package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/screening-console/internal/datemath"
	"github.com/example/screening-console/internal/persistence"
)

// EventStore caches one user's calendar events and keeps the cache in step
// with the document store. Writes go to the store first; the cache changes
// only after the store accepted the write.
type EventStore struct {
	store  persistence.DocumentStore
	userID string
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	loaded bool
	events map[string]CalendarEvent
}

// NewEventStore constructs an EventStore for userID.
func NewEventStore(store persistence.DocumentStore, userID string, now func() time.Time) *EventStore {
	return NewEventStoreWithLogger(store, userID, now, nil)
}

// NewEventStoreWithLogger constructs an EventStore with a specified logger.
func NewEventStoreWithLogger(store persistence.DocumentStore, userID string, now func() time.Time, logger *slog.Logger) *EventStore {
	if now == nil {
		now = time.Now
	}
	return &EventStore{
		store:  store,
		userID: userID,
		now:    now,
		logger: defaultLogger(logger),
		events: make(map[string]CalendarEvent),
	}
}

func (s *EventStore) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventStore", operation, append([]any{"user_id", s.userID}, attrs...)...)
}

// UserID returns the owner of the cached events.
func (s *EventStore) UserID() string {
	return s.userID
}

// Load replaces the cache with the user's stored events. Documents that
// cannot be decoded are skipped with a warning.
func (s *EventStore) Load(ctx context.Context) (events []CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("EventStore is nil")
		return
	}
	logger := s.loggerWith(ctx, "Load")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "load events failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "events loaded", "count", len(events))
	}()

	docs, err := s.store.Query(ctx, persistence.CollectionEvents, persistence.Where("userId", s.userID))
	if err != nil {
		err = fmt.Errorf("query events: %w", err)
		return
	}

	fresh := make(map[string]CalendarEvent, len(docs))
	for _, doc := range docs {
		event, decodeErr := decodeEvent(doc)
		if decodeErr != nil {
			logger.WarnContext(ctx, "skipping unreadable event", "event_id", doc.ID, "error", decodeErr)
			continue
		}
		fresh[event.ID] = event
	}

	s.mu.Lock()
	s.events = fresh
	s.loaded = true
	s.mu.Unlock()

	events = s.All()
	return
}

// Loaded reports whether Load has completed at least once.
func (s *EventStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// All returns every cached event ordered by date, time and id.
func (s *EventStore) All() []CalendarEvent {
	s.mu.RLock()
	out := make([]CalendarEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return lessByTime(out[i], out[j])
	})
	return out
}

// Get returns a cached event.
func (s *EventStore) Get(id string) (CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	return e, ok
}

// EventsOnDate returns the events scheduled on date, untimed first, then by
// time and id.
func (s *EventStore) EventsOnDate(date datemath.Date) []CalendarEvent {
	s.mu.RLock()
	out := make([]CalendarEvent, 0)
	for _, e := range s.events {
		if e.Date == date {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return lessByTime(out[i], out[j]) })
	return out
}

func lessByTime(a, b CalendarEvent) bool {
	ka, kb := datemath.SortKey(a.Time), datemath.SortKey(b.Time)
	if ka != kb {
		return ka < kb
	}
	return a.ID < b.ID
}

// Save creates the event when it has no id and updates it otherwise. The
// owner is always the store's user and createdAt is preserved on update.
func (s *EventStore) Save(ctx context.Context, event CalendarEvent) (saved CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("EventStore is nil")
		return
	}
	logger := s.loggerWith(ctx, "Save", "event_id", event.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "save event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event saved", "saved_id", saved.ID, "date", saved.Date.String())
	}()

	now := s.now()
	event.UserID = s.userID
	event.UpdatedAt = now

	if event.ID == "" {
		event.CreatedAt = now
		var id string
		id, err = s.store.Add(ctx, persistence.CollectionEvents, encodeEvent(event))
		if err != nil {
			err = fmt.Errorf("add event: %w", err)
			return
		}
		event.ID = id
	} else {
		existing, ok := s.Get(event.ID)
		if !ok {
			err = ErrNotFound
			return
		}
		event.CreatedAt = existing.CreatedAt
		if err = s.store.Update(ctx, persistence.CollectionEvents, event.ID, encodeEvent(event)); err != nil {
			err = translateStoreError("update event", err)
			return
		}
	}

	s.mu.Lock()
	s.events[event.ID] = event
	s.mu.Unlock()

	saved = event
	return
}

// Delete removes an event from the store and the cache.
func (s *EventStore) Delete(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("EventStore is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "delete event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if _, ok := s.Get(id); !ok {
		return ErrNotFound
	}
	if err = s.store.Delete(ctx, persistence.CollectionEvents, id); err != nil {
		return translateStoreError("delete event", err)
	}

	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
	return nil
}

// MoveToDate reschedules an event onto date keeping its time.
func (s *EventStore) MoveToDate(ctx context.Context, id string, date datemath.Date) (moved CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("EventStore is nil")
		return
	}
	logger := s.loggerWith(ctx, "MoveToDate", "event_id", id, "date", date.String())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "move event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event moved")
	}()

	event, ok := s.Get(id)
	if !ok {
		err = ErrNotFound
		return
	}
	if date.IsZero() {
		vErr := &ValidationError{}
		vErr.add("date", "Please select a valid date.")
		err = vErr
		return
	}

	event.Date = date
	event.UpdatedAt = s.now()
	patch := persistence.Fields{
		"date":      date.String(),
		"updatedAt": persistence.FormatTime(event.UpdatedAt),
	}
	if err = s.store.Update(ctx, persistence.CollectionEvents, id, patch); err != nil {
		err = translateStoreError("move event", err)
		return
	}

	s.mu.Lock()
	s.events[id] = event
	s.mu.Unlock()

	moved = event
	return
}

func translateStoreError(op string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// EventStoreRegistry hands out one loaded EventStore per user.
type EventStoreRegistry struct {
	store  persistence.DocumentStore
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]*EventStore
}

// NewEventStoreRegistry constructs a registry backed by store.
func NewEventStoreRegistry(store persistence.DocumentStore, now func() time.Time, logger *slog.Logger) *EventStoreRegistry {
	return &EventStoreRegistry{
		store:  store,
		now:    now,
		logger: defaultLogger(logger),
		stores: make(map[string]*EventStore),
	}
}

// For returns the user's EventStore, loading it on first use.
func (r *EventStoreRegistry) For(ctx context.Context, userID string) (*EventStore, error) {
	if r == nil {
		return nil, fmt.Errorf("EventStoreRegistry is nil")
	}
	if userID == "" {
		return nil, ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[userID]; ok {
		return s, nil
	}

	s := NewEventStoreWithLogger(r.store, userID, r.now, r.logger)
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	r.stores[userID] = s
	return s, nil
}

// Evict drops a user's cached store so the next For reloads it.
func (r *EventStoreRegistry) Evict(userID string) {
	r.mu.Lock()
	delete(r.stores, userID)
	r.mu.Unlock()
}

// HandleSessionChange evicts the cache of users who signed out.
func (r *EventStoreRegistry) HandleSessionChange(change SessionChange) {
	if change.Kind == SessionSignedOut && change.UserID != "" {
		r.Evict(change.UserID)
	}
}
