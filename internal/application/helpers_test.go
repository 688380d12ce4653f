package application

import (
	"context"
	"sync"
	"time"

	"github.com/example/screening-console/internal/persistence"
	"github.com/example/screening-console/internal/supplies"
	"github.com/example/screening-console/internal/testfixtures"
)

var testPrincipal = Principal{UserID: testfixtures.DefaultUserID, Email: "admin@example.com"}

// faultyStore wraps a DocumentStore and fails selected operations.
type faultyStore struct {
	persistence.DocumentStore

	mu        sync.Mutex
	addErr    error
	updateErr error
	deleteErr error
	queryErr  error
	updates   int
}

func (s *faultyStore) Add(ctx context.Context, collection string, fields persistence.Fields) (string, error) {
	s.mu.Lock()
	err := s.addErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.DocumentStore.Add(ctx, collection, fields)
}

func (s *faultyStore) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	s.mu.Lock()
	err := s.updateErr
	s.updates++
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.DocumentStore.Update(ctx, collection, id, fields)
}

func (s *faultyStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.DocumentStore.Delete(ctx, collection, id)
}

func (s *faultyStore) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	s.mu.Lock()
	err := s.queryErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.DocumentStore.Query(ctx, collection, filters...)
}

func (s *faultyStore) failUpdates(err error) {
	s.mu.Lock()
	s.updateErr = err
	s.mu.Unlock()
}

// consoleHarness wires the application services over one in-memory store.
type consoleHarness struct {
	store         *faultyStore
	clock         *testfixtures.Clock
	events        *EventStoreRegistry
	inventory     *InventoryService
	notifications *NotificationService
	ledger        *SupplyLedger
	controller    *SchedulingController
}

func newConsoleHarness() *consoleHarness {
	store := &faultyStore{DocumentStore: testfixtures.NewMemoryStore()}
	clock := testfixtures.NewClock(time.Time{})
	h := &consoleHarness{store: store, clock: clock}
	h.events = NewEventStoreRegistry(store, clock.NowFunc(), nil)
	h.inventory = NewInventoryService(store, clock.NowFunc())
	h.notifications = NewNotificationService(store, clock.NowFunc())
	h.ledger = NewSupplyLedger(h.inventory, h.notifications, supplies.Current())
	h.controller = NewSchedulingController(h.events, h.ledger, clock.NowFunc(), time.UTC)
	return h
}

func drugTestInput(date, clock, status string) EventInput {
	return EventInput{
		Date:        date,
		Time:        clock,
		EventType:   string(EventTypeDrugTesting),
		ClientName:  "Jordan Client",
		CompanyName: "Acme",
		TestTypes:   []string{"urine"},
		TestMethod:  TestMethodExpress,
		Status:      status,
	}
}
