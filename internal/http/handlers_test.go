package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/screening-console/internal/application"
	"github.com/example/screening-console/internal/persistence"
	"github.com/example/screening-console/internal/supplies"
	"github.com/example/screening-console/internal/testfixtures"
)

const testPassword = "s3cret"

func plainVerifier(hashed, password string) error {
	if hashed != password {
		return errors.New("password mismatch")
	}
	return nil
}

// apiHarness serves the full API over an in-memory store.
type apiHarness struct {
	handler http.Handler
	store   persistence.DocumentStore
	clock   *testfixtures.Clock
	userID  string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	ctx := context.Background()
	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(time.Time{})
	now := clock.NowFunc()

	accounts := application.NewAccountStore(store, now)
	user, err := accounts.EnsureAccount(ctx, "admin@example.com", "Admin", testPassword, true)
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	n := 0
	tokens := func() string {
		n++
		return fmt.Sprintf("token-%d", n)
	}
	auth := application.NewAuthService(accounts, application.AuthOptions{
		Verify:     plainVerifier,
		NewToken:   tokens,
		Now:        now,
		SessionTTL: time.Hour,
	})
	sessions := application.NewSessionManager(auth, nil, nil)
	if err := sessions.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	registry := application.NewEventStoreRegistry(store, now, nil)
	sessions.Subscribe(registry.HandleSessionChange)
	inventory := application.NewInventoryService(store, now)
	notifications := application.NewNotificationService(store, now)
	ledger := application.NewSupplyLedger(inventory, notifications, supplies.Current())
	controller := application.NewSchedulingController(registry, ledger, now, time.UTC)

	router := NewRouter(RouterConfig{
		Auth:          NewAuthHandler(sessions, nil),
		Events:        NewEventHandler(controller, nil),
		Calendar:      NewCalendarHandler(controller, nil),
		Inventory:     NewInventoryHandler(inventory, nil),
		Notifications: NewNotificationHandler(notifications, nil),
	})

	return &apiHarness{
		handler: Protect(router, sessions, nil, "/sessions"),
		store:   store,
		clock:   clock,
		userID:  user.ID,
	}
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) login(t *testing.T) string {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/sessions", "", map[string]string{"email": "admin@example.com", "password": testPassword})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from login, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("login issues session token via cookie and header", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		rec := h.do(t, http.MethodPost, "/sessions", "", map[string]string{"email": " ADMIN@example.com ", "password": testPassword})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		var resp loginResponse
		decodeBody(t, rec, &resp)
		if resp.Token == "" || rec.Header().Get("X-Session-Token") != resp.Token {
			t.Fatalf("expected token in body and header, got %#v", resp)
		}
		if resp.Principal.UserID != h.userID || !resp.Principal.IsAdmin {
			t.Fatalf("unexpected principal %#v", resp.Principal)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != "session_token" || cookies[0].Value != resp.Token {
			t.Fatalf("expected session cookie, got %#v", cookies)
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		rec := h.do(t, http.MethodPost, "/sessions", "", map[string]string{"email": "admin@example.com", "password": "nope"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		var resp errorResponse
		decodeBody(t, rec, &resp)
		if resp.ErrorCode != "AUTH_INVALID_CREDENTIALS" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)

		if rec := h.do(t, http.MethodDelete, "/sessions/current", token, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		rec := h.do(t, http.MethodGet, "/events", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
		}
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		if rec := h.do(t, http.MethodGet, "/inventory", "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestEventHandlers(t *testing.T) {
	t.Parallel()

	t.Run("completing a drug test deducts supplies", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)
		itemID := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemUser(h.userID), testfixtures.WithItemQuantity(10))

		body := map[string]any{
			"date":        "2025-03-15",
			"time":        "9:00",
			"eventType":   "drug-testing",
			"clientName":  "Jordan Client",
			"companyName": "Acme",
			"testType":    []string{"urine"},
			"testMethod":  "express",
			"status":      "scheduled",
		}
		rec := h.do(t, http.MethodPost, "/events", token, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var created saveEventResponse
		decodeBody(t, rec, &created)
		if created.Event.Time != "09:00" || created.Deduction != nil {
			t.Fatalf("unexpected create response %#v", created)
		}

		body["status"] = "completed"
		rec = h.do(t, http.MethodPut, "/events/"+created.Event.ID, token, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var completed saveEventResponse
		decodeBody(t, rec, &completed)
		if completed.Deduction == nil || len(completed.Deduction.Deductions) != 1 || completed.Deduction.Deductions[0].NewQuantity != 9 {
			t.Fatalf("expected one deduction to 9, got %#v", completed.Deduction)
		}
		if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
			t.Fatalf("expected 9 cups in store, got %d", got)
		}

		rec = h.do(t, http.MethodGet, "/notifications", token, nil)
		var notes listNotificationsResponse
		decodeBody(t, rec, &notes)
		if notes.Unread != 1 || len(notes.Notifications) != 1 || notes.Notifications[0].Type != "inventory" {
			t.Fatalf("expected one inventory notification, got %#v", notes)
		}
	})

	t.Run("validation errors map to 422 with field details", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)

		rec := h.do(t, http.MethodPost, "/events", token, map[string]any{"date": "2025-02-30", "eventType": "drug-testing"})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		var resp errorResponse
		decodeBody(t, rec, &resp)
		for _, field := range []string{"date", "clientName", "testType", "testMethod"} {
			if resp.Errors[field] == "" {
				t.Fatalf("expected error for %s, got %#v", field, resp.Errors)
			}
		}
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)
		if rec := h.do(t, http.MethodPost, "/events", token, "{"); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("move list and delete", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)
		id := testfixtures.SeedEvent(t, h.store, testfixtures.WithEventUser(h.userID))

		rec := h.do(t, http.MethodPost, "/events/"+id+"/move", token, map[string]string{"date": "2025-03-20"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var moved eventDTO
		decodeBody(t, rec, &moved)
		if moved.Date != "2025-03-20" {
			t.Fatalf("expected moved date, got %q", moved.Date)
		}

		rec = h.do(t, http.MethodGet, "/events?date=2025-03-20", token, nil)
		var list listEventsResponse
		decodeBody(t, rec, &list)
		if len(list.Events) != 1 || list.Events[0].ID != id {
			t.Fatalf("expected event on the new date, got %#v", list.Events)
		}

		if rec := h.do(t, http.MethodDelete, "/events/"+id, token, nil); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if rec := h.do(t, http.MethodGet, "/events/"+id, token, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", rec.Code)
		}
		if rec := h.do(t, http.MethodGet, "/events?date=20-03-2025", token, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad date, got %d", rec.Code)
		}
	})

	t.Run("unsupported methods", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t)
		token := h.login(t)
		rec := h.do(t, http.MethodPatch, "/events", token, nil)
		if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET, POST" {
			t.Fatalf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
		}
	})
}

func TestCalendarHandlers(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	token := h.login(t)
	seededID := testfixtures.SeedEvent(t, h.store, testfixtures.WithEventUser(h.userID))

	t.Run("month view", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/calendar?mode=month&date=2025-03-10", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var view struct {
			Title string            `json:"title"`
			Cells []json.RawMessage `json:"cells"`
		}
		decodeBody(t, rec, &view)
		if view.Title != "March 2025" || len(view.Cells) != 42 {
			t.Fatalf("unexpected view %q with %d cells", view.Title, len(view.Cells))
		}
	})

	t.Run("navigate", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/calendar/navigate?mode=month&date=2025-03-31&direction=previous", token, nil)
		var view struct {
			Title string `json:"title"`
		}
		decodeBody(t, rec, &view)
		if view.Title != "February 2025" {
			t.Fatalf("expected February 2025, got %q", view.Title)
		}
		if rec := h.do(t, http.MethodGet, "/calendar/navigate?direction=sideways", token, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad direction, got %d", rec.Code)
		}
		if rec := h.do(t, http.MethodGet, "/calendar?mode=year", token, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad mode, got %d", rec.Code)
		}
	})

	t.Run("form helpers", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/calendar/new-event", token, nil)
		var form eventRequest
		decodeBody(t, rec, &form)
		if form.Date != "2025-03-14" || form.Time != "10:15" {
			t.Fatalf("unexpected defaults %#v", form)
		}

		rec = h.do(t, http.MethodGet, "/calendar/time-options", token, nil)
		var options struct {
			Hours   []string `json:"hours"`
			Minutes []string `json:"minutes"`
		}
		decodeBody(t, rec, &options)
		if len(options.Hours) != 24 || len(options.Minutes) != 4 {
			t.Fatalf("unexpected options %#v", options)
		}
	})

	t.Run("ics feed and import", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/calendar/calendar.ics", token, nil)
		if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
			t.Fatalf("expected calendar feed, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
		}
		if !strings.Contains(rec.Body.String(), "BEGIN:VEVENT") {
			t.Fatalf("expected a VEVENT in feed")
		}

		rec = h.do(t, http.MethodPost, "/calendar/import", token, rec.Body.String())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from import, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp importResponse
		decodeBody(t, rec, &resp)
		if len(resp.Imported) != 1 || len(resp.Failed) != 0 {
			t.Fatalf("expected one imported event, got %#v", resp)
		}
		if resp.Imported[0].ID != seededID {
			t.Fatalf("expected feed UID to update %s, got %s", seededID, resp.Imported[0].ID)
		}

		if rec := h.do(t, http.MethodPost, "/calendar/import", token, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty import, got %d", rec.Code)
		}
	})
}

func TestCalendarImportKeepsSupplies(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	token := h.login(t)
	itemID := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemUser(h.userID), testfixtures.WithItemQuantity(10))

	body := map[string]any{
		"date":        "2025-03-15",
		"time":        "09:00",
		"eventType":   "drug-testing",
		"clientName":  "Jordan Client",
		"companyName": "Acme",
		"testType":    []string{"urine"},
		"testMethod":  "express",
		"status":      "scheduled",
	}
	rec := h.do(t, http.MethodPost, "/events", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created saveEventResponse
	decodeBody(t, rec, &created)
	body["status"] = "completed"
	if rec := h.do(t, http.MethodPut, "/events/"+created.Event.ID, token, body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
		t.Fatalf("expected 9 cups after completion, got %d", got)
	}

	feed := h.do(t, http.MethodGet, "/calendar/calendar.ics", token, nil).Body.String()

	importFeed := func(t *testing.T) importResponse {
		t.Helper()
		rec := h.do(t, http.MethodPost, "/calendar/import", token, feed)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from import, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp importResponse
		decodeBody(t, rec, &resp)
		if len(resp.Imported) != 1 || len(resp.Failed) != 0 {
			t.Fatalf("expected one imported event, got %#v", resp)
		}
		if resp.Imported[0].Status != "completed" {
			t.Fatalf("expected completed record, got %q", resp.Imported[0].Status)
		}
		return resp
	}
	countEvents := func(t *testing.T) int {
		t.Helper()
		var list listEventsResponse
		decodeBody(t, h.do(t, http.MethodGet, "/events", token, nil), &list)
		return len(list.Events)
	}

	resp := importFeed(t)
	if resp.Imported[0].ID != created.Event.ID {
		t.Fatalf("expected import to update %s, got %s", created.Event.ID, resp.Imported[0].ID)
	}
	if got := countEvents(t); got != 1 {
		t.Fatalf("expected event count to stay at 1, got %d", got)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
		t.Fatalf("expected cups to stay at 9 after re-import, got %d", got)
	}

	if rec := h.do(t, http.MethodDelete, "/events/"+created.Event.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	resp = importFeed(t)
	if resp.Imported[0].ID == created.Event.ID {
		t.Fatalf("expected a new event for an unknown UID, got %s", resp.Imported[0].ID)
	}
	if got := countEvents(t); got != 1 {
		t.Fatalf("expected restored event only, got %d", got)
	}
	if got := testfixtures.Quantity(t, h.store, itemID); got != 9 {
		t.Fatalf("expected cups to stay at 9 after restore, got %d", got)
	}
}

func TestInventoryHandlers(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	token := h.login(t)

	rec := h.do(t, http.MethodPost, "/inventory", token, map[string]any{
		"itemName":     "Urine Test Cups",
		"category":     "Testing Supplies",
		"reorderLevel": 5,
		"allocations": []map[string]any{
			{"companyName": "Acme Labs", "qty": 3},
			{"companyName": "Globex", "qty": 4},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var item inventoryDTO
	decodeBody(t, rec, &item)
	if item.Quantity != 7 || item.Status != "in stock" || item.Allocations[0].CompanyID != "acme-labs" {
		t.Fatalf("unexpected item %#v", item)
	}

	rec = h.do(t, http.MethodPut, "/inventory/"+item.ID+"/quantity", token, map[string]int{"quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &item)
	if item.Quantity != 2 || item.Status != "low stock" || item.Allocations[0].Qty != 0 || item.Allocations[1].Qty != 2 {
		t.Fatalf("unexpected adjusted item %#v", item)
	}

	if rec := h.do(t, http.MethodPut, "/inventory/"+item.ID+"/quantity", token, map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without quantity, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/inventory", token, map[string]any{"itemName": "Urine Test Cups", "category": "Other"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for duplicate name, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/inventory?q=low+stock&sort=quantity&desc=true", token, nil)
	var list listInventoryResponse
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != item.ID {
		t.Fatalf("expected the low stock item, got %#v", list.Items)
	}

	rec = h.do(t, http.MethodGet, "/inventory/categories", token, nil)
	var categories map[string][]string
	decodeBody(t, rec, &categories)
	if len(categories["categories"]) != 1 || categories["categories"][0] != "Testing Supplies" {
		t.Fatalf("unexpected categories %#v", categories)
	}

	if rec := h.do(t, http.MethodDelete, "/inventory/"+item.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/inventory/"+item.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNotificationHandlers(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	token := h.login(t)
	notifications := application.NewNotificationService(h.store, h.clock.NowFunc())
	ctx := context.Background()
	first, err := notifications.Notify(ctx, h.userID, application.NotificationAlert, "Low Stock", "Masks", nil)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if _, err := notifications.Notify(ctx, h.userID, application.NotificationInfo, "Hello", "", nil); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	other, err := notifications.Notify(ctx, "someone-else", application.NotificationInfo, "Private", "", nil)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if rec := h.do(t, http.MethodPost, "/notifications/"+first.ID+"/read", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/notifications/"+other.ID+"/read", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's notification, got %d", rec.Code)
	}

	rec := h.do(t, http.MethodGet, "/notifications", token, nil)
	var resp listNotificationsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Notifications) != 2 || resp.Unread != 1 {
		t.Fatalf("expected 2 notifications with 1 unread, got %#v", resp)
	}

	rec = h.do(t, http.MethodPost, "/notifications/read-all", token, nil)
	var updated map[string]int
	decodeBody(t, rec, &updated)
	if updated["updated"] != 1 {
		t.Fatalf("expected 1 updated, got %#v", updated)
	}

	if rec := h.do(t, http.MethodDelete, "/notifications/"+first.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
