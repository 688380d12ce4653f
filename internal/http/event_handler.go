package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/screening-console/internal/application"
	"github.com/example/screening-console/internal/datemath"
)

type eventService interface {
	Events(ctx context.Context, principal application.Principal) ([]application.CalendarEvent, error)
	Event(ctx context.Context, principal application.Principal, id string) (application.CalendarEvent, error)
	EventsOnDate(ctx context.Context, principal application.Principal, date datemath.Date) ([]application.CalendarEvent, error)
	SaveEvent(ctx context.Context, params application.SaveEventParams) (application.SaveEventResult, error)
	DeleteEvent(ctx context.Context, principal application.Principal, id string) error
	MoveEvent(ctx context.Context, principal application.Principal, id, date string) (application.CalendarEvent, error)
}

// EventHandler exposes calendar event CRUD.
type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := consoleLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List returns every event, or only those on ?date=YYYY-MM-DD.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		events []application.CalendarEvent
		err    error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, parseErr := datemath.ParseDate(raw)
		if parseErr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		events, err = h.service.EventsOnDate(r.Context(), principal, date)
	} else {
		events, err = h.service.Events(r.Context(), principal)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

// Get returns a single event.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.Event(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

// Create stores a new event.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "", http.StatusCreated)
}

// Update replaces an existing event.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}
	h.save(w, r, id, http.StatusOK)
}

func (h *EventHandler) save(w http.ResponseWriter, r *http.Request, id string, status int) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Save", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.SaveEvent(r.Context(), application.SaveEventParams{
		Principal: principal,
		EventID:   id,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, status, saveEventResponse{
		Event:     toEventDTO(result.Event),
		Deduction: result.Deduction,
		Warning:   result.LedgerWarn,
	})
}

// Delete removes an event.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Move reschedules an event to another date, keeping its time.
func (h *EventHandler) Move(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req moveEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.MoveEvent(r.Context(), principal, id, req.Date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.log(r.Context(), "Move", "event_id", id).InfoContext(r.Context(), "event moved", "date", event.Date.String())
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

type eventRequest struct {
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	EventType   string   `json:"eventType"`
	ClientName  string   `json:"clientName"`
	CompanyName string   `json:"companyName"`
	TestTypes   []string `json:"testType"`
	TestMethod  string   `json:"testMethod"`
	Status      string   `json:"status"`
	NoShow      bool     `json:"noShow"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{
		Date:        strings.TrimSpace(r.Date),
		Time:        strings.TrimSpace(r.Time),
		EventType:   r.EventType,
		ClientName:  r.ClientName,
		CompanyName: r.CompanyName,
		TestTypes:   append([]string(nil), r.TestTypes...),
		TestMethod:  r.TestMethod,
		Status:      r.Status,
		NoShow:      r.NoShow,
	}
}

type moveEventRequest struct {
	Date string `json:"date"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type saveEventResponse struct {
	Event     eventDTO                     `json:"event"`
	Deduction *application.DeductionReport `json:"deduction,omitempty"`
	Warning   string                       `json:"warning,omitempty"`
}

type eventDTO struct {
	ID          string   `json:"id"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	EventType   string   `json:"eventType"`
	ClientName  string   `json:"clientName"`
	CompanyName string   `json:"companyName,omitempty"`
	TestTypes   []string `json:"testType,omitempty"`
	TestMethod  string   `json:"testMethod,omitempty"`
	Status      string   `json:"status"`
	NoShow      bool     `json:"noShow"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func toEventDTO(event application.CalendarEvent) eventDTO {
	return eventDTO{
		ID:          event.ID,
		Date:        event.Date.String(),
		Time:        event.Time,
		EventType:   string(event.EventType),
		ClientName:  event.ClientName,
		CompanyName: event.CompanyName,
		TestTypes:   append([]string(nil), event.TestTypes...),
		TestMethod:  event.TestMethod,
		Status:      string(event.Status),
		NoShow:      event.NoShow,
		CreatedAt:   event.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   event.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toEventDTOs(events []application.CalendarEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}
