package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/screening-console/internal/application"
	"github.com/example/screening-console/internal/calendar"
	"github.com/example/screening-console/internal/datemath"
	"github.com/example/screening-console/internal/ics"
)

const maxImportBytes = 1 << 20

type calendarService interface {
	View(ctx context.Context, principal application.Principal, reference datemath.Date, mode calendar.Mode) (calendar.View, error)
	Navigate(ctx context.Context, principal application.Principal, reference datemath.Date, mode calendar.Mode, dir calendar.Direction) (calendar.View, error)
	NewEventDefaults(date datemath.Date) application.EventInput
	Events(ctx context.Context, principal application.Principal) ([]application.CalendarEvent, error)
	SaveEvent(ctx context.Context, params application.SaveEventParams) (application.SaveEventResult, error)
	Now() time.Time
	Location() *time.Location
}

// CalendarHandler serves the month and week grids, form defaults and the
// iCalendar feed.
type CalendarHandler struct {
	service   calendarService
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(service calendarService, logger *slog.Logger) *CalendarHandler {
	base := consoleLogger(logger)
	return &CalendarHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

// View renders ?mode=month|week around ?date=YYYY-MM-DD (default today).
func (h *CalendarHandler) View(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reference, mode, err := viewQuery(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	view, err := h.service.View(r.Context(), principal, reference, mode)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, view)
}

// Navigate renders the previous or next period (?direction=previous|next).
func (h *CalendarHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reference, mode, err := viewQuery(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	var dir calendar.Direction
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("direction"))) {
	case "next":
		dir = calendar.Next
	case "previous", "prev":
		dir = calendar.Previous
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("Direction must be previous or next."))
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	view, err := h.service.Navigate(r.Context(), principal, reference, mode, dir)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, view)
}

// TimeOptions lists the selectable hours and minutes.
func (h *CalendarHandler) TimeOptions(w http.ResponseWriter, r *http.Request) {
	h.responder.writeJSON(r.Context(), w, http.StatusOK, datemath.GenerateTimeOptions())
}

// NewEvent returns the prefilled form for ?date=YYYY-MM-DD.
func (h *CalendarHandler) NewEvent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var date datemath.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := datemath.ParseDate(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		date = parsed
	}

	defaults := h.service.NewEventDefaults(date)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventRequest{
		Date:      defaults.Date,
		Time:      defaults.Time,
		EventType: defaults.EventType,
		Status:    defaults.Status,
	})
}

// Feed writes the principal's events as an iCalendar document.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	events, err := h.service.Events(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	feed := ics.Encode(events, ics.Options{
		Name:     "Drug Testing Schedule",
		Location: h.service.Location(),
		Stamp:    h.service.Now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(feed)); err != nil {
		h.log(r.Context(), "Feed").ErrorContext(r.Context(), "failed to write feed", "error", err)
	}
}

// Import saves every VEVENT of an uploaded iCalendar document. A UID that
// names one of the principal's events updates it in place; anything else is
// created. Imported records never consume supplies. Invalid entries are
// reported and skipped.
func (h *CalendarHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	items, err := ics.Decode(http.MaxBytesReader(w, r.Body, maxImportBytes), h.service.Location())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("The calendar file could not be read."))
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Import", "entries", len(items))

	existing, err := h.service.Events(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	known := make(map[string]struct{}, len(existing))
	for _, event := range existing {
		known[event.ID] = struct{}{}
	}

	resp := importResponse{Imported: []eventDTO{}, Failed: []importFailure{}}
	updated := 0
	for _, item := range items {
		params := application.SaveEventParams{
			Principal:     principal,
			Input:         item.Input,
			SkipDeduction: true,
		}
		if _, ok := known[item.UID]; ok && item.UID != "" {
			params.EventID = item.UID
		}
		result, saveErr := h.service.SaveEvent(r.Context(), params)
		if saveErr != nil {
			var vErr *application.ValidationError
			if !errors.As(saveErr, &vErr) {
				h.responder.handleServiceError(r.Context(), w, saveErr)
				return
			}
			resp.Failed = append(resp.Failed, importFailure{UID: item.UID, Errors: vErr.FieldErrors})
			continue
		}
		if params.EventID != "" {
			updated++
		}
		resp.Imported = append(resp.Imported, toEventDTO(result.Event))
		known[result.Event.ID] = struct{}{}
	}

	logger.InfoContext(r.Context(), "calendar imported", "imported", len(resp.Imported), "updated", updated, "failed", len(resp.Failed))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func viewQuery(r *http.Request) (datemath.Date, calendar.Mode, error) {
	query := r.URL.Query()
	mode, err := calendar.ParseMode(query.Get("mode"))
	if err != nil {
		return datemath.Date{}, "", errors.New("Mode must be month or week.")
	}
	var reference datemath.Date
	if raw := strings.TrimSpace(query.Get("date")); raw != "" {
		reference, err = datemath.ParseDate(raw)
		if err != nil {
			return datemath.Date{}, "", errInvalidDate
		}
	}
	return reference, mode, nil
}

type importFailure struct {
	UID    string            `json:"uid"`
	Errors map[string]string `json:"errors"`
}

type importResponse struct {
	Imported []eventDTO      `json:"imported"`
	Failed   []importFailure `json:"failed"`
}
