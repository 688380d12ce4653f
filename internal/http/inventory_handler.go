package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/screening-console/internal/application"
)

type inventoryService interface {
	List(ctx context.Context, params application.ListInventoryParams) ([]application.InventoryItem, error)
	Categories(ctx context.Context, principal application.Principal) ([]string, error)
	Get(ctx context.Context, principal application.Principal, id string) (application.InventoryItem, error)
	Save(ctx context.Context, params application.SaveInventoryParams) (application.InventoryItem, error)
	SetQuantity(ctx context.Context, principal application.Principal, id string, quantity int) (application.InventoryItem, error)
	Delete(ctx context.Context, principal application.Principal, id string) error
}

// InventoryHandler exposes supply inventory management.
type InventoryHandler struct {
	service   inventoryService
	responder responder
	logger    *slog.Logger
}

func NewInventoryHandler(service inventoryService, logger *slog.Logger) *InventoryHandler {
	base := consoleLogger(logger)
	return &InventoryHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *InventoryHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "InventoryHandler", operation, attrs...)
}

// List supports ?q=, ?category=, ?sort= and ?desc=true.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	desc, _ := strconv.ParseBool(query.Get("desc"))

	items, err := h.service.List(r.Context(), application.ListInventoryParams{
		Principal: principal,
		Query:     query.Get("q"),
		Category:  query.Get("category"),
		SortField: query.Get("sort"),
		SortDesc:  desc,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listInventoryResponse{Items: toInventoryDTOs(items)})
}

// Categories lists the distinct categories in use.
func (h *InventoryHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	categories, err := h.service.Categories(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string][]string{"categories": categories})
}

// Get returns one item.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	item, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toInventoryDTO(item))
}

// Create adds an item.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "", http.StatusCreated)
}

// Update replaces an item.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidItemID)
		return
	}
	h.save(w, r, id, http.StatusOK)
}

func (h *InventoryHandler) save(w http.ResponseWriter, r *http.Request, id string, status int) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req inventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Save", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode inventory request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	item, err := h.service.Save(r.Context(), application.SaveInventoryParams{
		Principal: principal,
		ItemID:    id,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, status, toInventoryDTO(item))
}

// SetQuantity sets an item's total, redistributing it over allocations.
func (h *InventoryHandler) SetQuantity(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	item, err := h.service.SetQuantity(r.Context(), principal, id, *req.Quantity)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toInventoryDTO(item))
}

// Delete removes an item.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidItemID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type allocationDTO struct {
	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`
	Qty         int    `json:"qty"`
}

type inventoryRequest struct {
	ItemName     string          `json:"itemName"`
	CompanyName  string          `json:"companyName"`
	Category     string          `json:"category"`
	Allocations  []allocationDTO `json:"allocations"`
	Quantity     int             `json:"quantity"`
	ReorderLevel int             `json:"reorderLevel"`
	Notes        string          `json:"notes"`
}

func (r inventoryRequest) toInput() application.InventoryInput {
	var allocations []application.Allocation
	for _, a := range r.Allocations {
		allocations = append(allocations, application.Allocation{
			CompanyID:   a.CompanyID,
			CompanyName: a.CompanyName,
			Qty:         a.Qty,
		})
	}
	return application.InventoryInput{
		ItemName:     r.ItemName,
		CompanyName:  r.CompanyName,
		Category:     r.Category,
		Allocations:  allocations,
		Quantity:     r.Quantity,
		ReorderLevel: r.ReorderLevel,
		Notes:        r.Notes,
	}
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type listInventoryResponse struct {
	Items []inventoryDTO `json:"items"`
}

type inventoryDTO struct {
	ID           string          `json:"id"`
	ItemName     string          `json:"itemName"`
	CompanyName  string          `json:"companyName,omitempty"`
	Category     string          `json:"category"`
	Allocations  []allocationDTO `json:"allocations"`
	Quantity     int             `json:"quantity"`
	ReorderLevel int             `json:"reorderLevel"`
	Status       string          `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}

func toInventoryDTO(item application.InventoryItem) inventoryDTO {
	allocations := make([]allocationDTO, 0, len(item.Allocations))
	for _, a := range item.Allocations {
		allocations = append(allocations, allocationDTO{CompanyID: a.CompanyID, CompanyName: a.CompanyName, Qty: a.Qty})
	}
	return inventoryDTO{
		ID:           item.ID,
		ItemName:     item.ItemName,
		CompanyName:  item.CompanyName,
		Category:     item.Category,
		Allocations:  allocations,
		Quantity:     item.Quantity,
		ReorderLevel: item.ReorderLevel,
		Status:       string(item.Status()),
		Notes:        item.Notes,
		CreatedAt:    item.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toInventoryDTOs(items []application.InventoryItem) []inventoryDTO {
	out := make([]inventoryDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toInventoryDTO(item))
	}
	return out
}
