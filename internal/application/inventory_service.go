package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/screening-console/internal/persistence"
)

// InventoryService manages a user's supply items.
type InventoryService struct {
	store  persistence.DocumentStore
	now    func() time.Time
	logger *slog.Logger
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(store persistence.DocumentStore, now func() time.Time) *InventoryService {
	return NewInventoryServiceWithLogger(store, now, nil)
}

// NewInventoryServiceWithLogger constructs an InventoryService with a specified logger.
func NewInventoryServiceWithLogger(store persistence.DocumentStore, now func() time.Time, logger *slog.Logger) *InventoryService {
	if now == nil {
		now = time.Now
	}
	return &InventoryService{store: store, now: now, logger: defaultLogger(logger)}
}

func (s *InventoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "InventoryService", operation, attrs...)
}

func (s *InventoryService) loadAll(ctx context.Context, filters ...persistence.Filter) ([]InventoryItem, error) {
	docs, err := s.store.Query(ctx, persistence.CollectionInventory, filters...)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	items := make([]InventoryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeInventory(doc))
	}
	return items, nil
}

// List returns the principal's items narrowed by Query and Category and
// ordered by SortField. Without a sort field items are newest first.
func (s *InventoryService) List(ctx context.Context, params ListInventoryParams) (items []InventoryItem, err error) {
	if s == nil {
		err = fmt.Errorf("InventoryService is nil")
		return
	}
	logger := s.loggerWith(ctx, "List", "user_id", params.Principal.UserID, "sort", params.SortField)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "list inventory failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	all, err := s.loadAll(ctx, persistence.Where("userId", params.Principal.UserID))
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(params.Query))
	category := strings.ToLower(strings.TrimSpace(params.Category))
	items = make([]InventoryItem, 0, len(all))
	for _, item := range all {
		if category != "" && category != "all" && strings.ToLower(item.Category) != category {
			continue
		}
		if query != "" && !strings.Contains(searchText(item), query) {
			continue
		}
		items = append(items, item)
	}

	sortInventory(items, params.SortField, params.SortDesc)
	return items, nil
}

func searchText(item InventoryItem) string {
	parts := []string{
		item.ItemName,
		item.CompanyName,
		item.Category,
		item.Notes,
		strconv.Itoa(item.Quantity),
		strconv.Itoa(item.ReorderLevel),
		string(item.Status()),
	}
	for _, a := range item.Allocations {
		parts = append(parts, a.CompanyName, a.CompanyID, strconv.Itoa(a.Qty))
	}
	return strings.ToLower(strings.Join(parts, " "))
}

var statusRank = map[StockStatus]int{
	StockOut: 0,
	StockLow: 1,
	StockIn:  2,
}

func sortValue(item InventoryItem, field string) string {
	switch field {
	case "itemName":
		return item.ItemName
	case "companyName":
		return item.CompanyName
	case "category":
		return item.Category
	case "notes":
		return item.Notes
	case "quantity":
		return strconv.Itoa(item.Quantity)
	case "reorderLevel":
		return strconv.Itoa(item.ReorderLevel)
	}
	return ""
}

// compareInventory orders two items by field: status by severity, numeric
// values numerically and anything else as lower-cased text.
func compareInventory(a, b InventoryItem, field string) int {
	switch field {
	case "status":
		return statusRank[a.Status()] - statusRank[b.Status()]
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	av, bv := sortValue(a, field), sortValue(b, field)
	an, aErr := strconv.ParseFloat(av, 64)
	bn, bErr := strconv.ParseFloat(bv, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
}

func sortInventory(items []InventoryItem, field string, desc bool) {
	field = strings.TrimSpace(field)
	if field == "" {
		field = "createdAt"
		desc = true
	}
	switch field {
	case "itemName", "companyName", "category", "notes", "quantity", "reorderLevel", "status", "createdAt", "updatedAt":
	default:
		field = "createdAt"
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := compareInventory(items[i], items[j], field)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// Categories returns the distinct non-empty categories of the principal's items.
func (s *InventoryService) Categories(ctx context.Context, principal Principal) ([]string, error) {
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	items, err := s.loadAll(ctx, persistence.Where("userId", principal.UserID))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, item := range items {
		c := strings.TrimSpace(item.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Get returns one of the principal's items.
func (s *InventoryService) Get(ctx context.Context, principal Principal, id string) (InventoryItem, error) {
	doc, err := s.store.Get(ctx, persistence.CollectionInventory, id)
	if err != nil {
		return InventoryItem{}, translateStoreError("get inventory item", err)
	}
	item := decodeInventory(doc)
	if item.UserID != principal.UserID {
		return InventoryItem{}, ErrUnauthorized
	}
	return item, nil
}

// FindByName looks up the user's item called itemName.
func (s *InventoryService) FindByName(ctx context.Context, userID, itemName string) (InventoryItem, bool, error) {
	items, err := s.loadAll(ctx,
		persistence.Where("userId", userID),
		persistence.Where("itemName", itemName),
	)
	if err != nil {
		return InventoryItem{}, false, err
	}
	if len(items) == 0 {
		return InventoryItem{}, false, nil
	}
	return items[0], true, nil
}

// Save creates or updates an item. Quantity is always recomputed from the
// allocations; an item saved without allocations gets a single one holding
// the given quantity.
func (s *InventoryService) Save(ctx context.Context, params SaveInventoryParams) (item InventoryItem, err error) {
	if s == nil {
		err = fmt.Errorf("InventoryService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Save", "user_id", params.Principal.UserID, "item_id", params.ItemID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "save inventory item failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "inventory item saved", "saved_id", item.ID, "quantity", item.Quantity)
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	in := params.Input
	vErr := &ValidationError{}
	name := strings.TrimSpace(in.ItemName)
	if name == "" {
		vErr.add("itemName", "Item name is required.")
	}
	if in.ReorderLevel < 0 {
		vErr.add("reorderLevel", "Reorder level cannot be negative.")
	}
	if len(in.Allocations) == 0 && in.Quantity < 0 {
		vErr.add("quantity", "Quantity cannot be negative.")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	item = reconcile(InventoryItem{
		ID:           params.ItemID,
		UserID:       params.Principal.UserID,
		ItemName:     name,
		CompanyName:  strings.TrimSpace(in.CompanyName),
		Category:     strings.TrimSpace(in.Category),
		Allocations:  in.Allocations,
		Quantity:     in.Quantity,
		ReorderLevel: in.ReorderLevel,
		Notes:        strings.TrimSpace(in.Notes),
	})

	existing, found, err := s.FindByName(ctx, item.UserID, item.ItemName)
	if err != nil {
		return InventoryItem{}, err
	}
	if found && existing.ID != item.ID {
		vErr.add("itemName", "An item with this name already exists.")
		err = vErr
		return
	}

	now := s.now()
	item.UpdatedAt = now
	if item.ID == "" {
		item.CreatedAt = now
		var id string
		id, err = s.store.Add(ctx, persistence.CollectionInventory, encodeInventory(item))
		if err != nil {
			err = fmt.Errorf("add inventory item: %w", err)
			return
		}
		item.ID = id
		return
	}

	var current InventoryItem
	current, err = s.Get(ctx, params.Principal, item.ID)
	if err != nil {
		return
	}
	item.CreatedAt = current.CreatedAt
	if err = s.store.Update(ctx, persistence.CollectionInventory, item.ID, encodeInventory(item)); err != nil {
		err = translateStoreError("update inventory item", err)
	}
	return
}

// SetQuantity sets an item's total directly, flooring at zero.
func (s *InventoryService) SetQuantity(ctx context.Context, principal Principal, id string, quantity int) (item InventoryItem, err error) {
	if s == nil {
		err = fmt.Errorf("InventoryService is nil")
		return
	}
	item, err = s.Get(ctx, principal, id)
	if err != nil {
		s.loggerWith(ctx, "SetQuantity", "item_id", id).ErrorContext(ctx, "set quantity failed", "error", err, "error_kind", ErrorKind(err))
		return
	}
	return s.AdjustQuantity(ctx, item, quantity)
}

// AdjustQuantity persists a new total for item, keeping its allocations in sum.
func (s *InventoryService) AdjustQuantity(ctx context.Context, item InventoryItem, quantity int) (updated InventoryItem, err error) {
	logger := s.loggerWith(ctx, "AdjustQuantity", "item_id", item.ID, "item_name", item.ItemName)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "adjust quantity failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "quantity adjusted", "from", item.Quantity, "to", updated.Quantity)
	}()

	updated = withQuantity(item, quantity)
	updated.UpdatedAt = s.now()
	patch := persistence.Fields{
		"quantity":    updated.Quantity,
		"allocations": encodeAllocations(updated.Allocations),
		"updatedAt":   persistence.FormatTime(updated.UpdatedAt),
	}
	if err = s.store.Update(ctx, persistence.CollectionInventory, item.ID, patch); err != nil {
		err = translateStoreError("update inventory quantity", err)
		updated = InventoryItem{}
	}
	return
}

// Delete removes one of the principal's items.
func (s *InventoryService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("InventoryService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "item_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "delete inventory item failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "inventory item deleted")
	}()

	if _, err = s.Get(ctx, principal, id); err != nil {
		return err
	}
	if err = s.store.Delete(ctx, persistence.CollectionInventory, id); err != nil {
		return translateStoreError("delete inventory item", err)
	}
	return nil
}

// LowStock returns every item, across all users, at or below its reorder level.
func (s *InventoryService) LowStock(ctx context.Context) ([]InventoryItem, error) {
	items, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]InventoryItem, 0)
	for _, item := range items {
		if item.Status() != StockIn {
			out = append(out, item)
		}
	}
	sortInventory(out, "status", false)
	return out, nil
}
