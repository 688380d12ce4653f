package application

import (
	"regexp"
	"strings"

	"github.com/example/screening-console/internal/persistence"
)

const (
	defaultCompanyID   = "default"
	unspecifiedCompany = "Unspecified"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// companySlug derives an allocation id from a company name.
func companySlug(name string) string {
	slug := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	if slug == "" {
		return defaultCompanyID
	}
	return slug
}

// normalizeAllocations fills in missing ids and names and clamps negative
// quantities to zero.
func normalizeAllocations(in []Allocation) []Allocation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Allocation, 0, len(in))
	for _, a := range in {
		a.CompanyName = strings.TrimSpace(a.CompanyName)
		a.CompanyID = strings.TrimSpace(a.CompanyID)
		if a.CompanyID == "" {
			a.CompanyID = companySlug(a.CompanyName)
		}
		if a.CompanyName == "" {
			a.CompanyName = unspecifiedCompany
		}
		if a.Qty < 0 {
			a.Qty = 0
		}
		out = append(out, a)
	}
	return out
}

func sumAllocations(allocations []Allocation) int {
	total := 0
	for _, a := range allocations {
		total += a.Qty
	}
	return total
}

// syntheticAllocation represents a legacy flat quantity as a single allocation.
func syntheticAllocation(item InventoryItem) Allocation {
	name := strings.TrimSpace(item.CompanyName)
	if name == "" {
		name = unspecifiedCompany
	}
	return Allocation{
		CompanyID:   companySlug(item.CompanyName),
		CompanyName: name,
		Qty:         max(item.Quantity, 0),
	}
}

// reconcile restores quantity == sum(allocations), creating a synthetic
// allocation when the item has none.
func reconcile(item InventoryItem) InventoryItem {
	item.Allocations = normalizeAllocations(item.Allocations)
	if len(item.Allocations) == 0 {
		item.Allocations = []Allocation{syntheticAllocation(item)}
	}
	item.Quantity = sumAllocations(item.Allocations)
	return item
}

// withQuantity sets the item's total to quantity (floored at zero) and
// spreads the difference over the allocations: increases go to the first
// allocation, decreases drain allocations from first to last.
func withQuantity(item InventoryItem, quantity int) InventoryItem {
	item = reconcile(item)
	quantity = max(quantity, 0)

	allocations := make([]Allocation, len(item.Allocations))
	copy(allocations, item.Allocations)

	diff := quantity - item.Quantity
	switch {
	case diff > 0:
		allocations[0].Qty += diff
	case diff < 0:
		remaining := -diff
		for i := range allocations {
			if remaining == 0 {
				break
			}
			take := min(allocations[i].Qty, remaining)
			allocations[i].Qty -= take
			remaining -= take
		}
	}

	item.Allocations = allocations
	item.Quantity = sumAllocations(allocations)
	return item
}

func encodeAllocations(allocations []Allocation) []any {
	out := make([]any, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, map[string]any{
			"companyId":   a.CompanyID,
			"companyName": a.CompanyName,
			"qty":         a.Qty,
		})
	}
	return out
}

func encodeInventory(item InventoryItem) persistence.Fields {
	return persistence.Fields{
		"userId":       item.UserID,
		"itemName":     item.ItemName,
		"companyName":  item.CompanyName,
		"category":     item.Category,
		"allocations":  encodeAllocations(item.Allocations),
		"quantity":     item.Quantity,
		"reorderLevel": item.ReorderLevel,
		"notes":        item.Notes,
		"createdAt":    persistence.FormatTime(item.CreatedAt),
		"updatedAt":    persistence.FormatTime(item.UpdatedAt),
	}
}

// decodeInventory reads a stored item. Records written before allocations
// existed come back with a synthetic allocation.
func decodeInventory(doc persistence.Document) InventoryItem {
	f := doc.Fields
	item := InventoryItem{
		ID:           doc.ID,
		UserID:       f.Text("userId"),
		ItemName:     f.Text("itemName"),
		CompanyName:  f.Text("companyName"),
		Category:     f.Text("category"),
		Quantity:     f.Int("quantity"),
		ReorderLevel: f.Int("reorderLevel"),
		Notes:        f.Text("notes"),
		CreatedAt:    f.Time("createdAt"),
		UpdatedAt:    f.Time("updatedAt"),
	}
	for _, raw := range f.Slice("allocations") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		af := persistence.Fields(m)
		item.Allocations = append(item.Allocations, Allocation{
			CompanyID:   af.Text("companyId"),
			CompanyName: af.Text("companyName"),
			Qty:         af.Int("qty"),
		})
	}
	return reconcile(item)
}
