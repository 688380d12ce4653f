package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/screening-console/internal/testfixtures"
)

func itemNames(items []InventoryItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ItemName)
	}
	return out
}

func sameNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInventoryService_Save(t *testing.T) {
	t.Parallel()

	t.Run("quantity follows allocations", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		h := newConsoleHarness()
		item, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			Input: InventoryInput{
				ItemName: "Urine Test Cups",
				Quantity: 99,
				Allocations: []Allocation{
					{CompanyName: "Acme Labs", Qty: 4},
					{CompanyName: "", Qty: 6},
					{CompanyName: "Globex", Qty: -2},
				},
			},
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if item.Quantity != 10 {
			t.Fatalf("expected quantity 10, got %d", item.Quantity)
		}
		if item.Allocations[0].CompanyID != "acme-labs" {
			t.Fatalf("expected slug id, got %q", item.Allocations[0].CompanyID)
		}
		if item.Allocations[1].CompanyName != "Unspecified" || item.Allocations[2].Qty != 0 {
			t.Fatalf("expected normalised allocations, got %#v", item.Allocations)
		}
		if got := testfixtures.Quantity(t, h.store, item.ID); got != 10 {
			t.Fatalf("expected stored quantity 10, got %d", got)
		}
	})

	t.Run("flat quantity becomes one allocation", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		h := newConsoleHarness()
		item, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			Input:     InventoryInput{ItemName: "Breathalyzer Cartridges", CompanyName: "Acme", Quantity: 7},
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if len(item.Allocations) != 1 || item.Allocations[0].CompanyID != "acme" || item.Allocations[0].Qty != 7 {
			t.Fatalf("expected synthetic allocation, got %#v", item.Allocations)
		}
	})

	t.Run("update keeps creation time", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		h := newConsoleHarness()
		created, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			Input:     InventoryInput{ItemName: "Urine Test Cups", Quantity: 5},
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		h.clock.Advance(time.Hour)

		updated, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			ItemID:    created.ID,
			Input:     InventoryInput{ItemName: "Urine Test Cups", Quantity: 8, Notes: "restocked"},
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) || !updated.UpdatedAt.After(created.UpdatedAt) {
			t.Fatalf("unexpected timestamps %v / %v", updated.CreatedAt, updated.UpdatedAt)
		}

		got, err := h.inventory.Get(ctx, testPrincipal, created.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Quantity != 8 || got.Notes != "restocked" {
			t.Fatalf("unexpected stored item %#v", got)
		}
	})

	t.Run("validation and duplicates", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		h := newConsoleHarness()
		testfixtures.SeedInventory(t, h.store)

		_, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			Input:     InventoryInput{ItemName: " ", Quantity: -1, ReorderLevel: -1},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"itemName", "quantity", "reorderLevel"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %#v", field, vErr.FieldErrors)
			}
		}

		_, err = h.inventory.Save(ctx, SaveInventoryParams{
			Principal: testPrincipal,
			Input:     InventoryInput{ItemName: "Urine Test Cups", Quantity: 1},
		})
		if !errors.As(err, &vErr) || vErr.FieldErrors["itemName"] != "An item with this name already exists." {
			t.Fatalf("expected duplicate name error, got %v", err)
		}

		other := Principal{UserID: "user-2"}
		if _, err := h.inventory.Save(ctx, SaveInventoryParams{
			Principal: other,
			Input:     InventoryInput{ItemName: "Urine Test Cups", Quantity: 1},
		}); err != nil {
			t.Fatalf("expected names to be unique per user only, got %v", err)
		}
	})
}

func TestInventoryService_LegacyRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	id := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemQuantity(12))

	item, err := h.inventory.Get(ctx, testPrincipal, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(item.Allocations) != 1 {
		t.Fatalf("expected synthetic allocation, got %#v", item.Allocations)
	}
	a := item.Allocations[0]
	if a.CompanyID != "acme" || a.CompanyName != "Acme" || a.Qty != 12 || item.Quantity != 12 {
		t.Fatalf("unexpected synthetic allocation %#v", a)
	}
}

func TestInventoryService_SetQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	id := testfixtures.SeedInventory(t, h.store, testfixtures.WithItemAllocations(
		testfixtures.AllocationFixture{CompanyID: "acme", CompanyName: "Acme", Qty: 3},
		testfixtures.AllocationFixture{CompanyID: "globex", CompanyName: "Globex", Qty: 4},
	))

	item, err := h.inventory.SetQuantity(ctx, testPrincipal, id, 10)
	if err != nil {
		t.Fatalf("SetQuantity failed: %v", err)
	}
	if item.Allocations[0].Qty != 6 || item.Allocations[1].Qty != 4 {
		t.Fatalf("expected increase on first allocation, got %#v", item.Allocations)
	}

	item, err = h.inventory.SetQuantity(ctx, testPrincipal, id, 2)
	if err != nil {
		t.Fatalf("SetQuantity failed: %v", err)
	}
	if item.Allocations[0].Qty != 0 || item.Allocations[1].Qty != 2 || item.Quantity != 2 {
		t.Fatalf("expected first-to-last drain, got %#v", item.Allocations)
	}

	item, err = h.inventory.SetQuantity(ctx, testPrincipal, id, -5)
	if err != nil {
		t.Fatalf("SetQuantity failed: %v", err)
	}
	if item.Quantity != 0 || item.Status() != StockOut {
		t.Fatalf("expected floor at zero and out of stock, got %#v", item)
	}

	stored, err := h.inventory.Get(ctx, testPrincipal, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Quantity != 0 || len(stored.Allocations) != 2 {
		t.Fatalf("unexpected stored item %#v", stored)
	}

	if _, err := h.inventory.SetQuantity(ctx, Principal{UserID: "user-2"}, id, 4); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for another user, got %v", err)
	}
}

func TestInventoryItem_Status(t *testing.T) {
	t.Parallel()

	cases := []struct {
		quantity, reorder int
		want              StockStatus
	}{
		{0, 3, StockOut},
		{3, 3, StockLow},
		{1, 3, StockLow},
		{4, 3, StockIn},
		{0, 0, StockOut},
	}
	for _, tc := range cases {
		item := InventoryItem{Quantity: tc.quantity, ReorderLevel: tc.reorder}
		if got := item.Status(); got != tc.want {
			t.Fatalf("quantity %d reorder %d: expected %q, got %q", tc.quantity, tc.reorder, tc.want, got)
		}
	}
}

func TestInventoryService_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	base := testfixtures.ReferenceTime()
	testfixtures.SeedInventory(t, h.store,
		testfixtures.WithItemName("Urine Test Cups"),
		testfixtures.WithItemQuantity(10),
		testfixtures.WithItemCreatedAt(base),
	)
	testfixtures.SeedInventory(t, h.store,
		testfixtures.WithItemName("Breathalyzer Cartridges"),
		testfixtures.WithItemQuantity(2),
		testfixtures.WithItemCreatedAt(base.Add(time.Hour)),
	)
	testfixtures.SeedInventory(t, h.store,
		testfixtures.WithItemName("Gloves"),
		testfixtures.WithItemCategory("PPE"),
		testfixtures.WithItemQuantity(0),
		testfixtures.WithItemCreatedAt(base.Add(2*time.Hour)),
		testfixtures.WithItemAllocations(testfixtures.AllocationFixture{CompanyID: "globex", CompanyName: "Globex", Qty: 0}),
	)
	testfixtures.SeedInventory(t, h.store, testfixtures.WithItemUser("user-2"), testfixtures.WithItemName("Foreign"))

	list := func(params ListInventoryParams) []string {
		t.Helper()
		params.Principal = testPrincipal
		items, err := h.inventory.List(ctx, params)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		return itemNames(items)
	}

	if got := list(ListInventoryParams{}); !sameNames(got, "Gloves", "Breathalyzer Cartridges", "Urine Test Cups") {
		t.Fatalf("expected newest first, got %v", got)
	}
	if got := list(ListInventoryParams{SortField: "status"}); !sameNames(got, "Gloves", "Breathalyzer Cartridges", "Urine Test Cups") {
		t.Fatalf("expected status severity order, got %v", got)
	}
	if got := list(ListInventoryParams{SortField: "quantity", SortDesc: true}); !sameNames(got, "Urine Test Cups", "Breathalyzer Cartridges", "Gloves") {
		t.Fatalf("expected numeric quantity order, got %v", got)
	}
	if got := list(ListInventoryParams{SortField: "itemName"}); !sameNames(got, "Breathalyzer Cartridges", "Gloves", "Urine Test Cups") {
		t.Fatalf("expected name order, got %v", got)
	}
	if got := list(ListInventoryParams{SortField: "bogus"}); !sameNames(got, "Urine Test Cups", "Breathalyzer Cartridges", "Gloves") {
		t.Fatalf("expected unknown field to sort by creation, got %v", got)
	}
	if got := list(ListInventoryParams{Category: "ppe"}); !sameNames(got, "Gloves") {
		t.Fatalf("expected category filter, got %v", got)
	}
	if got := list(ListInventoryParams{Category: "all", Query: "GLOBEX"}); !sameNames(got, "Gloves") {
		t.Fatalf("expected allocation search, got %v", got)
	}
	if got := list(ListInventoryParams{Query: "low stock"}); !sameNames(got, "Breathalyzer Cartridges") {
		t.Fatalf("expected status search, got %v", got)
	}

	if _, err := h.inventory.List(ctx, ListInventoryParams{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without principal, got %v", err)
	}
}

func TestInventoryService_CategoriesAndLowStock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	testfixtures.SeedInventory(t, h.store, testfixtures.WithItemQuantity(10))
	testfixtures.SeedInventory(t, h.store, testfixtures.WithItemName("Gloves"), testfixtures.WithItemCategory("PPE"), testfixtures.WithItemQuantity(1))
	testfixtures.SeedInventory(t, h.store, testfixtures.WithItemName("Masks"), testfixtures.WithItemCategory(""), testfixtures.WithItemQuantity(0))
	testfixtures.SeedInventory(t, h.store, testfixtures.WithItemUser("user-2"), testfixtures.WithItemName("Swabs"), testfixtures.WithItemQuantity(2))

	categories, err := h.inventory.Categories(ctx, testPrincipal)
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if !sameNames(categories, "PPE", "Testing Supplies") {
		t.Fatalf("unexpected categories %v", categories)
	}

	low, err := h.inventory.LowStock(ctx)
	if err != nil {
		t.Fatalf("LowStock failed: %v", err)
	}
	if len(low) != 3 || low[0].ItemName != "Masks" {
		t.Fatalf("expected three low items with out of stock first, got %v", itemNames(low))
	}
}

func TestInventoryService_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newConsoleHarness()
	id := testfixtures.SeedInventory(t, h.store)

	if err := h.inventory.Delete(ctx, Principal{UserID: "user-2"}, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.inventory.Delete(ctx, testPrincipal, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := h.inventory.Get(ctx, testPrincipal, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, found, err := h.inventory.FindByName(ctx, testPrincipal.UserID, "Urine Test Cups"); err != nil || found {
		t.Fatalf("expected item to be gone, found=%v err=%v", found, err)
	}
}
