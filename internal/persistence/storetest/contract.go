// Package storetest holds the behaviour every persistence.DocumentStore must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/example/screening-console/internal/persistence"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) persistence.DocumentStore

// Run exercises store semantics against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("adds, reads, updates, and deletes documents", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		id, err := store.Add(ctx, "events", persistence.Fields{
			"userId":     "user-1",
			"clientName": "Jane",
			"testType":   []string{"urine"},
			"noShow":     false,
			"count":      3,
		})
		if err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated id")
		}

		doc, err := store.Get(ctx, "events", id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if doc.ID != id || doc.Fields.Text("clientName") != "Jane" {
			t.Fatalf("unexpected document %+v", doc)
		}
		if doc.Fields.Int("count") != 3 {
			t.Fatalf("expected count 3, got %v", doc.Fields["count"])
		}
		if got := doc.Fields.StringSlice("testType"); len(got) != 1 || got[0] != "urine" {
			t.Fatalf("unexpected testType %v", got)
		}

		if err := store.Update(ctx, "events", id, persistence.Fields{"clientName": "Janet", "status": "completed"}); err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		doc, err = store.Get(ctx, "events", id)
		if err != nil {
			t.Fatalf("Get after update returned error: %v", err)
		}
		if doc.Fields.Text("clientName") != "Janet" || doc.Fields.Text("status") != "completed" {
			t.Fatalf("update not applied: %+v", doc.Fields)
		}
		if doc.Fields.Text("userId") != "user-1" {
			t.Fatalf("update dropped untouched fields: %+v", doc.Fields)
		}

		if err := store.Delete(ctx, "events", id); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if _, err := store.Get(ctx, "events", id); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("queries with equality filters", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		seed := []persistence.Fields{
			{"userId": "user-1", "itemName": "Urine Test Cups", "quantity": 10},
			{"userId": "user-1", "itemName": "Breathalyzer Cartridges", "quantity": 4},
			{"userId": "user-2", "itemName": "Urine Test Cups", "quantity": 7},
		}
		for _, fields := range seed {
			if _, err := store.Add(ctx, "inventory", fields); err != nil {
				t.Fatalf("Add returned error: %v", err)
			}
		}

		docs, err := store.Query(ctx, "inventory", persistence.Where("userId", "user-1"))
		if err != nil {
			t.Fatalf("Query returned error: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("expected 2 documents for user-1, got %d", len(docs))
		}

		docs, err = store.Query(ctx, "inventory",
			persistence.Where("userId", "user-2"),
			persistence.Where("itemName", "Urine Test Cups"),
		)
		if err != nil {
			t.Fatalf("Query returned error: %v", err)
		}
		if len(docs) != 1 || docs[0].Fields.Int("quantity") != 7 {
			t.Fatalf("unexpected documents %+v", docs)
		}

		docs, err = store.Query(ctx, "inventory", persistence.Where("quantity", 4))
		if err != nil {
			t.Fatalf("Query by number returned error: %v", err)
		}
		if len(docs) != 1 || docs[0].Fields.Text("itemName") != "Breathalyzer Cartridges" {
			t.Fatalf("unexpected numeric match %+v", docs)
		}

		docs, err = store.Query(ctx, "other")
		if err != nil {
			t.Fatalf("Query on empty collection returned error: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected no documents, got %d", len(docs))
		}
	})

	t.Run("reports missing documents", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Update(ctx, "events", "missing", persistence.Fields{"a": 1}); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Update, got %v", err)
		}
		if err := store.Delete(ctx, "events", "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Delete, got %v", err)
		}
		if _, err := store.Get(ctx, "events", "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Get, got %v", err)
		}
	})

	t.Run("keeps nested objects", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		id, err := store.Add(ctx, "inventory", persistence.Fields{
			"allocations": []map[string]any{
				{"companyId": "acme", "companyName": "Acme", "qty": 6},
				{"companyId": "default", "companyName": "Unspecified", "qty": 4},
			},
		})
		if err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
		doc, err := store.Get(ctx, "inventory", id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		allocs := doc.Fields.Slice("allocations")
		if len(allocs) != 2 {
			t.Fatalf("expected 2 allocations, got %v", doc.Fields["allocations"])
		}
		first, _ := allocs[0].(map[string]any)
		if persistence.Fields(first).Int("qty") != 6 {
			t.Fatalf("unexpected first allocation %v", first)
		}
	})
}
