package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/example/screening-console/internal/persistence"
	"github.com/example/screening-console/internal/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) persistence.DocumentStore {
		return NewStore(nil)
	})
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("returned documents are detached from the store", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := NewStore(func() string { return "doc-1" })
		id, err := store.Add(ctx, "events", persistence.Fields{"clientName": "Jane"})
		if err != nil {
			t.Fatalf("Add returned error: %v", err)
		}

		doc, _ := store.Get(ctx, "events", id)
		doc.Fields["clientName"] = "Mallory"

		again, _ := store.Get(ctx, "events", id)
		if again.Fields.Text("clientName") != "Jane" {
			t.Fatalf("store mutated through returned document")
		}
	})

	t.Run("rejects duplicate generated ids", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := NewStore(func() string { return "fixed" })
		if _, err := store.Add(ctx, "events", persistence.Fields{}); err != nil {
			t.Fatalf("first Add returned error: %v", err)
		}
		if _, err := store.Add(ctx, "events", persistence.Fields{}); err == nil {
			t.Fatalf("expected error when id generator repeats")
		}
	})

	t.Run("honours cancelled contexts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewStore(nil).Query(ctx, "events"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
