package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/remote/memory"
)

func TestStore_WriteFetchList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	if _, err := store.Fetch(ctx, "products", "p-1"); !errors.Is(err, domain.ErrRemoteNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	for _, id := range []string{"p-2", "p-1"} {
		if err := store.Write(ctx, "products", id, []byte(`{"id":"`+id+`"}`)); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	doc, err := store.Fetch(ctx, "products", "p-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(doc) != `{"id":"p-1"}` {
		t.Fatalf("unexpected doc %s", doc)
	}

	docs, err := store.List(ctx, "products")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || string(docs[0]) != `{"id":"p-1"}` {
		t.Fatalf("unexpected list %q", docs)
	}

	empty, err := store.List(ctx, "orders")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty collection, got %v (%v)", empty, err)
	}

	fetches, lists, writes := store.Calls()
	if fetches != 2 || lists != 2 || writes != 2 {
		t.Fatalf("unexpected call counters %d/%d/%d", fetches, lists, writes)
	}
}

func TestStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	store.FailNext(domain.ErrPermissionDenied)
	if err := store.Write(ctx, "orders", "o-1", []byte("{}")); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := store.Write(ctx, "orders", "o-1", []byte("{}")); err != nil {
		t.Fatalf("injected error must fire once, got %v", err)
	}

	store.SetUnavailable(domain.ErrRemoteUnavailable)
	if _, err := store.List(ctx, "orders"); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	store.SetUnavailable(nil)
	if _, err := store.Fetch(ctx, "orders", "o-1"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Fetch(cancelled, "orders", "o-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
