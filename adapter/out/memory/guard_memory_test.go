package memory

import (
	"context"
	"testing"

	"guard_server/core/domain"
)

func TestUnitInbox_AddAndPending(t *testing.T) {
	inbox := NewUnitInbox(0)
	ids := inbox.Add(
		domain.TextUnit{ID: "a", Text: "first"},
		domain.TextUnit{Text: "generated id"},
		domain.TextUnit{ID: " a ", Text: "replaced"},
	)

	if len(ids) != 3 || ids[0] != "a" || ids[2] != "a" || ids[1] == "" {
		t.Fatalf("ids = %v", ids)
	}

	pending, err := inbox.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != "a" || pending[0].Text != "replaced" {
		t.Errorf("pending[0] = %+v", pending[0])
	}
}

func TestUnitInbox_EvictsOldest(t *testing.T) {
	inbox := NewUnitInbox(2)
	inbox.Add(domain.TextUnit{ID: "1"}, domain.TextUnit{ID: "2"}, domain.TextUnit{ID: "3"})

	if inbox.Len() != 2 {
		t.Fatalf("Len() = %d", inbox.Len())
	}
	if _, ok := inbox.Get("1"); ok {
		t.Error("oldest unit should be evicted")
	}
	if _, ok := inbox.Get("3"); !ok {
		t.Error("newest unit missing")
	}
}

func TestUnitInbox_OnEvict(t *testing.T) {
	inbox := NewUnitInbox(2)
	var evicted []domain.UnitID
	inbox.OnEvict(func(ids ...domain.UnitID) {
		// the inbox lock must be released by now
		_ = inbox.Len()
		evicted = append(evicted, ids...)
	})

	inbox.Add(domain.TextUnit{ID: "1"}, domain.TextUnit{ID: "2"})
	if len(evicted) != 0 {
		t.Fatalf("evicted = %v before the limit", evicted)
	}
	inbox.Add(domain.TextUnit{ID: "3"}, domain.TextUnit{ID: "4"})
	if len(evicted) != 2 || evicted[0] != "1" || evicted[1] != "2" {
		t.Errorf("evicted = %v, want [1 2]", evicted)
	}
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(domain.DefaultSettings())

	s, _ := store.Get(ctx)
	s.Threshold = 0.2
	s.EnabledCategories = domain.NewCategorySet(domain.CategoryPolitics)
	if err := store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx)
	if got.Threshold != 0.2 || !got.IsCategoryEnabled(domain.CategoryPolitics) || got.IsCategoryEnabled(domain.CategorySexual) {
		t.Errorf("Get() = %+v", got)
	}

	bad := got
	bad.Threshold = 2
	if err := store.Save(ctx, bad); err == nil {
		t.Error("out of range threshold should be rejected")
	}
}
