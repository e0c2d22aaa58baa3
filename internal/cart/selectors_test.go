package cart

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSelectorsTotalsOverSelectedItems(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]Item{
		line(1, book(1, "12.50", 5), 2, true),
		line(2, book(2, "3.99", 5), 3, true),
		line(3, book(3, "100.00", 5), 1, false),
	})
	sel := NewSelectors(store)

	totals := sel.Totals()
	if totals.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", totals.Quantity)
	}
	if !decimal.RequireFromString("36.97").Equal(totals.Price) {
		t.Fatalf("expected price 36.97, got %s", totals.Price)
	}

	selected := sel.SelectedItems()
	if len(selected) != 2 || selected[0].ID != 1 {
		t.Fatalf("expected items 1 and 2 selected, got %+v", selected)
	}
}

func TestSelectorsTotalsIgnoreUnselectedChanges(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]Item{
		line(1, book(1, "10.00", 9), 1, true),
		line(2, book(2, "20.00", 9), 1, false),
	})
	sel := NewSelectors(store)

	before := sel.Totals()
	if n := sel.Recomputations(); n != 1 {
		t.Fatalf("expected 1 computation, got %d", n)
	}

	if _, err := store.PatchQuantity(2, 5); err != nil {
		t.Fatalf("patch quantity: %v", err)
	}
	after := sel.Totals()
	if !before.Price.Equal(after.Price) || before.Quantity != after.Quantity {
		t.Fatalf("totals changed on an unselected edit: %+v -> %+v", before, after)
	}
	if n := sel.Recomputations(); n != 1 {
		t.Fatalf("unselected edit recomputed totals: %d", n)
	}

	if _, err := store.PatchQuantity(1, 2); err != nil {
		t.Fatalf("patch quantity: %v", err)
	}
	if q := sel.Totals().Quantity; q != 2 {
		t.Fatalf("expected quantity 2, got %d", q)
	}
	if n := sel.Recomputations(); n != 2 {
		t.Fatalf("expected 2 computations, got %d", n)
	}
}

func TestSelectorsTotalsCachedWithoutChanges(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]Item{line(1, book(1, "10.00", 9), 1, true)})
	sel := NewSelectors(store)

	for i := 0; i < 5; i++ {
		sel.Totals()
	}
	if n := sel.Recomputations(); n != 1 {
		t.Fatalf("expected 1 computation, got %d", n)
	}
}

func TestSelectorsAllSelected(t *testing.T) {
	store := NewStore()
	sel := NewSelectors(store)
	if sel.AllSelected() {
		t.Fatalf("empty cart reported all selected")
	}

	store.ReplaceAll([]Item{
		line(1, book(1, "10.00", 9), 1, true),
		line(2, book(2, "10.00", 0), 1, false),
	})
	if !sel.AllSelected() {
		t.Fatalf("sold-out line should not block all selected")
	}

	if _, err := store.PatchSelected(1, false); err != nil {
		t.Fatalf("patch selected: %v", err)
	}
	if sel.AllSelected() {
		t.Fatalf("deselected line still reported all selected")
	}
}
