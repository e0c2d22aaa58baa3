package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// Totals summarises the selected lines.
type Totals struct {
	Quantity int             `json:"total_quantity"`
	Price    decimal.Decimal `json:"total_price"`
}

// memo caches the last value computed for a key.
type memo[K, V any] struct {
	equal        func(a, b K) bool
	key          K
	value        V
	valid        bool
	computations int
}

func (m *memo[K, V]) get(key K, compute func() V) V {
	if m.valid && m.equal(m.key, key) {
		return m.value
	}
	m.key = key
	m.value = compute()
	m.valid = true
	m.computations++
	return m.value
}

// Selectors derives read-only views of a store. The selected subset is
// recomputed when the table changes; totals only when the selected subset
// itself changes.
type Selectors struct {
	store *Store

	mu       sync.Mutex
	selected memo[uint64, []Item]
	totals   memo[[]Item, Totals]
}

func NewSelectors(store *Store) *Selectors {
	return &Selectors{
		store:    store,
		selected: memo[uint64, []Item]{equal: func(a, b uint64) bool { return a == b }},
		totals:   memo[[]Item, Totals]{equal: sameLines},
	}
}

// SelectedItems returns the selected items in table order.
func (s *Selectors) SelectedItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selectedLocked())
}

// Totals returns the quantity and price sums over the selected items.
func (s *Selectors) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	selected := s.selectedLocked()
	return s.totals.get(selected, func() Totals {
		return sumLines(selected)
	})
}

// AllSelected reports whether the cart is non-empty and every in-stock item
// is selected. It drives the select-all checkbox.
func (s *Selectors) AllSelected() bool {
	items, _ := s.store.view()
	return len(items) > 0 && everySelectableSelected(items)
}

// Recomputations counts how many times totals were actually computed.
func (s *Selectors) Recomputations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals.computations
}

func (s *Selectors) selectedLocked() []Item {
	items, rev := s.store.view()
	return s.selected.get(rev, func() []Item {
		out := make([]Item, 0, len(items))
		for _, item := range items {
			if item.Selected {
				out = append(out, item)
			}
		}
		return out
	})
}

func sumLines(items []Item) Totals {
	totals := Totals{Price: decimal.Zero}
	for _, item := range items {
		totals.Quantity += item.Quantity
		totals.Price = totals.Price.Add(item.LineTotal())
	}
	return totals
}

// sameLines compares the fields totals depend on.
func sameLines(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Quantity != b[i].Quantity || !a[i].Book.Price.Equal(b[i].Book.Price) {
			return false
		}
	}
	return true
}

func everySelectableSelected(items []Item) bool {
	for _, item := range items {
		if item.Book.InStock() && !item.Selected {
			return false
		}
	}
	return true
}
