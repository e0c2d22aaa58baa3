package cart

import (
	"slices"
	"sync"
)

// Origin tells subscribers whether a change came from the server or from an
// optimistic patch.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// Change describes one committed mutation of the item table.
type Change struct {
	Origin   Origin
	IDs      []int64 // nil means any item may have changed
	Revision uint64
}

// Touches reports whether the change may affect the given item.
func (c Change) Touches(id int64) bool {
	if c.IDs == nil {
		return true
	}
	return slices.Contains(c.IDs, id)
}

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Items    []Item `json:"items"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Revision uint64 `json:"revision"`
}

// serverState is the last value the server is known to hold for an item,
// either because it told us or because we sent it.
type serverState struct {
	quantity      int
	quantityKnown bool
	selected      bool
	selectedKnown bool
}

// Store is the single in-memory table of cart items for one session. Every
// mutation goes through one of its methods; the item slice is replaced, never
// modified in place, so readers holding an older slice are never torn.
type Store struct {
	mu       sync.RWMutex
	items    []Item
	status   Status
	err      string
	revision uint64
	nextSeq  uint64
	seqs     map[int64]uint64
	server   map[int64]serverState

	subMu  sync.Mutex
	subs   map[uint64]func(Change)
	nextID uint64
}

// NewStore returns an idle, empty store.
func NewStore() *Store {
	return &Store{
		status: StatusIdle,
		seqs:   make(map[int64]uint64),
		server: make(map[int64]serverState),
		subs:   make(map[uint64]func(Change)),
	}
}

// Subscribe registers fn to run after every item mutation. fn runs on the
// mutating goroutine after the store lock is released and must not block.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// Items returns a copy of the current items.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// view exposes the current slice and revision to selectors without copying.
func (s *Store) view() ([]Item, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items, s.revision
}

func (s *Store) Item(id int64) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.items[idx], true
	}
	return Item{}, false
}

// ItemByBook finds the cart line holding the given book.
func (s *Store) ItemByBook(bookID int64) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Book.ID == bookID {
			return item, true
		}
	}
	return Item{}, false
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Sequence returns the sequence number of the latest local patch of an item.
func (s *Store) Sequence(id int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seqs[id]
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Items:    slices.Clone(s.items),
		Status:   s.status,
		Error:    s.err,
		Revision: s.revision,
	}
}

// BeginLoading marks a fetch in flight.
func (s *Store) BeginLoading() {
	s.mu.Lock()
	s.status = StatusLoading
	s.mu.Unlock()
}

// Succeed marks the last fetch as fulfilled and clears the error.
func (s *Store) Succeed() {
	s.mu.Lock()
	s.status = StatusSucceeded
	s.err = ""
	s.mu.Unlock()
}

// Fail records a rejected remote call. Items are left untouched.
func (s *Store) Fail(message string) {
	s.mu.Lock()
	s.status = StatusFailed
	s.err = message
	s.mu.Unlock()
}

// ReplaceAll swaps the whole table for a fetch result. Duplicate ids keep
// their first occurrence.
func (s *Store) ReplaceAll(items []Item) {
	s.mu.Lock()
	next := make([]Item, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	server := make(map[int64]serverState, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		next = append(next, item)
		server[item.ID] = stateOf(item)
	}
	for id := range s.seqs {
		if _, ok := seen[id]; !ok {
			delete(s.seqs, id)
		}
	}
	s.items = next
	s.server = server
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginRemote, Revision: rev})
}

// Upsert replaces the item with the same id by the server's version, or
// appends it when absent.
func (s *Store) Upsert(item Item) {
	s.mu.Lock()
	s.upsertLocked(item)
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginRemote, IDs: []int64{item.ID}, Revision: rev})
}

// Confirm applies the response of a write that was sent when the item's
// local sequence was seq. A response older than the newest local patch only
// contributes its book snapshot; local quantity and selection are kept.
// Responses for items that were removed meanwhile are dropped. It reports
// whether the response was applied wholesale.
func (s *Store) Confirm(item Item, seq uint64) bool {
	s.mu.Lock()
	idx := s.indexOf(item.ID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	fresh := seq >= s.seqs[item.ID]
	if fresh {
		s.upsertLocked(item)
	} else {
		merged := s.items[idx]
		merged.Book = item.Book
		s.replaceAt(idx, merged)
		s.server[item.ID] = stateOf(item)
	}
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginRemote, IDs: []int64{item.ID}, Revision: rev})
	return fresh
}

// RemoveIDs drops every item whose id is in ids.
func (s *Store) RemoveIDs(ids []int64) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	next := make([]Item, 0, len(s.items))
	var removed []int64
	for _, item := range s.items {
		if _, ok := drop[item.ID]; ok {
			removed = append(removed, item.ID)
			delete(s.seqs, item.ID)
			delete(s.server, item.ID)
			continue
		}
		next = append(next, item)
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = next
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginRemote, IDs: removed, Revision: rev})
}

// Clear empties the table unconditionally.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.seqs = make(map[int64]uint64)
	s.server = make(map[int64]serverState)
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginRemote, Revision: rev})
}

// PatchQuantity optimistically sets an item's quantity. Quantities below 1
// are rejected, as are increases beyond stock; a decrease is always allowed
// so an over-stock line can move back into range.
func (s *Store) PatchQuantity(id int64, quantity int) (uint64, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return 0, itemNotFound(id)
	}
	item := s.items[idx]
	if quantity < 1 {
		s.mu.Unlock()
		return 0, invalidQuantity(id, quantity)
	}
	if quantity > item.Book.Quantity && quantity > item.Quantity {
		s.mu.Unlock()
		return 0, exceedsStock(item)
	}
	if quantity == item.Quantity {
		seq := s.seqs[id]
		s.mu.Unlock()
		return seq, nil
	}
	item.Quantity = quantity
	seq := s.patchLocked(idx, item)
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginLocal, IDs: []int64{id}, Revision: rev})
	return seq, nil
}

// PatchSelected optimistically sets an item's selected flag. Selecting an
// out-of-stock item is rejected.
func (s *Store) PatchSelected(id int64, selected bool) (uint64, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return 0, itemNotFound(id)
	}
	item := s.items[idx]
	if selected && !item.Book.InStock() {
		s.mu.Unlock()
		return 0, outOfStock(item)
	}
	if item.Selected == selected {
		seq := s.seqs[id]
		s.mu.Unlock()
		return seq, nil
	}
	item.Selected = selected
	seq := s.patchLocked(idx, item)
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginLocal, IDs: []int64{id}, Revision: rev})
	return seq, nil
}

// PatchSelectAll optimistically sets selected on every item in one update.
// Out-of-stock items are never selected. It returns the ids that changed.
func (s *Store) PatchSelectAll(selected bool) []int64 {
	s.mu.Lock()
	next := slices.Clone(s.items)
	var changed []int64
	for i, item := range next {
		target := selected && item.Book.InStock()
		if item.Selected == target {
			continue
		}
		item.Selected = target
		next[i] = item
		s.nextSeq++
		s.seqs[item.ID] = s.nextSeq
		changed = append(changed, item.ID)
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.items = next
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginLocal, IDs: changed, Revision: rev})
	return changed
}

// DeselectOutOfStock clears selected on an out-of-stock item. It reports
// whether anything changed, so concurrent callers issue at most one write.
func (s *Store) DeselectOutOfStock(id int64) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	item := s.items[idx]
	if item.Book.InStock() || !item.Selected {
		s.mu.Unlock()
		return false
	}
	item.Selected = false
	s.patchLocked(idx, item)
	rev := s.bump()
	s.mu.Unlock()

	s.notify(Change{Origin: OriginLocal, IDs: []int64{id}, Revision: rev})
	return true
}

// ClaimQuantityWrite decides whether the item's current quantity must be
// sent. When it differs from what the server last held it is recorded as
// sent and returned along with the sequence it belongs to.
func (s *Store) ClaimQuantityWrite(id int64) (quantity int, seq uint64, send bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return 0, 0, false
	}
	item := s.items[idx]
	state := s.server[id]
	if state.quantityKnown && state.quantity == item.Quantity {
		return item.Quantity, s.seqs[id], false
	}
	state.quantity, state.quantityKnown = item.Quantity, true
	s.server[id] = state
	return item.Quantity, s.seqs[id], true
}

// ClaimSelectionWrite is the selected-flag counterpart of ClaimQuantityWrite.
func (s *Store) ClaimSelectionWrite(id int64) (selected bool, send bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return false, false
	}
	item := s.items[idx]
	state := s.server[id]
	if state.selectedKnown && state.selected == item.Selected {
		return item.Selected, false
	}
	state.selected, state.selectedKnown = item.Selected, true
	s.server[id] = state
	return item.Selected, true
}

// ClaimSelectAllWrite decides whether a bulk write of selected is needed,
// i.e. whether any item is not already known to hold the value select-all
// leaves it with remotely. Sold-out items end up deselected, so they are
// compared against false. The bulk write lands on every line, sold-out ones
// included, and is recorded that way.
func (s *Store) ClaimSelectAllWrite(selected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	send := false
	for _, item := range s.items {
		want := selected && item.Book.InStock()
		state := s.server[item.ID]
		if !state.selectedKnown || state.selected != want {
			send = true
		}
	}
	if !send {
		return false
	}
	for _, item := range s.items {
		state := s.server[item.ID]
		state.selected, state.selectedKnown = selected, true
		s.server[item.ID] = state
	}
	return true
}

// ClaimSoldOutDeselect returns the out-of-stock items the server is known
// to hold as selected while they are deselected locally, and records them
// as deselected remotely.
func (s *Store) ClaimSoldOutDeselect() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, item := range s.items {
		if item.Book.InStock() || item.Selected {
			continue
		}
		state := s.server[item.ID]
		if !state.selectedKnown || !state.selected {
			continue
		}
		state.selected = false
		s.server[item.ID] = state
		ids = append(ids, item.ID)
	}
	return ids
}

// ForgetQuantity marks the server's quantity for id as unknown after a failed write.
func (s *Store) ForgetQuantity(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.server[id]; ok {
		state.quantityKnown = false
		s.server[id] = state
	}
}

// ForgetSelection marks the server's selected flag as unknown for ids, or
// for every item when ids is empty.
func (s *Store) ForgetSelection(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		for id, state := range s.server {
			state.selectedKnown = false
			s.server[id] = state
		}
		return
	}
	for _, id := range ids {
		if state, ok := s.server[id]; ok {
			state.selectedKnown = false
			s.server[id] = state
		}
	}
}

func (s *Store) indexOf(id int64) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) upsertLocked(item Item) {
	s.server[item.ID] = stateOf(item)
	if idx := s.indexOf(item.ID); idx >= 0 {
		s.replaceAt(idx, item)
		return
	}
	next := make([]Item, len(s.items), len(s.items)+1)
	copy(next, s.items)
	s.items = append(next, item)
}

func (s *Store) replaceAt(idx int, item Item) {
	next := slices.Clone(s.items)
	next[idx] = item
	s.items = next
}

func (s *Store) patchLocked(idx int, item Item) uint64 {
	s.replaceAt(idx, item)
	s.nextSeq++
	s.seqs[item.ID] = s.nextSeq
	return s.nextSeq
}

func (s *Store) bump() uint64 {
	s.revision++
	return s.revision
}

func stateOf(item Item) serverState {
	return serverState{
		quantity:      item.Quantity,
		quantityKnown: true,
		selected:      item.Selected,
		selectedKnown: true,
	}
}
