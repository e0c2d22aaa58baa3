package cart

import (
	"context"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	sched   *manualScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler only fires timers when Advance is called.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{sched: s, at: s.now + d, fn: f}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, timer := range s.timers {
		if !timer.stopped && !timer.fired && timer.at <= s.now {
			timer.fired = true
			due = append(due, timer)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, timer := range due {
		timer.fn()
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, timer := range s.timers {
		if !timer.stopped && !timer.fired {
			n++
		}
	}
	return n
}

type remoteCall struct {
	op         Op
	id         int64
	quantity   int
	selections []Selection
	selected   bool
	ids        []int64
}

// fakeRemote keeps a server-side cart and records every call.
type fakeRemote struct {
	mu     sync.Mutex
	cart   []Item
	books  map[int64]Book
	nextID int64
	calls  []remoteCall
	errs   map[Op]error
}

func newFakeRemote(items ...Item) *fakeRemote {
	r := &fakeRemote{
		cart:   slices.Clone(items),
		books:  make(map[int64]Book),
		nextID: 100,
		errs:   make(map[Op]error),
	}
	for _, item := range items {
		r.books[item.Book.ID] = item.Book
	}
	return r
}

func (r *fakeRemote) failWith(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[op] = err
}

func (r *fakeRemote) record(call remoteCall) error {
	r.calls = append(r.calls, call)
	return r.errs[call.op]
}

func (r *fakeRemote) Calls() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *fakeRemote) callsFor(op Op) []remoteCall {
	var out []remoteCall
	for _, call := range r.Calls() {
		if call.op == op {
			out = append(out, call)
		}
	}
	return out
}

func (r *fakeRemote) FetchCart(ctx context.Context) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpFetch}); err != nil {
		return nil, err
	}
	return slices.Clone(r.cart), nil
}

func (r *fakeRemote) AddItem(ctx context.Context, bookID int64, quantity int) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpAdd, id: bookID, quantity: quantity}); err != nil {
		return Item{}, err
	}
	for i, item := range r.cart {
		if item.Book.ID == bookID {
			r.cart[i].Quantity += quantity
			return r.cart[i], nil
		}
	}
	r.nextID++
	item := Item{ID: r.nextID, Book: r.books[bookID], Quantity: quantity, Selected: true}
	r.cart = append(r.cart, item)
	return item, nil
}

func (r *fakeRemote) UpdateItem(ctx context.Context, id int64, quantity int) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpUpdateQuantity, id: id, quantity: quantity}); err != nil {
		return Item{}, err
	}
	for i, item := range r.cart {
		if item.ID == id {
			r.cart[i].Quantity = quantity
			return r.cart[i], nil
		}
	}
	return Item{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

func (r *fakeRemote) UpdateSelections(ctx context.Context, selections []Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpUpdateSelections, selections: slices.Clone(selections)}); err != nil {
		return err
	}
	for _, sel := range selections {
		for i := range r.cart {
			if r.cart[i].ID == sel.ID {
				r.cart[i].Selected = sel.Selected
			}
		}
	}
	return nil
}

func (r *fakeRemote) UpdateSelectAll(ctx context.Context, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpUpdateSelectAll, selected: selected}); err != nil {
		return err
	}
	for i := range r.cart {
		r.cart[i].Selected = selected
	}
	return nil
}

func (r *fakeRemote) RemoveItems(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpRemove, ids: slices.Clone(ids)}); err != nil {
		return err
	}
	r.cart = slices.DeleteFunc(r.cart, func(item Item) bool { return slices.Contains(ids, item.ID) })
	return nil
}

func (r *fakeRemote) ClearCart(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(remoteCall{op: OpClear}); err != nil {
		return err
	}
	r.cart = nil
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	ops     []string
	flushes map[string][2]int
	stale   int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{flushes: make(map[string][2]int)}
}

func (o *recordingObserver) ObserveOp(op, phase string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op+":"+phase)
}

func (o *recordingObserver) ObserveFlush(controller string, sent bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts := o.flushes[controller]
	if sent {
		counts[0]++
	} else {
		counts[1]++
	}
	o.flushes[controller] = counts
}

func (o *recordingObserver) ObserveStale(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

const window = 400 * time.Millisecond

type harness struct {
	store    *Store
	remote   *fakeRemote
	syncer   *Syncer
	inbox    *Inbox
	sched    *manualScheduler
	observer *recordingObserver
}

func newHarness(t *testing.T, items ...Item) *harness {
	t.Helper()
	store := NewStore()
	remote := newFakeRemote(items...)
	inbox := NewInbox(32)
	observer := newRecordingObserver()
	syncer, err := NewSyncer(store, remote,
		WithNotifier(inbox),
		WithObserver(observer),
		WithSpawner(func(fn func()) { fn() }),
	)
	require.NoError(t, err)
	store.ReplaceAll(items)
	return &harness{
		store:    store,
		remote:   remote,
		syncer:   syncer,
		inbox:    inbox,
		sched:    newManualScheduler(),
		observer: observer,
	}
}

func (h *harness) quantity(t *testing.T, id int64) *QuantityController {
	t.Helper()
	c := NewQuantityController(context.Background(), id, h.syncer, h.sched, window)
	t.Cleanup(c.Close)
	return c
}

func (h *harness) selection(t *testing.T, id int64) *SelectionController {
	t.Helper()
	c := NewSelectionController(context.Background(), id, h.syncer, h.sched, window)
	t.Cleanup(c.Close)
	c.Reconcile()
	return c
}

func (h *harness) selectAll(t *testing.T) *SelectAllController {
	t.Helper()
	c := NewSelectAllController(context.Background(), h.syncer, h.sched, window)
	t.Cleanup(c.Close)
	return c
}

func (h *harness) mustItem(t *testing.T, id int64) Item {
	t.Helper()
	item, ok := h.store.Item(id)
	require.True(t, ok, "item %d missing", id)
	return item
}

func book(id int64, price string, stock int) Book {
	return Book{
		ID:       id,
		Title:    "Book " + price,
		Price:    decimal.RequireFromString(price),
		Quantity: stock,
	}
}

func line(id int64, b Book, quantity int, selected bool) Item {
	return Item{ID: id, Book: b, Quantity: quantity, Selected: selected}
}

func noticeKinds(notices []Notice) []NoticeKind {
	kinds := make([]NoticeKind, 0, len(notices))
	for _, n := range notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// serverItem is the fake service's copy of a cart line.
func (r *fakeRemote) serverItem(id int64) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.cart {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}
