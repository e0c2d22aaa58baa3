package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Op names a remote cart operation.
type Op string

const (
	OpFetch            Op = "fetch"
	OpAdd              Op = "add"
	OpUpdateQuantity   Op = "update_quantity"
	OpUpdateSelections Op = "update_selections"
	OpUpdateSelectAll  Op = "update_select_all"
	OpRemove           Op = "remove"
	OpClear            Op = "clear"
)

// Phase is the lifecycle state of one remote operation.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseFulfilled Phase = "fulfilled"
	PhaseRejected  Phase = "rejected"
)

var failureMessages = map[Op]string{
	OpFetch:            "could not load your cart",
	OpAdd:              "could not add the book to your cart",
	OpUpdateQuantity:   "could not update the quantity",
	OpUpdateSelections: "could not update the selection",
	OpUpdateSelectAll:  "could not update the selection",
	OpRemove:           "could not remove the items",
	OpClear:            "could not clear your cart",
}

// Observer receives sync telemetry. Labels are plain strings so metric
// implementations need not import this package.
type Observer interface {
	ObserveOp(op, phase string, elapsed time.Duration)
	ObserveFlush(controller string, sent bool)
	ObserveStale(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveOp(string, string, time.Duration) {}
func (nopObserver) ObserveFlush(string, bool)              {}
func (nopObserver) ObserveStale(string)                    {}

// SyncerOption customises a Syncer.
type SyncerOption func(*Syncer)

func WithNotifier(n Notifier) SyncerOption {
	return func(s *Syncer) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithObserver(o Observer) SyncerOption {
	return func(s *Syncer) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *logger.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logg = l
		}
	}
}

// WithDiscardStale toggles sequence checks on update responses.
func WithDiscardStale(enabled bool) SyncerOption {
	return func(s *Syncer) {
		s.discardStale = enabled
	}
}

// WithSpawner replaces the goroutine launcher used for background writes.
func WithSpawner(spawn func(func())) SyncerOption {
	return func(s *Syncer) {
		if spawn != nil {
			s.spawn = spawn
		}
	}
}

// Syncer runs remote cart operations and folds their results into the store.
// Each operation moves through pending, then fulfilled or rejected; a
// rejection records the message on the store and raises a notice but never
// rolls back optimistic edits.
type Syncer struct {
	store        *Store
	remote       Remote
	notifier     Notifier
	observer     Observer
	logg         *logger.Logger
	discardStale bool
	spawn        func(func())

	fetches  singleflight.Group
	inflight sync.WaitGroup
}

func NewSyncer(store *Store, remote Remote, opts ...SyncerOption) (*Syncer, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if remote == nil {
		return nil, fmt.Errorf("cart remote required")
	}
	s := &Syncer{
		store:        store,
		remote:       remote,
		notifier:     discardNotifier{},
		observer:     nopObserver{},
		logg:         logger.Nop(),
		discardStale: true,
		spawn:        func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Syncer) Store() *Store { return s.store }

func (s *Syncer) Notifier() Notifier { return s.notifier }

func (s *Syncer) Observer() Observer { return s.observer }

func (s *Syncer) Logger() *logger.Logger { return s.logg }

// Go runs fn in the background and tracks it for Wait.
func (s *Syncer) Go(fn func()) {
	s.inflight.Add(1)
	s.spawn(func() {
		defer s.inflight.Done()
		fn()
	})
}

// Wait blocks until background writes finish or ctx is done.
func (s *Syncer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch loads the full cart. Concurrent calls share one request.
func (s *Syncer) Fetch(ctx context.Context) error {
	s.store.BeginLoading()
	finish := s.begin(ctx, OpFetch)

	v, err, _ := s.fetches.Do(string(OpFetch), func() (any, error) {
		return s.remote.FetchCart(ctx)
	})
	if err != nil {
		err = s.reject(ctx, OpFetch, 0, err)
		finish(err)
		return err
	}
	s.store.ReplaceAll(v.([]Item))
	s.store.Succeed()
	finish(nil)
	return nil
}

// Add puts quantity copies of book into the cart. Requests that cannot
// succeed against the known stock are refused before any network call.
func (s *Syncer) Add(ctx context.Context, book Book, quantity int) (Item, error) {
	if err := s.preflightAdd(book, quantity); err != nil {
		return Item{}, err
	}

	finish := s.begin(ctx, OpAdd)
	item, err := s.remote.AddItem(ctx, book.ID, quantity)
	if err != nil {
		err = s.reject(ctx, OpAdd, 0, err)
		finish(err)
		return Item{}, err
	}
	s.store.Upsert(item)
	finish(nil)
	return item, nil
}

func (s *Syncer) preflightAdd(book Book, quantity int) error {
	if quantity < 1 {
		err := invalidQuantity(0, quantity)
		s.raise(NoticeInvalidQuantity, OpAdd, 0, err)
		return err
	}
	if !book.InStock() {
		err := outOfStock(Item{Book: book})
		s.raise(NoticeOutOfStock, OpAdd, 0, err)
		return err
	}
	inCart := 0
	var itemID int64
	if existing, ok := s.store.ItemByBook(book.ID); ok {
		inCart, itemID = existing.Quantity, existing.ID
	}
	if inCart+quantity > book.Quantity {
		err := exceedsStock(Item{ID: itemID, Book: book})
		s.raise(NoticeExceedsStock, OpAdd, itemID, err)
		return err
	}
	return nil
}

// UpdateQuantity writes an item's quantity. seq is the local sequence the
// value was read at; older responses do not overwrite newer local edits.
func (s *Syncer) UpdateQuantity(ctx context.Context, id int64, quantity int, seq uint64) (Item, error) {
	finish := s.begin(ctx, OpUpdateQuantity)
	item, err := s.remote.UpdateItem(ctx, id, quantity)
	if err != nil {
		s.store.ForgetQuantity(id)
		err = s.reject(ctx, OpUpdateQuantity, id, err)
		finish(err)
		return Item{}, err
	}
	s.apply(ctx, OpUpdateQuantity, item, seq)
	finish(nil)
	return item, nil
}

func (s *Syncer) UpdateSelections(ctx context.Context, selections []Selection) error {
	finish := s.begin(ctx, OpUpdateSelections)
	if err := s.remote.UpdateSelections(ctx, selections); err != nil {
		ids := make([]int64, 0, len(selections))
		for _, sel := range selections {
			ids = append(ids, sel.ID)
		}
		s.store.ForgetSelection(ids...)
		var itemID int64
		if len(ids) == 1 {
			itemID = ids[0]
		}
		err = s.reject(ctx, OpUpdateSelections, itemID, err)
		finish(err)
		return err
	}
	finish(nil)
	return nil
}

func (s *Syncer) UpdateSelectAll(ctx context.Context, selected bool) error {
	finish := s.begin(ctx, OpUpdateSelectAll)
	if err := s.remote.UpdateSelectAll(ctx, selected); err != nil {
		s.store.ForgetSelection()
		err = s.reject(ctx, OpUpdateSelectAll, 0, err)
		finish(err)
		return err
	}
	finish(nil)
	return nil
}

// Remove deletes the given items remotely, then locally.
func (s *Syncer) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item id is required")
	}
	finish := s.begin(ctx, OpRemove)
	if err := s.remote.RemoveItems(ctx, ids); err != nil {
		err = s.reject(ctx, OpRemove, 0, err)
		finish(err)
		return err
	}
	s.store.RemoveIDs(ids)
	finish(nil)
	return nil
}

// Clear empties the cart remotely, then locally.
func (s *Syncer) Clear(ctx context.Context) error {
	finish := s.begin(ctx, OpClear)
	if err := s.remote.ClearCart(ctx); err != nil {
		err = s.reject(ctx, OpClear, 0, err)
		finish(err)
		return err
	}
	s.store.Clear()
	finish(nil)
	return nil
}

func (s *Syncer) apply(ctx context.Context, op Op, item Item, seq uint64) {
	if !s.discardStale {
		s.store.Upsert(item)
		return
	}
	if fresh := s.store.Confirm(item, seq); !fresh {
		s.observer.ObserveStale(string(op))
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"op":           string(op),
			"cart_item_id": item.ID,
			"sequence":     seq,
		}), "cart.response.stale")
	}
}

// begin logs the pending phase and returns the function that records the
// terminal phase.
func (s *Syncer) begin(ctx context.Context, op Op) func(error) {
	started := time.Now()
	s.logg.Debug(s.logg.WithField(ctx, "op", string(op)), "cart.sync.pending")
	return func(err error) {
		phase := PhaseFulfilled
		if err != nil {
			phase = PhaseRejected
		}
		s.observer.ObserveOp(string(op), string(phase), time.Since(started))
	}
}

// reject records a failed remote call on the store and raises a notice.
// Untyped errors are reported as dependency failures.
func (s *Syncer) reject(ctx context.Context, op Op, itemID int64, err error) error {
	if pkgerrors.As(err) == nil {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, failureMessages[op])
	}

	kind := NoticeRemoteFailure
	message := failureMessages[op]
	if pkgerrors.CodeOf(err) == pkgerrors.CodeConflict {
		kind = NoticeStockConflict
		message = pkgerrors.UserMessage(err)
	}
	s.store.Fail(message)
	s.raise(kind, op, itemID, err)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"op":           string(op),
		"cart_item_id": itemID,
		"code":         string(pkgerrors.CodeOf(err)),
	})
	s.logg.Error(logCtx, "cart.sync.rejected", err)
	return err
}

func (s *Syncer) raise(kind NoticeKind, op Op, itemID int64, err error) {
	s.notifier.Notify(Notice{
		Kind:    kind,
		ItemID:  itemID,
		Op:      op,
		Code:    string(pkgerrors.CodeOf(err)),
		Message: pkgerrors.UserMessage(err),
	})
}
