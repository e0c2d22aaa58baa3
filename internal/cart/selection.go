package cart

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
)

// SelectionController owns the checkbox of one cart line. It also keeps an
// out-of-stock line deselected, locally and remotely: Reconcile runs on every
// store change touching the line, and should be called once after mounting.
type SelectionController struct {
	ctx      context.Context
	itemID   int64
	store    *Store
	syncer   *Syncer
	debounce *Debouncer

	op          sync.Mutex
	unsubscribe func()
}

func NewSelectionController(ctx context.Context, itemID int64, syncer *Syncer, sched Scheduler, delay time.Duration) *SelectionController {
	c := &SelectionController{
		ctx:      context.WithoutCancel(ctx),
		itemID:   itemID,
		store:    syncer.Store(),
		syncer:   syncer,
		debounce: NewDebouncer(sched, delay),
	}
	c.unsubscribe = c.store.Subscribe(func(ch Change) {
		if ch.Touches(c.itemID) {
			c.Reconcile()
		}
	})
	return c
}

func (c *SelectionController) ItemID() int64 { return c.itemID }

// ToggleSelect flips the line's selected flag. Selecting an out-of-stock
// line is refused with a notice.
func (c *SelectionController) ToggleSelect() error {
	c.op.Lock()
	defer c.op.Unlock()

	item, ok := c.store.Item(c.itemID)
	if !ok {
		return itemNotFound(c.itemID)
	}
	next := !item.Selected
	if next && !item.Book.InStock() {
		err := outOfStock(item)
		c.syncer.Notifier().Notify(Notice{
			Kind:    NoticeOutOfStock,
			ItemID:  c.itemID,
			Code:    string(pkgerrors.CodeOf(err)),
			Message: pkgerrors.UserMessage(err),
		})
		return err
	}
	if _, err := c.store.PatchSelected(c.itemID, next); err != nil {
		return err
	}
	c.debounce.Arm(c.flush)
	return nil
}

// Reconcile deselects a selected line whose stock dropped to zero and
// writes that through without waiting for the debounce window.
func (c *SelectionController) Reconcile() {
	if !c.store.DeselectOutOfStock(c.itemID) {
		return
	}
	c.debounce.Cancel()
	selected, send := c.store.ClaimSelectionWrite(c.itemID)
	if !send {
		return
	}
	logg := c.syncer.Logger()
	logg.Info(logg.WithCartItemID(c.ctx, c.itemID), "cart.reconcile.deselect")
	c.syncer.Go(func() {
		_ = c.syncer.UpdateSelections(c.ctx, []Selection{{ID: c.itemID, Selected: selected}})
	})
}

func (c *SelectionController) Flush() bool {
	return c.debounce.Flush()
}

// Close cancels any pending write and stops watching the store.
func (c *SelectionController) Close() {
	c.unsubscribe()
	c.debounce.Close()
}

func (c *SelectionController) Wait() {
	c.debounce.Wait()
}

func (c *SelectionController) flush() {
	selected, send := c.store.ClaimSelectionWrite(c.itemID)
	c.syncer.Observer().ObserveFlush(controllerSelection, send)
	if !send {
		return
	}
	_ = c.syncer.UpdateSelections(c.ctx, []Selection{{ID: c.itemID, Selected: selected}})
}
