package cart

import (
	"context"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
)

const (
	controllerQuantity  = "quantity"
	controllerSelection = "selection"
	controllerSelectAll = "select_all"
)

// QuantityController owns the quantity widget of one cart line. Edits are
// applied to the store at once and written remotely after the debounce
// window; only the value present when the window closes is sent.
type QuantityController struct {
	ctx      context.Context
	itemID   int64
	store    *Store
	syncer   *Syncer
	debounce *Debouncer

	// op serializes user operations; mu guards the text field state and is
	// never held while the store is mutated.
	op      sync.Mutex
	mu      sync.Mutex
	working string
	editing bool
}

func NewQuantityController(ctx context.Context, itemID int64, syncer *Syncer, sched Scheduler, delay time.Duration) *QuantityController {
	return &QuantityController{
		ctx:      context.WithoutCancel(ctx),
		itemID:   itemID,
		store:    syncer.Store(),
		syncer:   syncer,
		debounce: NewDebouncer(sched, delay),
	}
}

func (c *QuantityController) ItemID() int64 { return c.itemID }

// Working is the text shown in the quantity field: the typed text while
// editing, the committed quantity otherwise.
func (c *QuantityController) Working() string {
	c.mu.Lock()
	if c.editing {
		defer c.mu.Unlock()
		return c.working
	}
	c.mu.Unlock()
	item, ok := c.store.Item(c.itemID)
	if !ok {
		return ""
	}
	return strconv.Itoa(item.Quantity)
}

// Editing reports whether uncommitted text is in the field.
func (c *QuantityController) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing
}

// Increment adds one copy. Going past stock is refused with a notice.
func (c *QuantityController) Increment() error {
	c.op.Lock()
	defer c.op.Unlock()

	item, ok := c.store.Item(c.itemID)
	if !ok {
		return itemNotFound(c.itemID)
	}
	next := item.Quantity + 1
	if next > item.Book.Quantity {
		err := exceedsStock(item)
		c.raise(NoticeExceedsStock, err)
		return err
	}
	return c.commit(next)
}

// Decrement removes one copy, stopping at 1. A line above stock drops
// straight to the stock level.
func (c *QuantityController) Decrement() error {
	c.op.Lock()
	defer c.op.Unlock()

	item, ok := c.store.Item(c.itemID)
	if !ok {
		return itemNotFound(c.itemID)
	}
	next := item.Quantity - 1
	if item.Book.InStock() && next > item.Book.Quantity {
		next = item.Book.Quantity
	}
	if next < 1 {
		c.endEdit()
		return nil
	}
	return c.commit(next)
}

// OnTextInput records a keystroke in the quantity field. Anything other
// than digits is ignored; nothing is committed until blur.
func (c *QuantityController) OnTextInput(raw string) error {
	for _, r := range raw {
		if r < '0' || r > '9' {
			return invalidQuantityInput(c.itemID, raw)
		}
	}
	c.mu.Lock()
	c.working = raw
	c.editing = true
	c.mu.Unlock()
	return nil
}

// OnInputBlur commits the typed value. Empty, zero or unparseable input
// reverts to the committed quantity; values above stock are clamped.
func (c *QuantityController) OnInputBlur() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	raw, editing := c.working, c.editing
	c.working, c.editing = "", false
	c.mu.Unlock()
	if !editing {
		return nil
	}

	item, ok := c.store.Item(c.itemID)
	if !ok {
		return itemNotFound(c.itemID)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		err := invalidQuantityInput(c.itemID, raw)
		c.raise(NoticeInvalidQuantity, err)
		return err
	}
	if n > item.Book.Quantity {
		if !item.Book.InStock() {
			err := outOfStock(item)
			c.raise(NoticeOutOfStock, err)
			return err
		}
		c.raise(NoticeExceedsStock, exceedsStock(item))
		n = item.Book.Quantity
	}
	if n == item.Quantity {
		return nil
	}
	return c.commit(n)
}

// Flush sends a pending write immediately.
func (c *QuantityController) Flush() bool {
	return c.debounce.Flush()
}

// Close cancels any pending write. It is safe to call more than once.
func (c *QuantityController) Close() {
	c.debounce.Close()
}

// Wait blocks until a write already started by the timer has returned.
func (c *QuantityController) Wait() {
	c.debounce.Wait()
}

func (c *QuantityController) commit(quantity int) error {
	if _, err := c.store.PatchQuantity(c.itemID, quantity); err != nil {
		return err
	}
	c.endEdit()
	c.debounce.Arm(c.flush)
	return nil
}

func (c *QuantityController) endEdit() {
	c.mu.Lock()
	c.working, c.editing = "", false
	c.mu.Unlock()
}

func (c *QuantityController) flush() {
	quantity, seq, send := c.store.ClaimQuantityWrite(c.itemID)
	c.syncer.Observer().ObserveFlush(controllerQuantity, send)
	if !send {
		return
	}
	_, _ = c.syncer.UpdateQuantity(c.ctx, c.itemID, quantity, seq)
}

func (c *QuantityController) raise(kind NoticeKind, err error) {
	c.syncer.Notifier().Notify(Notice{
		Kind:    kind,
		ItemID:  c.itemID,
		Code:    string(pkgerrors.CodeOf(err)),
		Message: pkgerrors.UserMessage(err),
	})
}
