package cart

import (
	"context"
	"sync"
	"time"
)

// SelectAllController owns the select-all checkbox. Toggles apply to every
// line at once and collapse into one bulk write.
type SelectAllController struct {
	ctx      context.Context
	store    *Store
	syncer   *Syncer
	debounce *Debouncer

	op     sync.Mutex
	mu     sync.Mutex
	target bool
}

func NewSelectAllController(ctx context.Context, syncer *Syncer, sched Scheduler, delay time.Duration) *SelectAllController {
	return &SelectAllController{
		ctx:      context.WithoutCancel(ctx),
		store:    syncer.Store(),
		syncer:   syncer,
		debounce: NewDebouncer(sched, delay),
	}
}

// ToggleSelectAll selects every in-stock line unless all of them already
// are, in which case it deselects everything. An empty cart is left alone.
func (c *SelectAllController) ToggleSelectAll() {
	c.op.Lock()
	defer c.op.Unlock()

	items := c.store.Items()
	if len(items) == 0 {
		return
	}
	next := !everySelectableSelected(items)
	c.store.PatchSelectAll(next)

	c.mu.Lock()
	c.target = next
	c.mu.Unlock()
	c.debounce.Arm(c.flush)
}

func (c *SelectAllController) Flush() bool {
	return c.debounce.Flush()
}

func (c *SelectAllController) Close() {
	c.debounce.Close()
}

func (c *SelectAllController) Wait() {
	c.debounce.Wait()
}

func (c *SelectAllController) flush() {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()

	send := c.store.ClaimSelectAllWrite(target)
	c.syncer.Observer().ObserveFlush(controllerSelectAll, send)
	if send {
		if err := c.syncer.UpdateSelectAll(c.ctx, target); err != nil {
			return
		}
	}
	if target {
		c.deselectSoldOut()
	}
}

// deselectSoldOut undoes the bulk select on lines that are out of stock;
// the cart service selects every line, checkout must never see them.
func (c *SelectAllController) deselectSoldOut() {
	ids := c.store.ClaimSoldOutDeselect()
	if len(ids) == 0 {
		return
	}
	selections := make([]Selection, 0, len(ids))
	for _, id := range ids {
		selections = append(selections, Selection{ID: id, Selected: false})
	}
	logg := c.syncer.Logger()
	logg.Info(logg.WithField(c.ctx, "cart_item_ids", ids), "cart.select_all.deselect_sold_out")
	_ = c.syncer.UpdateSelections(c.ctx, selections)
}
