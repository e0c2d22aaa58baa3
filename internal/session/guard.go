package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/redis"
)

const addGuardScope = "cart_add"

// AddGuard refuses an identical add-to-cart request from the same user
// within a short window, so a double click cannot add the copies twice.
// Redis outages fail open.
type AddGuard struct {
	store  redis.IdempotencyStore
	window time.Duration
	logg   *logger.Logger
}

func NewAddGuard(store redis.IdempotencyStore, window time.Duration, logg *logger.Logger) (*AddGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("add guard window must be positive")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AddGuard{store: store, window: window, logg: logg}, nil
}

func (g *AddGuard) key(userID string, bookID int64, quantity int) string {
	return g.store.IdempotencyKey(addGuardScope, userID, strconv.FormatInt(bookID, 10), strconv.Itoa(quantity))
}

func (g *AddGuard) Acquire(ctx context.Context, userID string, bookID int64, quantity int) error {
	ok, err := g.store.SetNX(ctx, g.key(userID, bookID, quantity), "1", g.window)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "cart.add_guard.unavailable")
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "this book was just added to your cart").
			WithDetails(map[string]any{"book_id": bookID, "quantity": quantity})
	}
	return nil
}

// Release lifts the guard after a failed add so the user may retry at once.
func (g *AddGuard) Release(ctx context.Context, userID string, bookID int64, quantity int) {
	if err := g.store.Del(ctx, g.key(userID, bookID, quantity)); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "cart.add_guard.release_failed")
	}
}
