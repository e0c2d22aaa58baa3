package cart

import "context"

// Remote is the bookstore cart service. Every call except AddItem may be
// retried by the implementation; AddItem merges into an existing line on the
// server and must be sent at most once per user intent.
type Remote interface {
	FetchCart(ctx context.Context) ([]Item, error)
	AddItem(ctx context.Context, bookID int64, quantity int) (Item, error)
	UpdateItem(ctx context.Context, id int64, quantity int) (Item, error)
	UpdateSelections(ctx context.Context, selections []Selection) error
	UpdateSelectAll(ctx context.Context, selected bool) error
	RemoveItems(ctx context.Context, ids []int64) error
	ClearCart(ctx context.Context) error
}
