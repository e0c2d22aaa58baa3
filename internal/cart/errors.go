package cart

import (
	"fmt"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
)

func itemNotFound(id int64) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart item %d not found", id)).
		WithDetails(map[string]any{"item_id": id})
}

func invalidQuantity(id int64, quantity int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
		WithDetails(map[string]any{"item_id": id, "quantity": quantity})
}

func invalidQuantityInput(id int64, raw string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a whole number of at least 1").
		WithDetails(map[string]any{"item_id": id, "input": raw})
}

func exceedsStock(item Item) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("only %d copies of %q are in stock", item.Book.Quantity, item.Book.Title)).
		WithDetails(map[string]any{"item_id": item.ID, "stock": item.Book.Quantity})
}

func outOfStock(item Item) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%q is out of stock", item.Book.Title)).
		WithDetails(map[string]any{"item_id": item.ID})
}
