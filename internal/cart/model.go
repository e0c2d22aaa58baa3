package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Book is the catalog snapshot embedded in a cart line. Quantity is the
// current stock, not the number of copies in the cart.
type Book struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
}

// InStock reports whether at least one copy is available.
func (b Book) InStock() bool {
	return b.Quantity > 0
}

// Item is one line of the cart, keyed by the server-assigned ID.
type Item struct {
	ID       int64 `json:"id"`
	Book     Book  `json:"book"`
	Quantity int   `json:"quantity"`
	Selected bool  `json:"selected"`
}

// LineTotal is quantity × book price.
func (i Item) LineTotal() decimal.Decimal {
	return i.Book.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Selection is one entry of an updateSelections call.
type Selection struct {
	ID       int64 `json:"id"`
	Selected bool  `json:"selected"`
}

// Status is the load state of the store.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var validStatuses = []Status{StatusIdle, StatusLoading, StatusSucceeded, StatusFailed}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	for _, candidate := range validStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStatus converts raw input into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid cart status %q", value)
	}
	return status, nil
}
