package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/HuuThai2910/wisdom-books-sub000/api/middleware"
	"github.com/HuuThai2910/wisdom-books-sub000/api/responses"
	"github.com/HuuThai2910/wisdom-books-sub000/api/validators"
	"github.com/HuuThai2910/wisdom-books-sub000/internal/cart"
	"github.com/HuuThai2910/wisdom-books-sub000/internal/session"
	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
)

// SessionProvider hands out the cart session of the authenticated user.
type SessionProvider interface {
	Acquire(ctx context.Context, userID, token string) (*session.Session, error)
}

type bookPayload struct {
	ID       int64           `json:"id" validate:"gt=0"`
	Title    string          `json:"title" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0"`
	Image    string          `json:"image"`
}

type addItemRequest struct {
	Book     bookPayload `json:"book"`
	Quantity int         `json:"quantity"`
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
}

type quantityInputRequest struct {
	Value *string `json:"value" validate:"required"`
}

// eventResponse answers a cart page event: the cart as it now renders plus
// the notices the event raised.
type eventResponse struct {
	Cart    session.View  `json:"cart"`
	Notices []cart.Notice `json:"notices"`
}

type addItemResponse struct {
	Item cart.Item    `json:"item"`
	Cart session.View `json:"cart"`
}

func (p bookPayload) toBook() (cart.Book, error) {
	if p.Price.IsNegative() {
		return cart.Book{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"book.price": "must not be negative"})
	}
	return cart.Book{ID: p.ID, Title: p.Title, Price: p.Price, Quantity: p.Quantity, Image: p.Image}, nil
}

func sessionFor(w http.ResponseWriter, r *http.Request, provider SessionProvider, logg *logger.Logger) (*session.Session, bool) {
	if provider == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart sessions unavailable"))
		return nil, false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return nil, false
	}
	sess, err := provider.Acquire(r.Context(), userID, middleware.AccessTokenFromContext(r.Context()))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return sess, true
}

// writeEvent renders the outcome of a local page event. Validation failures
// already reached the shopper as notices, so they still answer 200.
func writeEvent(w http.ResponseWriter, r *http.Request, sess *session.Session, logg *logger.Logger, err error) {
	if err != nil && pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, eventResponse{Cart: sess.View(), Notices: sess.Notices()})
}

// CartView renders the cart page.
func CartView(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

// CartRefresh reloads the cart from the cart service.
func CartRefresh(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		if err := sess.Refresh(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

// CartAddItem adds copies of a book after the local stock pre-flight.
func CartAddItem(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		book, err := payload.Book.toBook()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		item, err := sess.Add(r.Context(), book, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, addItemResponse{Item: item, Cart: sess.View()})
	}
}

func CartRemoveItems(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload idsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		if err := sess.Remove(r.Context(), payload.IDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

func CartClear(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		if err := sess.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

// itemEvent adapts a per-line session event into a handler.
func itemEvent(provider SessionProvider, logg *logger.Logger, apply func(*session.Session, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		writeEvent(w, r, sess, logg, apply(sess, id))
	}
}

func CartIncrement(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return itemEvent(provider, logg, (*session.Session).Increment)
}

func CartDecrement(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return itemEvent(provider, logg, (*session.Session).Decrement)
}

func CartQuantityBlur(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return itemEvent(provider, logg, (*session.Session).Blur)
}

func CartToggleSelect(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return itemEvent(provider, logg, (*session.Session).ToggleSelect)
}

// CartQuantityInput records a keystroke in the quantity field. Non-digit
// input is refused outright since it never reaches the field.
func CartQuantityInput(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quantityInputRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		if err := sess.TextInput(id, *payload.Value); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeEvent(w, r, sess, logg, nil)
	}
}

func CartToggleSelectAll(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		sess.ToggleSelectAll()
		writeEvent(w, r, sess, logg, nil)
	}
}

// CartNotices drains the pending notices.
func CartNotices(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, sess.Notices())
	}
}

// CartCompleteCheckout drops purchased lines after the order service
// confirmed checkout.
func CartCompleteCheckout(provider SessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload idsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, ok := sessionFor(w, r, provider, logg)
		if !ok {
			return
		}
		if err := sess.CompleteCheckout(payload.IDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}
