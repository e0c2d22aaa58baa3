package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HuuThai2910/wisdom-books-sub000/internal/cart"
	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/types"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultRetryBase            = 100 * time.Millisecond
	responseBodyReadLimit int64 = 1024
	idempotencyHeader           = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("cart service base url is required")

// TokenSource yields the bearer token of the session the call is made for.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the bookstore cart REST API. It satisfies cart.Remote.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries uint64
	retryBase  time.Duration
	tokens     TokenSource
}

var _ cart.Remote = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry sets how many times idempotent calls are retried after a
// transport or 5xx failure, and the first backoff delay.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if base > 0 {
			c.retryBase = base
		}
	}
}

func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmed,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ForSession returns a copy of the client that authenticates with src.
func (c *Client) ForSession(src TokenSource) *Client {
	clone := *c
	clone.tokens = src
	return &clone
}

// StaticToken is a TokenSource for a fixed bearer token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

func (c *Client) FetchCart(ctx context.Context) ([]cart.Item, error) {
	var items []cart.Item
	err := c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/carts", nil, nil, &items)
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []cart.Item{}
	}
	return items, nil
}

// AddItem is sent exactly once. The server merges into an existing line
// for the same book, so a blind retry could add the copies twice.
func (c *Client) AddItem(ctx context.Context, bookID int64, quantity int) (cart.Item, error) {
	payload := struct {
		BookID   int64 `json:"bookId"`
		Quantity int   `json:"quantity"`
	}{BookID: bookID, Quantity: quantity}
	headers := http.Header{}
	headers.Set(idempotencyHeader, uuid.NewString())

	var item cart.Item
	if err := c.do(ctx, http.MethodPost, "/carts", headers, payload, &item); err != nil {
		return cart.Item{}, err
	}
	return item, nil
}

func (c *Client) UpdateItem(ctx context.Context, id int64, quantity int) (cart.Item, error) {
	payload := struct {
		Quantity int `json:"quantity"`
	}{Quantity: quantity}

	var item cart.Item
	err := c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, fmt.Sprintf("/carts/%d", id), nil, payload, &item)
	})
	if err != nil {
		return cart.Item{}, err
	}
	return item, nil
}

func (c *Client) UpdateSelections(ctx context.Context, selections []cart.Selection) error {
	return c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, "/carts/selections", nil, selections, nil)
	})
}

func (c *Client) UpdateSelectAll(ctx context.Context, selected bool) error {
	payload := struct {
		Selected bool `json:"selected"`
	}{Selected: selected}
	return c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, "/carts/select-all", nil, payload, nil)
	})
}

func (c *Client) RemoveItems(ctx context.Context, ids []int64) error {
	payload := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}
	return c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/carts", nil, payload, nil)
	})
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.retrying(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/carts/all", nil, nil, nil)
	})
}

// retrying retries fn on dependency failures only; validation, auth and
// stock conflicts are returned at once.
func (c *Client) retrying(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.maxRetries == 0 {
		return fn(ctx)
	}
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cart request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build cart request")
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "resolve session token")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart response")
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart payload")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))

	var envelope types.ErrorEnvelope
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, message)

	code := codeForStatus(resp.StatusCode)
	if code == pkgerrors.CodeDependency {
		return pkgerrors.Wrap(code, cause, "cart service unavailable")
	}
	if message == "" {
		message = pkgerrors.MetadataFor(code).PublicMessage
	}
	typed := pkgerrors.Wrap(code, cause, message)
	if envelope.Error.Details != nil {
		typed = typed.WithDetails(envelope.Error.Details)
	}
	return typed
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}
