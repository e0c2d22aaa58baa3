package session

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HuuThai2910/wisdom-books-sub000/internal/cart"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/config"
	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
)

// Config holds the engine tuning for one session.
type Config struct {
	QuantityDebounce  time.Duration
	SelectionDebounce time.Duration
	SelectAllDebounce time.Duration
	DiscardStale      bool
	NoticeBuffer      int
}

// ConfigFrom maps the environment configuration onto a session Config.
func ConfigFrom(cfg config.CartConfig) Config {
	return Config{
		QuantityDebounce:  cfg.QuantityDebounce,
		SelectionDebounce: cfg.SelectionDebounce,
		SelectAllDebounce: cfg.SelectAllDebounce,
		DiscardStale:      cfg.DiscardStale,
		NoticeBuffer:      cfg.NoticeBuffer,
	}
}

// Guard rejects duplicate add-to-cart submissions.
type Guard interface {
	Acquire(ctx context.Context, userID string, bookID int64, quantity int) error
	Release(ctx context.Context, userID string, bookID int64, quantity int)
}

// Option customises a Session.
type Option func(*Session)

func WithLogger(l *logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logg = l
		}
	}
}

func WithObserver(o cart.Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

func WithScheduler(sched cart.Scheduler) Option {
	return func(s *Session) {
		s.sched = sched
	}
}

func WithGuard(g Guard) Option {
	return func(s *Session) {
		s.guard = g
	}
}

// WithSpawner replaces the goroutine launcher of the session's syncer.
func WithSpawner(spawn func(func())) Option {
	return func(s *Session) {
		s.spawn = spawn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is the cart engine of one signed-in shopper: a store, its
// syncer, derived selectors and one controller per visible cart line.
type Session struct {
	id     string
	userID string
	ctx    context.Context
	cfg    Config
	creds  *Credentials

	logg     *logger.Logger
	observer cart.Observer
	sched    cart.Scheduler
	guard    Guard
	spawn    func(func())
	now      func() time.Time

	store     *cart.Store
	syncer    *cart.Syncer
	selectors *cart.Selectors
	inbox     *cart.Inbox
	selectAll *cart.SelectAllController

	mu          sync.Mutex
	quantities  map[int64]*cart.QuantityController
	selections  map[int64]*cart.SelectionController
	closed      bool
	unsubscribe func()
	lastSeen    atomic.Int64
}

func New(ctx context.Context, userID string, remote cart.Remote, creds *Credentials, cfg Config, opts ...Option) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("session user id required")
	}
	if remote == nil {
		return nil, fmt.Errorf("session remote required")
	}
	if creds == nil {
		creds = NewCredentials("")
	}

	s := &Session{
		id:         uuid.NewString(),
		userID:     userID,
		cfg:        cfg,
		creds:      creds,
		logg:       logger.Nop(),
		now:        time.Now,
		quantities: make(map[int64]*cart.QuantityController),
		selections: make(map[int64]*cart.SelectionController),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx = s.logg.WithSessionID(s.logg.WithUserID(context.WithoutCancel(ctx), userID), s.id)

	s.store = cart.NewStore()
	s.inbox = cart.NewInbox(cfg.NoticeBuffer)
	syncer, err := cart.NewSyncer(s.store, remote,
		cart.WithNotifier(s.inbox),
		cart.WithObserver(s.observer),
		cart.WithLogger(s.logg),
		cart.WithDiscardStale(cfg.DiscardStale),
		cart.WithSpawner(s.spawn),
	)
	if err != nil {
		return nil, err
	}
	s.syncer = syncer
	s.selectors = cart.NewSelectors(s.store)
	s.selectAll = cart.NewSelectAllController(s.ctx, syncer, s.sched, cfg.SelectAllDebounce)
	s.unsubscribe = s.store.Subscribe(func(cart.Change) { s.mount() })
	s.touch()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

func (s *Session) Credentials() *Credentials { return s.creds }

func (s *Session) Store() *cart.Store { return s.store }

// LastSeen is when the session last served a request.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

// mount creates controllers for lines that appeared and tears down those of
// lines that went away. The item snapshot is taken under s.mu so concurrent
// mounts apply in store order.
func (s *Session) mount() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	items := s.store.Items()
	present := make(map[int64]struct{}, len(items))
	var mounted []*cart.SelectionController
	var gone []func()
	for _, item := range items {
		present[item.ID] = struct{}{}
		if _, ok := s.quantities[item.ID]; !ok {
			s.quantities[item.ID] = cart.NewQuantityController(s.ctx, item.ID, s.syncer, s.sched, s.cfg.QuantityDebounce)
		}
		if _, ok := s.selections[item.ID]; !ok {
			sel := cart.NewSelectionController(s.ctx, item.ID, s.syncer, s.sched, s.cfg.SelectionDebounce)
			s.selections[item.ID] = sel
			mounted = append(mounted, sel)
		}
	}
	for id, qc := range s.quantities {
		if _, ok := present[id]; !ok {
			gone = append(gone, qc.Close)
			delete(s.quantities, id)
		}
	}
	for id, sc := range s.selections {
		if _, ok := present[id]; !ok {
			gone = append(gone, sc.Close)
			delete(s.selections, id)
		}
	}
	s.mu.Unlock()

	for _, closeFn := range gone {
		closeFn()
	}
	for _, sel := range mounted {
		sel.Reconcile()
	}
}

func (s *Session) quantity(id int64) (*cart.QuantityController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qc, ok := s.quantities[id]; ok {
		return qc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart item %d not found", id))
}

// mounted lists the item ids that currently have controllers.
func (s *Session) mounted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.quantities))
	for id := range s.quantities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Session) selection(id int64) (*cart.SelectionController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.selections[id]; ok {
		return sc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart item %d not found", id))
}

// Refresh reloads the cart from the remote service.
func (s *Session) Refresh(ctx context.Context) error {
	s.touch()
	return s.syncer.Fetch(ctx)
}

// Add puts a book into the cart. A repeat of the same request inside the
// guard window is refused.
func (s *Session) Add(ctx context.Context, book cart.Book, quantity int) (cart.Item, error) {
	s.touch()
	if s.guard != nil {
		if err := s.guard.Acquire(ctx, s.userID, book.ID, quantity); err != nil {
			return cart.Item{}, err
		}
	}
	item, err := s.syncer.Add(ctx, book, quantity)
	if err != nil && s.guard != nil {
		s.guard.Release(ctx, s.userID, book.ID, quantity)
	}
	return item, err
}

func (s *Session) Increment(id int64) error {
	s.touch()
	qc, err := s.quantity(id)
	if err != nil {
		return err
	}
	return qc.Increment()
}

func (s *Session) Decrement(id int64) error {
	s.touch()
	qc, err := s.quantity(id)
	if err != nil {
		return err
	}
	return qc.Decrement()
}

func (s *Session) TextInput(id int64, raw string) error {
	s.touch()
	qc, err := s.quantity(id)
	if err != nil {
		return err
	}
	return qc.OnTextInput(raw)
}

func (s *Session) Blur(id int64) error {
	s.touch()
	qc, err := s.quantity(id)
	if err != nil {
		return err
	}
	return qc.OnInputBlur()
}

func (s *Session) ToggleSelect(id int64) error {
	s.touch()
	sc, err := s.selection(id)
	if err != nil {
		return err
	}
	return sc.ToggleSelect()
}

func (s *Session) ToggleSelectAll() {
	s.touch()
	s.selectAll.ToggleSelectAll()
}

func (s *Session) Remove(ctx context.Context, ids []int64) error {
	s.touch()
	return s.syncer.Remove(ctx, ids)
}

func (s *Session) Clear(ctx context.Context) error {
	s.touch()
	return s.syncer.Clear(ctx)
}

// CompleteCheckout drops the purchased lines locally; the order service
// has already removed them remotely.
func (s *Session) CompleteCheckout(ids []int64) error {
	s.touch()
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item id is required")
	}
	s.store.RemoveIDs(ids)
	return nil
}

// Notices drains the pending user notifications.
func (s *Session) Notices() []cart.Notice {
	s.touch()
	return s.inbox.Drain()
}

// LineView is one cart line as the storefront renders it.
type LineView struct {
	cart.Item
	LineTotal string `json:"line_total"`
	Working   string `json:"working"`
	Editing   bool   `json:"editing"`
}

// View is the rendered cart page.
type View struct {
	Items       []LineView  `json:"items"`
	Status      cart.Status `json:"status"`
	Error       string      `json:"error,omitempty"`
	Totals      cart.Totals `json:"totals"`
	AllSelected bool        `json:"all_selected"`
	Revision    uint64      `json:"revision"`
}

func (s *Session) View() View {
	s.touch()
	snap := s.store.Snapshot()
	view := View{
		Items:       make([]LineView, 0, len(snap.Items)),
		Status:      snap.Status,
		Error:       snap.Error,
		Totals:      s.selectors.Totals(),
		AllSelected: s.selectors.AllSelected(),
		Revision:    snap.Revision,
	}
	for _, item := range snap.Items {
		line := LineView{
			Item:      item,
			LineTotal: item.LineTotal().StringFixed(2),
			Working:   strconv.Itoa(item.Quantity),
		}
		if qc, err := s.quantity(item.ID); err == nil && qc.Editing() {
			line.Editing = true
			line.Working = qc.Working()
		}
		view.Items = append(view.Items, line)
	}
	return view
}

// Close sends pending debounced writes, tears down every controller and
// waits for in-flight writes until ctx is done.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	quantities := make([]*cart.QuantityController, 0, len(s.quantities))
	for _, qc := range s.quantities {
		quantities = append(quantities, qc)
	}
	selections := make([]*cart.SelectionController, 0, len(s.selections))
	for _, sc := range s.selections {
		selections = append(selections, sc)
	}
	s.mu.Unlock()

	s.unsubscribe()

	s.selectAll.Flush()
	for _, qc := range quantities {
		qc.Flush()
	}
	for _, sc := range selections {
		sc.Flush()
	}

	s.selectAll.Close()
	for _, qc := range quantities {
		qc.Close()
	}
	for _, sc := range selections {
		sc.Close()
	}
	s.selectAll.Wait()
	for _, qc := range quantities {
		qc.Wait()
	}
	for _, sc := range selections {
		sc.Wait()
	}

	if err := s.syncer.Wait(ctx); err != nil {
		return fmt.Errorf("session %s: drain writes: %w", s.id, err)
	}
	s.logg.Info(s.ctx, "session.closed")
	return nil
}

// Credentials holds the bearer token the session forwards to the cart
// service. The registry refreshes it on every request.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

func (c *Credentials) Update(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token matches cartclient.TokenSource.
func (c *Credentials) Token(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session has no access token")
	}
	return c.token, nil
}
