package cart

import "sync"

// NoticeKind classifies a user-visible notification.
type NoticeKind string

const (
	NoticeExceedsStock    NoticeKind = "exceeds_stock"
	NoticeInvalidQuantity NoticeKind = "invalid_quantity"
	NoticeOutOfStock      NoticeKind = "out_of_stock"
	NoticeStockConflict   NoticeKind = "stock_conflict"
	NoticeRemoteFailure   NoticeKind = "remote_failure"
)

// Notice is a toast-style message for the storefront.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	ItemID  int64      `json:"item_id,omitempty"`
	Op      Op         `json:"op,omitempty"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// Inbox buffers notices until the storefront polls for them. When full the
// oldest notice is dropped.
type Inbox struct {
	mu      sync.Mutex
	limit   int
	notices []Notice
	dropped int
}

func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 1
	}
	return &Inbox{limit: limit}
}

func (b *Inbox) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == b.limit {
		b.notices = b.notices[1:]
		b.dropped++
	}
	b.notices = append(b.notices, n)
}

// Drain returns the buffered notices in arrival order and empties the inbox.
func (b *Inbox) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		return []Notice{}
	}
	return out
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notices)
}

// Dropped counts notices discarded because the inbox was full.
func (b *Inbox) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
