package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
	"go.uber.org/multierr"
)

const sweepJob = "session_sweep"

// Factory builds a fresh session for an authenticated user.
type Factory func(ctx context.Context, userID string, creds *Credentials) (*Session, error)

// Gauge receives the number of live sessions.
type Gauge interface {
	SetActiveSessions(n int)
}

// JobTracker records the outcome of periodic jobs.
type JobTracker interface {
	Track(job string, started time.Time, err error)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	IdleTTL      time.Duration
	DrainTimeout time.Duration
	Logger       *logger.Logger
	Gauge        Gauge
	Jobs         JobTracker
	Now          func() time.Time
}

// Registry keeps one session per signed-in user and evicts idle ones.
type Registry struct {
	factory      Factory
	idleTTL      time.Duration
	drainTimeout time.Duration
	logg         *logger.Logger
	gauge        Gauge
	jobs         JobTracker
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(factory Factory, opts RegistryOptions) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory required")
	}
	if opts.IdleTTL <= 0 {
		return nil, fmt.Errorf("session idle ttl must be positive")
	}
	r := &Registry{
		factory:      factory,
		idleTTL:      opts.IdleTTL,
		drainTimeout: opts.DrainTimeout,
		logg:         opts.Logger,
		gauge:        opts.Gauge,
		jobs:         opts.Jobs,
		now:          opts.Now,
		sessions:     make(map[string]*Session),
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.drainTimeout <= 0 {
		r.drainTimeout = 5 * time.Second
	}
	return r, nil
}

// Acquire returns the user's session, creating and loading it on first use.
// The bearer token is refreshed on every call.
func (r *Registry) Acquire(ctx context.Context, userID, token string) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart sessions are shutting down")
	}
	if sess, ok := r.sessions[userID]; ok {
		r.mu.Unlock()
		sess.Credentials().Update(token)
		sess.touch()
		return sess, nil
	}
	sess, err := r.factory(ctx, userID, NewCredentials(token))
	if err != nil {
		r.mu.Unlock()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart session")
	}
	r.sessions[userID] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	r.report(count)
	r.logg.Info(r.logg.WithSessionID(r.logg.WithUserID(ctx, userID), sess.ID()), "session.created")

	// a failed first load is recorded on the store and surfaced as a notice
	_ = sess.Refresh(ctx)
	return sess, nil
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Session
	for userID, sess := range r.sessions {
		if sess.LastSeen().Before(cutoff) {
			idle = append(idle, sess)
			delete(r.sessions, userID)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if len(idle) == 0 {
		return 0, nil
	}
	r.report(count)
	return len(idle), r.closeAll(ctx, idle)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := r.now()
			evicted, err := r.Sweep(ctx)
			if r.jobs != nil {
				r.jobs.Track(sweepJob, started, err)
			}
			if err != nil {
				r.logg.Error(ctx, "session.sweep_failed", err)
				continue
			}
			if evicted > 0 {
				r.logg.Info(r.logg.WithField(ctx, "evicted", evicted), "session.sweep")
			}
		}
	}
}

// Close flushes and closes every session and refuses new ones.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		all = append(all, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.report(0)
	return r.closeAll(ctx, all)
}

func (r *Registry) closeAll(ctx context.Context, sessions []*Session) error {
	var err error
	for _, sess := range sessions {
		drainCtx, cancel := context.WithTimeout(ctx, r.drainTimeout)
		err = multierr.Append(err, sess.Close(drainCtx))
		cancel()
	}
	return err
}

func (r *Registry) report(count int) {
	if r.gauge != nil {
		r.gauge.SetActiveSessions(count)
	}
}
