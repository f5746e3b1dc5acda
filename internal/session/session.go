// Package session keeps one explicit state store per authenticated user.
//
// A Session is created lazily the first time a namespace is opened, rehydrated
// from the persistence backend, and dropped from memory on logout or after
// sitting idle for Options.IdleTTL. Durable state is never cleared here, and
// every mutation re-reads it, so a dropped or duplicated session cannot
// overwrite newer writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/congo-pay/tontine/internal/entitlement"
	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/ledger"
	"github.com/congo-pay/tontine/internal/namespace"
)

// ErrNoNamespace is returned when the identity cannot be resolved to a namespace.
var ErrNoNamespace = errors.New("identity has no namespace")

// Session bundles the ledger and entitlement tracker of one user.
type Session struct {
	Namespace    namespace.Namespace
	Ledger       *ledger.Ledger
	Entitlements *entitlement.Tracker
	OpenedAt     time.Time

	lastUsed atomic.Int64
}

// LastUsed reports when the session was last opened.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load()).UTC()
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

// Options configures sessions built by a Registry.
type Options struct {
	Locale    string
	FreeQuota int
	Clock     func() time.Time
	// IdleTTL evicts sessions not opened for this long. Zero selects
	// DefaultIdleTTL.
	IdleTTL time.Duration
}

// DefaultIdleTTL bounds how long an unused session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

// Registry maps namespaces to live sessions.
type Registry struct {
	store     kvstore.Store
	logger    *slog.Logger
	opts      Options
	formatter *ledger.Formatter

	mu       sync.RWMutex
	sessions map[namespace.Namespace]*Session
}

// NewRegistry builds a registry backed by store.
func NewRegistry(store kvstore.Store, logger *slog.Logger, opts Options) *Registry {
	if opts.Locale == "" {
		opts.Locale = ledger.DefaultLocale
	}
	if opts.FreeQuota <= 0 {
		opts.FreeQuota = entitlement.DefaultFreeQuota
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		store:     store,
		logger:    logger,
		opts:      opts,
		formatter: ledger.NewFormatter(opts.Locale),
		sessions:  make(map[namespace.Namespace]*Session),
	}
}

// OpenIdentity resolves the namespace for (countryCode, phone) and opens it.
func (r *Registry) OpenIdentity(ctx context.Context, countryCode, phone string) (*Session, error) {
	ns, ok := namespace.Resolve(countryCode, phone)
	if !ok {
		return nil, ErrNoNamespace
	}
	return r.Open(ctx, ns)
}

// Open returns the live session for ns, loading it from the store on first use.
func (r *Registry) Open(ctx context.Context, ns namespace.Namespace) (*Session, error) {
	if ns.IsZero() {
		return nil, ErrNoNamespace
	}

	r.mu.RLock()
	s, ok := r.sessions[ns]
	r.mu.RUnlock()
	if ok {
		s.touch(r.opts.Clock())
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[ns]; ok {
		s.touch(r.opts.Clock())
		return s, nil
	}

	logger := r.logger.With(slog.String("namespace", ns.String()))
	led := ledger.New(ns, r.store,
		ledger.WithLogger(logger),
		ledger.WithClock(r.opts.Clock),
		ledger.WithFormatter(r.formatter),
	)
	if err := led.Load(ctx); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	tracker := entitlement.New(ns, r.store,
		entitlement.WithLogger(logger),
		entitlement.WithClock(r.opts.Clock),
		entitlement.WithQuota(r.opts.FreeQuota),
	)
	if err := tracker.Load(ctx); err != nil {
		return nil, fmt.Errorf("load entitlements: %w", err)
	}

	s = &Session{Namespace: ns, Ledger: led, Entitlements: tracker, OpenedAt: r.opts.Clock()}
	s.touch(s.OpenedAt)
	r.sessions[ns] = s
	logger.Debug("session opened")
	return s, nil
}

// Close drops the in-memory session for ns. It reports whether one was open.
func (r *Registry) Close(ns namespace.Namespace) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[ns]; !ok {
		return false
	}
	delete(r.sessions, ns)
	r.logger.Debug("session closed", slog.String("namespace", ns.String()))
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the configured TTL and returns
// how many were evicted.
func (r *Registry) Sweep() int {
	cutoff := r.opts.Clock().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for ns, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, ns)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("idle sessions evicted", slog.Int("count", evicted), slog.Int("live", len(r.sessions)))
	}
	return evicted
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.opts.IdleTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
