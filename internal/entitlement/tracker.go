// Package entitlement tracks the premium window and the user-created
// objectives (circles, goals and funds) counted against the free quota.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/logging"
	"github.com/congo-pay/tontine/internal/namespace"
)

// DefaultFreeQuota is the combined number of objectives a free user may create.
const DefaultFreeQuota = 3

var (
	// ErrQuotaExceeded occurs when a free user already owns the quota of objectives.
	ErrQuotaExceeded = errors.New("objective quota exceeded")
	// ErrUnknownKind occurs for objective kinds other than circle, goal and fund.
	ErrUnknownKind = errors.New("unknown objective kind")
	// ErrInvalidObjective occurs when an objective is not a JSON value.
	ErrInvalidObjective = errors.New("objective must be valid JSON")
)

// Kind names one of the objective collections.
type Kind string

const (
	KindCircle Kind = "circle"
	KindGoal   Kind = "goal"
	KindFund   Kind = "fund"
)

// Kinds lists every objective kind in display order.
var Kinds = []Kind{KindCircle, KindGoal, KindFund}

var kindFields = map[Kind]string{
	KindCircle: kvstore.FieldCircles,
	KindGoal:   kvstore.FieldGoals,
	KindFund:   kvstore.FieldFunds,
}

// ParseKind accepts singular and plural names; "tontine" is an alias for circle.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "circle", "circles", "tontine", "tontines":
		return KindCircle, nil
	case "goal", "goals":
		return KindGoal, nil
	case "fund", "funds":
		return KindFund, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Snapshot is a point-in-time view of the entitlement state.
type Snapshot struct {
	Premium bool
	Expiry  time.Time
	Counts  map[Kind]int
	Total   int
	Quota   int
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for expiry and malformed-data reports.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithQuota overrides DefaultFreeQuota. Values below zero are ignored.
func WithQuota(quota int) Option {
	return func(t *Tracker) {
		if quota >= 0 {
			t.quota = quota
		}
	}
}

// Tracker owns one user's premium state and objective collections.
//
// Expiry is evaluated lazily: on Load and before every quota decision. Plain
// reads such as IsPremium report the state as of the last evaluation.
type Tracker struct {
	mu     sync.Mutex
	ns     namespace.Namespace
	store  kvstore.Store
	logger *slog.Logger
	now    func() time.Time
	quota  int

	premium     bool
	expiry      time.Time
	collections map[Kind][]json.RawMessage
}

// New builds an empty tracker for the namespace. Call Load to rehydrate it.
func New(ns namespace.Namespace, store kvstore.Store, opts ...Option) *Tracker {
	t := &Tracker{
		ns:          ns,
		store:       store,
		logger:      logging.Discard(),
		now:         func() time.Time { return time.Now().UTC() },
		quota:       DefaultFreeQuota,
		collections: make(map[Kind][]json.RawMessage, len(Kinds)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads premium state and all collections. A premium flag whose expiry
// has passed, or cannot be parsed, is cleared from the store.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := make(map[string]string, len(trackedFields))
	for _, field := range trackedFields {
		raw, ok, err := t.store.Read(ctx, t.ns, field)
		if err != nil {
			return fmt.Errorf("read %s: %w", field, err)
		}
		if ok {
			current[field] = raw
		}
	}
	t.apply(t.decode(current))
	return t.expireIfDue(ctx)
}

// trackedFields are read together so quota decisions see every collection.
var trackedFields = []string{
	kvstore.FieldPremium,
	kvstore.FieldPremiumExpiry,
	kvstore.FieldCircles,
	kvstore.FieldGoals,
	kvstore.FieldFunds,
}

type state struct {
	premium     bool
	expiry      time.Time
	collections map[Kind][]json.RawMessage
}

func (st state) total() int {
	total := 0
	for _, items := range st.collections {
		total += len(items)
	}
	return total
}

// decode parses persisted fields. A set flag with an unparsable expiry gets a
// zero expiry, which counts as lapsed.
func (t *Tracker) decode(current map[string]string) state {
	st := state{collections: make(map[Kind][]json.RawMessage, len(Kinds))}
	if current[kvstore.FieldPremium] == "true" {
		expiry, err := time.Parse(time.RFC3339Nano, current[kvstore.FieldPremiumExpiry])
		if err != nil {
			t.logger.Warn("malformed premium expiry", slog.String("namespace", t.ns.String()), slog.Any("error", err))
		}
		st.premium, st.expiry = true, expiry
	}
	for _, kind := range Kinds {
		raw, ok := current[kindFields[kind]]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			t.logger.Warn("malformed persisted objectives",
				slog.String("namespace", t.ns.String()),
				slog.String("kind", string(kind)),
				slog.Any("error", err))
			continue
		}
		st.collections[kind] = items
	}
	return st
}

func (t *Tracker) snapshotLocked() state {
	collections := make(map[Kind][]json.RawMessage, len(t.collections))
	for kind, items := range t.collections {
		collections[kind] = items
	}
	return state{premium: t.premium, expiry: t.expiry, collections: collections}
}

func (t *Tracker) apply(st state) {
	t.premium, t.expiry, t.collections = st.premium, st.expiry, st.collections
}

// update re-reads the durable state inside one store update, clears a lapsed
// premium window, lets fn change it and mirrors the result into memory.
// fn returns the fields to write. Callers hold t.mu.
func (t *Tracker) update(ctx context.Context, fn func(st *state) (map[string]string, error)) error {
	if t.ns.IsZero() {
		st := t.snapshotLocked()
		t.lapse(&st)
		if _, err := fn(&st); err != nil {
			return err
		}
		t.apply(st)
		return nil
	}

	var (
		st     state
		loaded bool
		lapsed bool
	)
	err := t.store.Update(ctx, t.ns, trackedFields, func(current map[string]string) (kvstore.Mutation, error) {
		st, loaded = t.decode(current), true
		var m kvstore.Mutation
		if lapsed = t.lapse(&st); lapsed {
			m.Delete = []string{kvstore.FieldPremium, kvstore.FieldPremiumExpiry}
		}
		set, err := fn(&st)
		if err != nil {
			return kvstore.Mutation{}, err
		}
		m.Set = set
		return m, nil
	})
	if !loaded || (err != nil && !errors.Is(err, ErrQuotaExceeded)) {
		return err
	}
	if err == nil && lapsed {
		t.logger.Info("premium expired", slog.String("namespace", t.ns.String()))
	}
	t.apply(st)
	return err
}

// lapse reverts st to free when its premium window is over.
func (t *Tracker) lapse(st *state) bool {
	if !st.premium || st.expiry.After(t.now()) {
		return false
	}
	st.premium, st.expiry = false, time.Time{}
	return true
}

// expireIfDue reverts to free and clears the persisted premium fields when the
// expiry is not in the future, unless another writer extended it meanwhile.
// Callers hold t.mu.
func (t *Tracker) expireIfDue(ctx context.Context) error {
	if !t.premium || t.expiry.After(t.now()) {
		return nil
	}
	if err := t.update(ctx, func(*state) (map[string]string, error) { return nil, nil }); err != nil {
		return fmt.Errorf("clear premium: %w", err)
	}
	return nil
}

// ActivatePremium grants premium for the given number of months from now and
// returns the new expiry. Durations below one month are raised to one.
func (t *Tracker) ActivatePremium(ctx context.Context, months int) (time.Time, error) {
	if months < 1 {
		months = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := t.now().AddDate(0, months, 0)
	err := t.store.WriteMany(ctx, t.ns, map[string]string{
		kvstore.FieldPremium:       "true",
		kvstore.FieldPremiumExpiry: expiry.Format(time.RFC3339Nano),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("persist premium: %w", err)
	}
	t.premium, t.expiry = true, expiry
	return expiry, nil
}

// CanCreate reports whether another objective of kind may be added, judged
// against the durable state.
func (t *Tracker) CanCreate(ctx context.Context, kind Kind) (bool, error) {
	if _, ok := kindFields[kind]; !ok {
		return false, ErrUnknownKind
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.update(ctx, func(*state) (map[string]string, error) { return nil, nil }); err != nil {
		return false, err
	}
	return t.premium || t.totalLocked() < t.quota, nil
}

func (t *Tracker) totalLocked() int {
	total := 0
	for _, items := range t.collections {
		total += len(items)
	}
	return total
}

// Add appends an objective to its collection and persists the collection.
// The quota is checked against the durable state; free users at the quota get
// ErrQuotaExceeded and nothing is written.
func (t *Tracker) Add(ctx context.Context, kind Kind, objective json.RawMessage) error {
	field, ok := kindFields[kind]
	if !ok {
		return ErrUnknownKind
	}
	if !json.Valid(objective) {
		return ErrInvalidObjective
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.update(ctx, func(st *state) (map[string]string, error) {
		if !st.premium && st.total() >= t.quota {
			return nil, ErrQuotaExceeded
		}
		current := st.collections[kind]
		items := make([]json.RawMessage, 0, len(current)+1)
		items = append(items, current...)
		items = append(items, append(json.RawMessage(nil), objective...))

		payload, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("encode %s collection: %w", kind, err)
		}
		st.collections[kind] = items
		return map[string]string{field: string(payload)}, nil
	})
}

// Objectives returns a copy of the collection for kind.
func (t *Tracker) Objectives(kind Kind) []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := t.collections[kind]
	out := make([]json.RawMessage, len(items))
	copy(out, items)
	return out
}

// IsPremium reports the premium state as of the last evaluation.
func (t *Tracker) IsPremium() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.premium
}

// PremiumDaysLeft returns the whole days remaining, rounded up, or 0.
func (t *Tracker) PremiumDaysLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.premium {
		return 0
	}
	remaining := t.expiry.Sub(t.now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// Snapshot returns the current premium state and collection counts.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[Kind]int, len(Kinds))
	for _, kind := range Kinds {
		counts[kind] = len(t.collections[kind])
	}
	return Snapshot{
		Premium: t.premium,
		Expiry:  t.expiry,
		Counts:  counts,
		Total:   t.totalLocked(),
		Quota:   t.quota,
	}
}
