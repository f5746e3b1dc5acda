package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/namespace"
)

const testNS = namespace.Namespace("237:650000000")

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func loaded(t *testing.T, store kvstore.Store, clock *testClock) *Tracker {
	t.Helper()
	tr := New(testNS, store, WithClock(clock.Now))
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return tr
}

func objective(name string) json.RawMessage {
	return json.RawMessage(`{"name":"` + name + `"}`)
}

func TestTracker_FreeQuota(t *testing.T) {
	ctx := context.Background()
	tr := loaded(t, kvstore.NewMemory(), newClock())

	mix := []Kind{KindGoal, KindCircle, KindFund}
	for i, kind := range mix {
		ok, err := tr.CanCreate(ctx, kind)
		if err != nil || !ok {
			t.Fatalf("addition %d: expected CanCreate true, got %v (%v)", i+1, ok, err)
		}
		if err := tr.Add(ctx, kind, objective(string(kind))); err != nil {
			t.Fatalf("add %s: %v", kind, err)
		}
	}

	for _, kind := range Kinds {
		ok, err := tr.CanCreate(ctx, kind)
		if err != nil || ok {
			t.Fatalf("expected CanCreate(%s) false after quota, got %v (%v)", kind, ok, err)
		}
	}
	if err := tr.Add(ctx, KindGoal, objective("fourth")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if snap := tr.Snapshot(); snap.Total != 3 {
		t.Fatalf("expected 3 objectives, got %d", snap.Total)
	}
}

func TestTracker_PremiumLiftsQuota(t *testing.T) {
	ctx := context.Background()
	tr := loaded(t, kvstore.NewMemory(), newClock())
	for i := 0; i < DefaultFreeQuota; i++ {
		if err := tr.Add(ctx, KindCircle, objective("c")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if _, err := tr.ActivatePremium(ctx, 1); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for i := 0; i < 5; i++ {
		ok, err := tr.CanCreate(ctx, KindFund)
		if err != nil || !ok {
			t.Fatalf("expected premium to allow creation, got %v (%v)", ok, err)
		}
		if err := tr.Add(ctx, KindFund, objective("f")); err != nil {
			t.Fatalf("premium add: %v", err)
		}
	}
	if got := len(tr.Objectives(KindFund)); got != 5 {
		t.Fatalf("expected 5 funds, got %d", got)
	}
}

func TestTracker_PremiumDaysLeft(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tr := loaded(t, kvstore.NewMemory(), clock)

	if got := tr.PremiumDaysLeft(); got != 0 {
		t.Fatalf("expected 0 days for free user, got %d", got)
	}
	expiry, err := tr.ActivatePremium(ctx, 1)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !expiry.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %s", expiry)
	}
	if got := tr.PremiumDaysLeft(); got < 29 || got > 31 {
		t.Fatalf("expected about 30 days left, got %d", got)
	}

	clock.Advance(36 * time.Hour)
	if got := tr.PremiumDaysLeft(); got != 29 {
		t.Fatalf("expected 29 days left after 1.5 days, got %d", got)
	}
}

func TestTracker_PremiumExpiresOnReload(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	clock := newClock()

	tr := loaded(t, store, clock)
	if _, err := tr.ActivatePremium(ctx, 1); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clock.Advance(31*24*time.Hour + time.Minute)
	if !tr.IsPremium() {
		t.Fatalf("in-session state should stay premium until re-evaluated")
	}
	if got := tr.PremiumDaysLeft(); got != 0 {
		t.Fatalf("expected 0 days left past expiry, got %d", got)
	}

	reloaded := loaded(t, store, clock)
	if reloaded.IsPremium() {
		t.Fatalf("expected free state after reload past expiry")
	}
	for _, field := range []string{kvstore.FieldPremium, kvstore.FieldPremiumExpiry} {
		if _, ok, _ := store.Read(ctx, testNS, field); ok {
			t.Fatalf("expected %s to be cleared", field)
		}
	}
}

func TestTracker_QuotaCheckRevalidatesExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tr := loaded(t, kvstore.NewMemory(), clock)
	if _, err := tr.ActivatePremium(ctx, 1); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := tr.Add(ctx, KindGoal, objective("g")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	clock.Advance(40 * 24 * time.Hour)
	ok, err := tr.CanCreate(ctx, KindGoal)
	if err != nil {
		t.Fatalf("can create: %v", err)
	}
	if ok {
		t.Fatalf("expected quota to apply again once premium lapsed")
	}
	if tr.IsPremium() {
		t.Fatalf("expected premium to be cleared by the quota check")
	}
	if got := len(tr.Objectives(KindGoal)); got != 4 {
		t.Fatalf("lapsed premium must not truncate objectives, got %d", got)
	}
}

func TestTracker_PersistsCollections(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	clock := newClock()

	tr := loaded(t, store, clock)
	if err := tr.Add(ctx, KindCircle, objective("Tontine du quartier")); err != nil {
		t.Fatalf("add: %v", err)
	}
	raw, ok, _ := store.Read(ctx, testNS, kvstore.FieldCircles)
	if !ok || raw != `[{"name":"Tontine du quartier"}]` {
		t.Fatalf("unexpected persisted circles %q", raw)
	}

	reloaded := loaded(t, store, clock)
	snap := reloaded.Snapshot()
	if snap.Counts[KindCircle] != 1 || snap.Total != 1 || snap.Quota != DefaultFreeQuota {
		t.Fatalf("unexpected snapshot after reload: %+v", snap)
	}
}

func TestTracker_MalformedCollection(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	_ = store.Write(ctx, testNS, kvstore.FieldGoals, "not json")
	_ = store.Write(ctx, testNS, kvstore.FieldFunds, `[{"id":1}]`)

	tr := loaded(t, store, newClock())
	snap := tr.Snapshot()
	if snap.Counts[KindGoal] != 0 || snap.Counts[KindFund] != 1 {
		t.Fatalf("unexpected counts: %+v", snap.Counts)
	}
}

func TestTracker_MalformedExpiryClearsPremium(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	_ = store.Write(ctx, testNS, kvstore.FieldPremium, "true")
	_ = store.Write(ctx, testNS, kvstore.FieldPremiumExpiry, "someday")

	tr := loaded(t, store, newClock())
	if tr.IsPremium() {
		t.Fatalf("expected unparsable expiry to revert to free")
	}
	if _, ok, _ := store.Read(ctx, testNS, kvstore.FieldPremium); ok {
		t.Fatalf("expected premium flag to be cleared")
	}
}

func TestTracker_InvalidInput(t *testing.T) {
	ctx := context.Background()
	tr := loaded(t, kvstore.NewMemory(), newClock())

	if _, err := tr.CanCreate(ctx, Kind("loan")); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if err := tr.Add(ctx, Kind("loan"), objective("x")); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if err := tr.Add(ctx, KindGoal, json.RawMessage(`{oops`)); !errors.Is(err, ErrInvalidObjective) {
		t.Fatalf("expected invalid objective, got %v", err)
	}
}

func TestTracker_CustomQuota(t *testing.T) {
	ctx := context.Background()
	tr := New(testNS, kvstore.NewMemory(), WithQuota(1))
	if err := tr.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := tr.Add(ctx, KindFund, objective("f")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tr.Add(ctx, KindGoal, objective("g")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"tontines": KindCircle,
		"Circle":   KindCircle,
		"goals":    KindGoal,
		" fund ":   KindFund,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseKind("loan"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestTracker_AddKeepsObjectivesFromOtherSessions(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	clock := newClock()
	a := loaded(t, store, clock)
	b := loaded(t, store, clock)

	if err := a.Add(ctx, KindGoal, objective("Motorbike")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := b.Add(ctx, KindGoal, objective("School fees")); err != nil {
		t.Fatalf("add b: %v", err)
	}
	raw, _, _ := store.Read(ctx, testNS, kvstore.FieldGoals)
	if raw != `[{"name":"Motorbike"},{"name":"School fees"}]` {
		t.Fatalf("expected both goals persisted, got %q", raw)
	}
	if got := len(b.Objectives(KindGoal)); got != 2 {
		t.Fatalf("expected b to see 2 goals, got %d", got)
	}
}

func TestTracker_QuotaCountsObjectivesFromOtherSessions(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	clock := newClock()
	a := loaded(t, store, clock)
	b := loaded(t, store, clock)

	for _, kind := range []Kind{KindCircle, KindGoal, KindFund} {
		if err := a.Add(ctx, kind, objective(string(kind))); err != nil {
			t.Fatalf("add %s: %v", kind, err)
		}
	}
	ok, err := b.CanCreate(ctx, KindGoal)
	if err != nil {
		t.Fatalf("can create: %v", err)
	}
	if ok {
		t.Fatalf("expected b to see the quota already used")
	}
	if err := b.Add(ctx, KindGoal, objective("extra")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	if _, err := a.ActivatePremium(ctx, 1); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := b.Add(ctx, KindGoal, objective("extra")); err != nil {
		t.Fatalf("expected premium granted elsewhere to lift the quota, got %v", err)
	}
	if !b.IsPremium() {
		t.Fatalf("expected b to pick up the premium window")
	}
}
