package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fetchquest/backend/internal/metrics"
	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
	"github.com/fetchquest/backend/internal/session"
)

// ---------------------------------------------------------------------------
// In-memory ProfileStore and History.
// ---------------------------------------------------------------------------

type mockProfiles struct {
	mu          sync.Mutex
	profiles    map[string]*models.Profile
	writes      int
	failReplace error
}

func newMockProfiles(ps ...*models.Profile) *mockProfiles {
	m := &mockProfiles{profiles: make(map[string]*models.Profile)}
	for _, p := range ps {
		m.profiles[p.ID] = p.Clone()
	}
	return m
}

func (m *mockProfiles) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (m *mockProfiles) ReplaceProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplace != nil {
		return m.failReplace
	}
	m.writes++
	m.profiles[p.ID] = p.Clone()
	return nil
}

func (m *mockProfiles) get(id string) *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[id].Clone()
}

type mockHistory struct {
	mu      sync.Mutex
	entries []*models.CreditEntry
}

func (m *mockHistory) CreateEntry(_ context.Context, e *models.CreditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockHistory) ListByUserID(_ context.Context, userID string) ([]*models.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CreditEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func userCtx(id string) context.Context {
	return session.WithUserID(context.Background(), id)
}

func assertLevel(t *testing.T, p *models.Profile) {
	t.Helper()
	if want := rewards.LevelFromPoints(p.Points); p.Level != want {
		t.Errorf("level %d does not match %d points (want %d)", p.Level, p.Points, want)
	}
}

func assertSingleDefault(t *testing.T, p *models.Profile) {
	t.Helper()
	if len(p.PaymentMethods) == 0 {
		return
	}
	n := 0
	for _, pm := range p.PaymentMethods {
		if pm.IsDefault {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected exactly one default payment method, got %d: %+v", n, p.PaymentMethods)
	}
}

// ---------------------------------------------------------------------------
// Points, counters, earnings
// ---------------------------------------------------------------------------

func TestAddPoints_RecomputesLevel(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", Points: 500, Level: 2})
	svc := NewService(store, nil, DefaultPlatformFee, nil)

	if err := svc.AddPoints(userCtx("U1"), 300); err != nil {
		t.Fatalf("AddPoints: %v", err)
	}
	p := store.get("U1")
	if p.Points != 800 {
		t.Errorf("points: got %d, want 800", p.Points)
	}
	if p.Level != rewards.LevelFromPoints(800) || p.Level == 2 {
		t.Errorf("level not recomputed: %d", p.Level)
	}
	assertLevel(t, p)
}

func TestCounters(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	ctx := userCtx("U1")

	for i := 0; i < 3; i++ {
		if err := svc.CompleteTask(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.RequestTask(ctx); err != nil {
		t.Fatal(err)
	}
	p := store.get("U1")
	if p.TasksCompleted != 3 || p.TasksRequested != 1 {
		t.Errorf("counters: completed %d requested %d", p.TasksCompleted, p.TasksRequested)
	}
	assertLevel(t, p)
}

func TestAddEarnings_Pending(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", PendingEarnings: models.MustCents(25)})
	history := &mockHistory{}
	svc := NewService(store, history, models.MustCents(2.50), nil)

	if err := svc.AddEarnings(userCtx("U1"), models.MustCents(50), true); err != nil {
		t.Fatalf("AddEarnings: %v", err)
	}
	p := store.get("U1")
	if p.PendingEarnings != models.MustCents(72.50) {
		t.Errorf("pending earnings: got %s, want 72.50", p.PendingEarnings)
	}
	if p.Earnings != 0 {
		t.Errorf("earnings should be untouched, got %s", p.Earnings)
	}

	entries, _ := svc.History(userCtx("U1"))
	if len(entries) != 2 {
		t.Fatalf("history entries: got %d, want 2", len(entries))
	}
	if entries[0].EntryType != models.CreditEntryPendingEarning || entries[0].Amount != models.MustCents(47.50) {
		t.Errorf("first entry: %+v", entries[0])
	}
	if entries[1].EntryType != models.CreditEntryPlatformFee || entries[1].Amount != models.MustCents(2.50) {
		t.Errorf("fee entry: %+v", entries[1])
	}
}

func TestAddEarnings_ConfirmMovesNetFromPending(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	ctx := userCtx("U1")

	if err := svc.AddEarnings(ctx, models.MustCents(20), true); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddEarnings(ctx, models.MustCents(20), false); err != nil {
		t.Fatal(err)
	}
	p := store.get("U1")
	if p.Earnings != models.MustCents(17.50) {
		t.Errorf("earnings: got %s, want 17.50", p.Earnings)
	}
	if p.PendingEarnings != 0 {
		t.Errorf("pending earnings: got %s, want 0", p.PendingEarnings)
	}
}

func TestAddEarnings_ConfirmWithoutPendingGoesNegative(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)

	if err := svc.AddEarnings(userCtx("U1"), models.MustCents(10), false); err != nil {
		t.Fatal(err)
	}
	p := store.get("U1")
	if p.Earnings != models.MustCents(7.50) || p.PendingEarnings != models.MustCents(-7.50) {
		t.Errorf("earnings %s pending %s", p.Earnings, p.PendingEarnings)
	}
}

func TestSettleReward(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", Points: 500, PendingEarnings: models.MustCents(47.50)})
	history := &mockHistory{}
	svc := NewService(store, history, DefaultPlatformFee, nil)

	if err := svc.SettleReward(userCtx("U1"), 100, models.MustCents(50)); err != nil {
		t.Fatalf("SettleReward: %v", err)
	}
	p := store.get("U1")
	if p.TasksCompleted != 1 || p.Points != 600 {
		t.Errorf("completed %d points %d", p.TasksCompleted, p.Points)
	}
	if p.Earnings != models.MustCents(47.50) || p.PendingEarnings != 0 {
		t.Errorf("earnings %s pending %s", p.Earnings, p.PendingEarnings)
	}
	if store.writes != 1 {
		t.Errorf("expected a single profile write, got %d", store.writes)
	}
	assertLevel(t, p)

	entries, _ := svc.History(userCtx("U1"))
	if len(entries) != 2 || entries[0].EntryType != models.CreditEntryTaskEarning {
		t.Errorf("history: %+v", entries)
	}
}

func TestReleasePending(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", Points: 40})
	history := &mockHistory{}
	svc := NewService(store, history, DefaultPlatformFee, nil)
	ctx := userCtx("U1")

	if err := svc.AddEarnings(ctx, models.MustCents(50), true); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReleasePending(ctx, models.MustCents(50)); err != nil {
		t.Fatalf("ReleasePending: %v", err)
	}
	p := store.get("U1")
	if p.PendingEarnings != 0 || p.Earnings != 0 {
		t.Errorf("earnings %s pending %s", p.Earnings, p.PendingEarnings)
	}
	if p.Points != 40 || p.TasksCompleted != 0 {
		t.Errorf("release must not touch points or counters: %+v", p)
	}

	entries, _ := svc.History(ctx)
	last := entries[len(entries)-1]
	if last.EntryType != models.CreditEntryPendingRelease || last.Amount != models.MustCents(47.50) {
		t.Errorf("release entry: %+v", last)
	}
}

// ---------------------------------------------------------------------------
// Silent no-op and failures
// ---------------------------------------------------------------------------

func TestNoActiveUserIsSilentNoOp(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	anon := context.Background()

	calls := map[string]func() error{
		"add points":    func() error { return svc.AddPoints(anon, 10) },
		"complete":      func() error { return svc.CompleteTask(anon) },
		"request":       func() error { return svc.RequestTask(anon) },
		"earnings":      func() error { return svc.AddEarnings(anon, 1000, true) },
		"remove method": func() error { return svc.RemovePaymentMethod(anon, "x") },
		"set default":   func() error { return svc.SetDefaultPaymentMethod(anon, "x") },
		"unknown user":  func() error { return svc.AddPoints(userCtx("ghost"), 10) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); err != nil {
				t.Errorf("expected nil error, got %v", err)
			}
		})
	}
	added, err := svc.AddPaymentMethod(anon, models.PaymentMethod{Brand: "visa"})
	if err != nil || added != nil {
		t.Errorf("AddPaymentMethod without user: %v %v", added, err)
	}
	if store.writes != 0 {
		t.Errorf("expected no writes, got %d", store.writes)
	}
}

func TestWriteFailureLeavesProfileUnchanged(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", Points: 100, Level: 1})
	store.failReplace = errors.New("service unavailable")
	svc := NewService(store, nil, DefaultPlatformFee, nil)

	err := svc.AddPoints(userCtx("U1"), 900)
	if err == nil || !errors.Is(err, store.failReplace) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	p := store.get("U1")
	if p.Points != 100 || p.Level != 1 {
		t.Errorf("profile changed after failed write: %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Payment methods
// ---------------------------------------------------------------------------

func TestPaymentMethods(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	ctx := userCtx("U1")

	first, err := svc.AddPaymentMethod(ctx, models.PaymentMethod{ID: "pm1", Brand: "visa", Last4: "4242"})
	if err != nil {
		t.Fatal(err)
	}
	if !first.IsDefault {
		t.Error("first method must become default")
	}
	if _, err := svc.AddPaymentMethod(ctx, models.PaymentMethod{ID: "pm2", Brand: "amex"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddPaymentMethod(ctx, models.PaymentMethod{ID: "pm3", Brand: "mc"}); err != nil {
		t.Fatal(err)
	}
	assertSingleDefault(t, store.get("U1"))

	def, _ := svc.GetDefaultPaymentMethod(ctx)
	if def == nil || def.ID != "pm1" {
		t.Fatalf("default: %+v", def)
	}

	if err := svc.SetDefaultPaymentMethod(ctx, "pm3"); err != nil {
		t.Fatal(err)
	}
	assertSingleDefault(t, store.get("U1"))
	if def, _ := svc.GetDefaultPaymentMethod(ctx); def == nil || def.ID != "pm3" {
		t.Errorf("default after set: %+v", def)
	}

	// Unknown id keeps the current default.
	if err := svc.SetDefaultPaymentMethod(ctx, "nope"); err != nil {
		t.Fatal(err)
	}
	if def, _ := svc.GetDefaultPaymentMethod(ctx); def == nil || def.ID != "pm3" {
		t.Errorf("default after unknown id: %+v", def)
	}

	// Removing the default promotes the first remaining method.
	if err := svc.RemovePaymentMethod(ctx, "pm3"); err != nil {
		t.Fatal(err)
	}
	p := store.get("U1")
	assertSingleDefault(t, p)
	if len(p.PaymentMethods) != 2 || !p.PaymentMethods[0].IsDefault || p.PaymentMethods[0].ID != "pm1" {
		t.Errorf("after removing default: %+v", p.PaymentMethods)
	}

	// Removing a non-default keeps the default.
	if err := svc.RemovePaymentMethod(ctx, "pm2"); err != nil {
		t.Fatal(err)
	}
	assertSingleDefault(t, store.get("U1"))

	if err := svc.RemovePaymentMethod(ctx, "pm1"); err != nil {
		t.Fatal(err)
	}
	if def, _ := svc.GetDefaultPaymentMethod(ctx); def != nil {
		t.Errorf("empty list should have no default, got %+v", def)
	}
}

func TestAddPaymentMethod_DefaultFlagMovesOver(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	ctx := userCtx("U1")

	if _, err := svc.AddPaymentMethod(ctx, models.PaymentMethod{ID: "pm1", IsDefault: false}); err != nil {
		t.Fatal(err)
	}
	added, err := svc.AddPaymentMethod(ctx, models.PaymentMethod{Brand: "visa", IsDefault: true})
	if err != nil {
		t.Fatal(err)
	}
	if added.ID == "" {
		t.Error("expected generated id")
	}
	assertSingleDefault(t, store.get("U1"))
	if def, _ := svc.GetDefaultPaymentMethod(ctx); def == nil || def.ID != added.ID {
		t.Errorf("default: %+v", def)
	}
}

func TestProfile(t *testing.T) {
	store := newMockProfiles(&models.Profile{ID: "U1", Points: 42})
	svc := NewService(store, nil, DefaultPlatformFee, nil)

	p, err := svc.Profile(userCtx("U1"))
	if err != nil || p.Points != 42 {
		t.Fatalf("Profile: %+v %v", p, err)
	}
	if _, err := svc.Profile(context.Background()); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("anonymous Profile: %v", err)
	}
}

func TestLedgerWritesAreCounted(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	if err := metrics.Init(mp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	store := newMockProfiles(&models.Profile{ID: "U1"})
	svc := NewService(store, nil, DefaultPlatformFee, nil)
	ctx := userCtx("U1")
	if err := svc.AddEarnings(ctx, models.MustCents(50), true); err != nil {
		t.Fatal(err)
	}
	if err := svc.SettleReward(ctx, 100, models.MustCents(50)); err != nil {
		t.Fatal(err)
	}
	// No active user: not a write, not counted.
	_ = svc.AddPoints(context.Background(), 5)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != metrics.LedgerMutationsName {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("op"))
				got[op.AsString()] = dp.Value
			}
		}
	}
	if got["add_earnings"] != 1 || got["settle_reward"] != 1 || got["add_points"] != 0 {
		t.Errorf("ledger mutation counts: %v", got)
	}
}
