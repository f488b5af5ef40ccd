package redux

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/statetap/statetap/core"
	"github.com/statetap/statetap/discovery"
)

// testStore is a minimal Redux-style store whose dispatch returns the
// action type.
type testStore struct {
	mu           sync.Mutex
	state        map[string]interface{}
	dispatch     DispatchFunc
	subscribers  int
	unsubscribed int
}

func newTestStore() *testStore {
	s := &testStore{state: map[string]interface{}{"count": 0}}
	s.dispatch = func(action Action) (interface{}, error) {
		s.mu.Lock()
		s.state["last"] = action.Type()
		s.mu.Unlock()
		return action["type"], nil
	}
	return s
}

func (s *testStore) GetState() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]interface{}, len(s.state))
	for k, v := range s.state {
		snapshot[k] = v
	}
	return snapshot
}

func (s *testStore) Dispatch() DispatchFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch
}

func (s *testStore) SetDispatch(fn DispatchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch = fn
}

func (s *testStore) Subscribe(listener func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers++
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribed++
	}
}

func noDiscoveryConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Discovery.Enabled = false
	return cfg
}

func initialized(t *testing.T, opts ...Option) (*Interceptor, *core.RecordingAPI) {
	t.Helper()
	opts = append([]Option{WithConfig(noDiscoveryConfig())}, opts...)
	i := New(opts...)
	api := core.NewRecordingAPI()
	if err := i.Init(context.Background(), api); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return i, api
}

// TestEndToEnd covers the full bind → dispatch → unwind scenario: two
// ordered breadcrumbs, unchanged return value, and the original
// dispatch reference restored on destroy.
func TestEndToEnd(t *testing.T) {
	i, api := initialized(t)
	store := newTestStore()
	originalRef := reflect.ValueOf(store.Dispatch()).Pointer()

	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}

	result, err := store.Dispatch()(Action{"type": "X"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if result != "X" {
		t.Errorf("Expected result 'X', got %v", result)
	}

	crumbs := api.Breadcrumbs()
	if len(crumbs) != 2 {
		t.Fatalf("Expected exactly 2 breadcrumbs, got %d", len(crumbs))
	}
	if crumbs[0].Category != "redux" || crumbs[1].Category != "redux" {
		t.Errorf("Expected categories [redux redux], got [%s %s]", crumbs[0].Category, crumbs[1].Category)
	}
	if crumbs[0].Message != "Dispatching action: X" {
		t.Errorf("Unexpected pre-call message: %q", crumbs[0].Message)
	}
	if crumbs[1].Message != "Action dispatched: X" {
		t.Errorf("Unexpected post-call message: %q", crumbs[1].Message)
	}

	if err := i.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	restoredRef := reflect.ValueOf(store.Dispatch()).Pointer()
	if restoredRef != originalRef {
		t.Error("Expected destroy to restore the original dispatch reference")
	}
	if store.unsubscribed != 1 {
		t.Errorf("Expected unsubscribe handle invoked once, got %d", store.unsubscribed)
	}
}

// TestDispatchErrorForwarded tests the failure path: one pre-call
// breadcrumb, one error payload, the identical error returned.
func TestDispatchErrorForwarded(t *testing.T) {
	i, api := initialized(t)
	store := newTestStore()
	dispatchErr := errors.New("reducer exploded")
	store.SetDispatch(func(action Action) (interface{}, error) {
		return nil, dispatchErr
	})

	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}

	_, err := store.Dispatch()(Action{"type": "BOOM"})
	if !errors.Is(err, dispatchErr) {
		t.Errorf("Expected the identical error returned, got: %v", err)
	}

	if got := len(api.Breadcrumbs()); got != 1 {
		t.Errorf("Expected exactly 1 breadcrumb on failure, got %d", got)
	}
	sent := api.Errors()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly 1 error payload, got %d", len(sent))
	}
	if sent[0].Payload["kind"] != "redux.dispatch.error" {
		t.Errorf("Unexpected payload kind: %v", sent[0].Payload["kind"])
	}
}

// TestDispatchPanicForwardedAndReraised tests that a panicking reducer
// is reported and the identical panic value re-raised
func TestDispatchPanicForwardedAndReraised(t *testing.T) {
	i, api := initialized(t)
	store := newTestStore()
	store.SetDispatch(func(action Action) (interface{}, error) {
		panic("reducer panic")
	})

	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}

	func() {
		defer func() {
			r := recover()
			if r != "reducer panic" {
				t.Errorf("Expected identical panic value re-raised, got: %v", r)
			}
		}()
		_, _ = store.Dispatch()(Action{"type": "BOOM"})
		t.Error("Expected dispatch to panic")
	}()

	if got := len(api.Breadcrumbs()); got != 1 {
		t.Errorf("Expected exactly 1 breadcrumb, got %d", got)
	}
	sent := api.Errors()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly 1 error payload, got %d", len(sent))
	}
	if sent[0].Payload["kind"] != "redux.dispatch.panic" {
		t.Errorf("Unexpected payload kind: %v", sent[0].Payload["kind"])
	}
}

// TestBreadcrumbDataIsolated tests that mutating the action after
// dispatch does not corrupt the recorded breadcrumb
func TestBreadcrumbDataIsolated(t *testing.T) {
	i, api := initialized(t)
	store := newTestStore()
	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}

	action := Action{"type": "X", "payload": "before"}
	if _, err := store.Dispatch()(action); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	action["payload"] = "after"

	crumbs := api.Breadcrumbs()
	recorded := crumbs[0].Data["action"].(map[string]interface{})
	if recorded["payload"] != "before" {
		t.Errorf("Expected recorded payload 'before', got %v", recorded["payload"])
	}
}

// TestSetStoreRejectsRebind tests the explicit rebind policy
func TestSetStoreRejectsRebind(t *testing.T) {
	i, _ := initialized(t)
	first := newTestStore()
	second := newTestStore()

	if err := i.SetStore(first); err != nil {
		t.Fatalf("First SetStore failed: %v", err)
	}

	err := i.SetStore(second)
	if !errors.Is(err, core.ErrAlreadyBound) {
		t.Errorf("Expected ErrAlreadyBound, got: %v", err)
	}

	// The second store must be untouched.
	if second.subscribers != 0 {
		t.Error("Expected rejected rebind to leave the new store unmodified")
	}
}

// TestSetStoreBeforeInit tests uninitialized use is reported, not fatal
func TestSetStoreBeforeInit(t *testing.T) {
	i := New(WithConfig(noDiscoveryConfig()))
	err := i.SetStore(newTestStore())
	if !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got: %v", err)
	}
}

// TestSetStoreInvalidTarget tests missing capability rejection
func TestSetStoreInvalidTarget(t *testing.T) {
	i, _ := initialized(t)

	if err := i.SetStore(nil); !errors.Is(err, core.ErrInvalidTarget) {
		t.Errorf("Expected ErrInvalidTarget for nil store, got: %v", err)
	}

	noDispatch := &testStore{state: map[string]interface{}{}}
	if err := i.SetStore(noDispatch); !errors.Is(err, core.ErrInvalidTarget) {
		t.Errorf("Expected ErrInvalidTarget for nil dispatch, got: %v", err)
	}
}

// TestInitMissingAPI tests init without a facade is rejected
func TestInitMissingAPI(t *testing.T) {
	i := New(WithConfig(noDiscoveryConfig()))
	err := i.Init(context.Background(), nil)
	if !errors.Is(err, core.ErrMissingAPI) {
		t.Errorf("Expected ErrMissingAPI, got: %v", err)
	}
}

// TestDoubleInitNoOp tests double init is a logged no-op
func TestDoubleInitNoOp(t *testing.T) {
	i, _ := initialized(t)
	other := core.NewRecordingAPI()
	if err := i.Init(context.Background(), other); err != nil {
		t.Errorf("Expected double init to no-op, got: %v", err)
	}

	store := newTestStore()
	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}
	_, _ = store.Dispatch()(Action{"type": "X"})

	// Breadcrumbs must still land on the first facade.
	if got := len(other.Breadcrumbs()); got != 0 {
		t.Errorf("Expected second facade to receive nothing, got %d breadcrumbs", got)
	}
}

// TestDestroyIdempotent tests destroy twice leaves identical state
func TestDestroyIdempotent(t *testing.T) {
	i, _ := initialized(t)
	store := newTestStore()
	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}

	if err := i.Destroy(); err != nil {
		t.Fatalf("First destroy failed: %v", err)
	}
	if err := i.Destroy(); err != nil {
		t.Errorf("Second destroy must not error, got: %v", err)
	}

	info := i.Info()
	if info.Initialized || info.Bound {
		t.Errorf("Expected fully cleared state, got %+v", info)
	}
	if store.unsubscribed != 1 {
		t.Errorf("Expected a single unsubscribe, got %d", store.unsubscribed)
	}
}

// TestDestroyBeforeInit tests destroy on a fresh interceptor no-ops
func TestDestroyBeforeInit(t *testing.T) {
	i := New(WithConfig(noDiscoveryConfig()))
	if err := i.Destroy(); err != nil {
		t.Errorf("Expected destroy before init to no-op, got: %v", err)
	}
}

// TestDestroyAllowsFreshBind tests init + bind work again after destroy
func TestDestroyAllowsFreshBind(t *testing.T) {
	i, _ := initialized(t)
	store := newTestStore()
	if err := i.SetStore(store); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	api := core.NewRecordingAPI()
	if err := i.Init(context.Background(), api); err != nil {
		t.Fatalf("Re-init failed: %v", err)
	}
	if err := i.SetStore(store); err != nil {
		t.Fatalf("Rebind after destroy failed: %v", err)
	}
	if _, err := store.Dispatch()(Action{"type": "Y"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := len(api.Breadcrumbs()); got != 2 {
		t.Errorf("Expected 2 breadcrumbs on the fresh facade, got %d", got)
	}
}

// TestDiscoveryBindsLateStore tests the retry loop binds a store that
// appears after init
func TestDiscoveryBindsLateStore(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Discovery.MaxAttempts = 5
	cfg.Discovery.Delay = 10 * time.Millisecond

	var holder atomic.Value

	i := New(
		WithConfig(cfg),
		WithCandidates(discovery.Candidate{
			Name: "reduxStore",
			Lookup: func() (interface{}, bool) {
				if s, ok := holder.Load().(*testStore); ok {
					return s, true
				}
				return nil, false
			},
		}),
	)
	api := core.NewRecordingAPI()
	if err := i.Init(context.Background(), api); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	store := newTestStore()
	holder.Store(store)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !i.Info().Bound {
		time.Sleep(5 * time.Millisecond)
	}
	if !i.Info().Bound {
		t.Fatal("Expected discovery to bind the late-appearing store")
	}

	if _, err := store.Dispatch()(Action{"type": "X"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := len(api.Breadcrumbs()); got != 2 {
		t.Errorf("Expected instrumented dispatch after discovery, got %d breadcrumbs", got)
	}
	_ = i.Destroy()
}

// TestDestroyCancelsPendingDiscovery tests the fixed teardown defect: a
// destroyed interceptor must never auto-bind when its timer fires
func TestDestroyCancelsPendingDiscovery(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Discovery.MaxAttempts = 5
	cfg.Discovery.Delay = 10 * time.Millisecond

	var holder atomic.Value

	i := New(
		WithConfig(cfg),
		WithCandidates(discovery.Candidate{
			Name: "reduxStore",
			Lookup: func() (interface{}, bool) {
				if s, ok := holder.Load().(*testStore); ok {
					return s, true
				}
				return nil, false
			},
		}),
	)
	if err := i.Init(context.Background(), core.NewRecordingAPI()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	store := newTestStore()
	holder.Store(store)
	time.Sleep(60 * time.Millisecond)

	if store.subscribers != 0 {
		t.Error("Expected no bind after destroy, but the store was subscribed to")
	}
	if i.Info().Bound {
		t.Error("Expected destroyed interceptor to stay unbound")
	}
}

// TestManualBindBeatsPendingPoll tests a late poll cannot override an
// explicit SetStore
func TestManualBindBeatsPendingPoll(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Discovery.MaxAttempts = 5
	cfg.Discovery.Delay = 20 * time.Millisecond

	discovered := newTestStore()
	var available atomic.Bool

	i := New(
		WithConfig(cfg),
		WithCandidates(discovery.Candidate{
			Name: "store",
			Lookup: func() (interface{}, bool) {
				if available.Load() {
					return discovered, true
				}
				return nil, false
			},
		}),
	)
	if err := i.Init(context.Background(), core.NewRecordingAPI()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	manual := newTestStore()
	if err := i.SetStore(manual); err != nil {
		t.Fatalf("Manual SetStore failed: %v", err)
	}

	// Candidate becomes visible while a poll could still be pending.
	available.Store(true)
	time.Sleep(80 * time.Millisecond)

	if discovered.subscribers != 0 {
		t.Error("Expected the discovered store to stay untouched after manual bind")
	}
	if manual.subscribers != 1 {
		t.Errorf("Expected the manual store to stay bound, subscribers=%d", manual.subscribers)
	}
	_ = i.Destroy()
}

// TestAutoFindStore tests the synchronous single-pass discovery
func TestAutoFindStore(t *testing.T) {
	var holder atomic.Value

	i := New(
		WithConfig(noDiscoveryConfig()),
		WithCandidates(discovery.Candidate{
			Name: "store",
			Lookup: func() (interface{}, bool) {
				if s, ok := holder.Load().(*testStore); ok {
					return s, true
				}
				return nil, false
			},
		}),
	)
	if err := i.Init(context.Background(), core.NewRecordingAPI()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if i.AutoFindStore() {
		t.Error("Expected AutoFindStore to miss while the store is absent")
	}

	holder.Store(newTestStore())
	if !i.AutoFindStore() {
		t.Error("Expected AutoFindStore to bind the present store")
	}
	if !i.Info().Bound {
		t.Error("Expected bound info after AutoFindStore")
	}
	_ = i.Destroy()
}

// TestInfoSnapshot tests the diagnostic snapshot contents
func TestInfoSnapshot(t *testing.T) {
	i, _ := initialized(t)

	info := i.Info()
	if info.Name != "redux" {
		t.Errorf("Expected name redux, got %q", info.Name)
	}
	if !info.Initialized || info.Bound {
		t.Errorf("Expected initialized and unbound, got %+v", info)
	}
	if info.APIVersion != "v1" {
		t.Errorf("Expected API version v1, got %q", info.APIVersion)
	}

	if err := i.SetStore(newTestStore()); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}
	if !i.Info().Bound {
		t.Error("Expected bound info after SetStore")
	}
}
