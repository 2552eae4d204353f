package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/highlight"
	"github.com/hazyhaar/chanlight/settings"
)

type fakeNode struct {
	key        string
	name       string
	marked     bool
	background string
	radius     string
	labelColor string
}

// fakeDoc is an in-memory Document that counts style mutations.
type fakeDoc struct {
	mu           sync.Mutex
	nodes        []*fakeNode
	containerAt  int // HasContainer returns true from this call on (1-based)
	checks       int
	mutations    int
	observers    int
	stopped      int
	onBatch      func(Batch)
	observeCalls int
	observeFails int // the first observeFails Observe calls return an error
}

func newFakeDoc(names ...string) *fakeDoc {
	d := &fakeDoc{containerAt: 1}
	for i, n := range names {
		d.nodes = append(d.nodes, &fakeNode{key: fmt.Sprint(i + 1), name: n})
	}
	return d
}

func (d *fakeDoc) HasContainer(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	return d.containerAt > 0 && d.checks >= d.containerAt, nil
}

func (d *fakeDoc) Scan(ctx context.Context) ([]Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Channel, 0, len(d.nodes))
	for _, n := range d.nodes {
		ch := Channel{Key: n.key, Name: n.name, Marked: n.marked}
		if n.marked {
			ch.Color = n.background
		}
		out = append(out, ch)
	}
	return out, nil
}

func (d *fakeDoc) Apply(ctx context.Context, patches []Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range patches {
		n := d.find(p.Key)
		if n == nil {
			continue
		}
		d.mutations++
		if p.Clear {
			n.marked, n.background, n.radius, n.labelColor = false, "", "", ""
			continue
		}
		n.marked, n.background, n.radius, n.labelColor = true, p.Color, "4px", "#1E293B"
	}
	return nil
}

func (d *fakeDoc) Observe(ctx context.Context, fn func(Batch)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observeCalls++
	if d.observeCalls <= d.observeFails {
		return nil, errors.New("observer: container not found")
	}
	d.observers++
	d.onBatch = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.observers--
		d.stopped++
		d.onBatch = nil
	}, nil
}

func (d *fakeDoc) find(key string) *fakeNode {
	for _, n := range d.nodes {
		if n.key == key {
			return n
		}
	}
	return nil
}

func (d *fakeDoc) node(name string) *fakeNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

func (d *fakeDoc) fire() {
	d.mu.Lock()
	fn := d.onBatch
	d.mu.Unlock()
	if fn != nil {
		fn(Batch{Added: 1})
	}
}

func (d *fakeDoc) mutationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutations
}

type memStore struct {
	mu    sync.Mutex
	set   highlight.Set
	err   error
	loads atomic.Int32
}

func (s *memStore) Load(ctx context.Context) (highlight.Set, error) {
	s.loads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.set.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, set highlight.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set.Clone()
	return nil
}

func (s *memStore) put(set highlight.Set) {
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
}

func newTestReconciler(doc Document, store settings.Store) *Reconciler {
	return New(Config{Document: doc, Store: store, RetryDelay: 10 * time.Millisecond})
}

func TestReconcile_Idempotent(t *testing.T) {
	doc := newFakeDoc("general", "random")
	r := newTestReconciler(doc, &memStore{})
	set := highlight.Set{{Name: "general", Color: "#112233"}}
	ctx := context.Background()

	if err := r.Reconcile(ctx, set); err != nil {
		t.Fatal(err)
	}
	first := doc.mutationCount()
	if first != 1 {
		t.Fatalf("first pass mutations = %d, want 1", first)
	}

	if err := r.Reconcile(ctx, set); err != nil {
		t.Fatal(err)
	}
	if got := doc.mutationCount(); got != first {
		t.Fatalf("second pass added %d mutations, want 0", got-first)
	}
}

func TestReconcile_CaseInsensitive(t *testing.T) {
	doc := newFakeDoc("general", "GENERAL", "General", "random")
	r := newTestReconciler(doc, &memStore{})

	if err := r.Reconcile(context.Background(), highlight.Set{{Name: "General", Color: "#ff0000"}}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"general", "GENERAL", "General"} {
		n := doc.node(name)
		if !n.marked || n.background != "#ff0000" {
			t.Errorf("%s: marked=%v background=%q", name, n.marked, n.background)
		}
	}
	if doc.node("random").marked {
		t.Error("random should stay unmarked")
	}
}

func TestReconcile_EmptyClears(t *testing.T) {
	doc := newFakeDoc("general", "random", "off-topic")
	r := newTestReconciler(doc, &memStore{})
	ctx := context.Background()

	set := highlight.Set{{Name: "general", Color: "#112233"}, {Name: "random", Color: "#445566"}}
	if err := r.Reconcile(ctx, set); err != nil {
		t.Fatal(err)
	}
	before := doc.mutationCount()

	if err := r.Reconcile(ctx, highlight.Set{}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"general", "random", "off-topic"} {
		n := doc.node(name)
		if n.marked || n.background != "" || n.radius != "" || n.labelColor != "" {
			t.Errorf("%s still styled: %+v", name, *n)
		}
	}
	if got := doc.mutationCount() - before; got != 2 {
		t.Fatalf("clear mutations = %d, want 2 (off-topic untouched)", got)
	}
}

func TestReconcile_ChangedColorRepatches(t *testing.T) {
	doc := newFakeDoc("general")
	r := newTestReconciler(doc, &memStore{})
	ctx := context.Background()

	r.Reconcile(ctx, highlight.Set{{Name: "general", Color: "#111111"}})
	r.Reconcile(ctx, highlight.Set{{Name: "general", Color: "#222222"}})

	if got := doc.node("general").background; got != "#222222" {
		t.Fatalf("background = %q, want #222222", got)
	}
	if doc.mutationCount() != 2 {
		t.Fatalf("mutations = %d, want 2", doc.mutationCount())
	}
}

func TestReconcile_EndToEnd(t *testing.T) {
	doc := newFakeDoc("general", "random", "off-topic")
	r := newTestReconciler(doc, &memStore{})

	if err := r.Reconcile(context.Background(), highlight.Set{{Name: "General", Color: "#112233"}}); err != nil {
		t.Fatal(err)
	}

	g := doc.node("general")
	if !g.marked || g.background != "#112233" || g.radius != "4px" || g.labelColor != "#1E293B" {
		t.Fatalf("general = %+v", *g)
	}
	for _, name := range []string{"random", "off-topic"} {
		n := doc.node(name)
		if n.marked || n.background != "" || n.radius != "" || n.labelColor != "" {
			t.Errorf("%s styled: %+v", name, *n)
		}
	}
}

func TestPlan_SkipsBlankNames(t *testing.T) {
	channels := []Channel{
		{Key: "1", Name: "  "},
		{Key: "2", Name: " general "},
		{Key: "3", Name: "", Marked: true, Color: "#000000"},
	}
	patches, applied := Plan(highlight.Set{{Name: "general", Color: "#112233"}}, channels)
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if len(patches) != 1 || patches[0].Key != "2" || patches[0].Color != "#112233" {
		t.Fatalf("patches = %+v", patches)
	}
}

func TestHandleGetChannelNames(t *testing.T) {
	doc := newFakeDoc("general", " random ", "   ", "off-topic", "general")
	r := newTestReconciler(doc, &memStore{})

	names, err := r.HandleGetChannelNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"general", "random", "off-topic", "general"}
	if len(names) != len(want) {
		t.Fatalf("names = %q, want %q", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %q, want %q", names, want)
		}
	}
}

func TestReload_ReplacesCacheAndReconciles(t *testing.T) {
	doc := newFakeDoc("general")
	store := &memStore{set: highlight.Set{{Name: "general", Color: "#abcdef"}}}
	r := newTestReconciler(doc, store)

	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c := r.Cached(); len(c) != 1 || c[0].Color != "#abcdef" {
		t.Fatalf("cached = %+v", c)
	}
	if doc.node("general").background != "#abcdef" {
		t.Fatal("reload did not reconcile")
	}
}

func TestReload_ContextInvalidatedKeepsCache(t *testing.T) {
	doc := newFakeDoc("general")
	store := &memStore{set: highlight.Set{{Name: "general", Color: "#abcdef"}}}
	r := newTestReconciler(doc, store)
	ctx := context.Background()

	if err := r.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	before := doc.mutationCount()

	store.mu.Lock()
	store.err = fmt.Errorf("%w: load: sql: database is closed", settings.ErrContextInvalidated)
	store.mu.Unlock()
	err := r.Reload(ctx)
	if !errors.Is(err, settings.ErrContextInvalidated) {
		t.Fatalf("Reload = %v, want ErrContextInvalidated", err)
	}
	if c := r.Cached(); len(c) != 1 {
		t.Fatalf("cache replaced on failure: %+v", c)
	}
	if doc.mutationCount() != before {
		t.Fatal("failed reload touched the document")
	}
}

func TestStartObserving_RetriesUntilContainer(t *testing.T) {
	doc := newFakeDoc("general")
	doc.containerAt = 3
	store := &memStore{set: highlight.Set{{Name: "general", Color: "#112233"}}}
	r := newTestReconciler(doc, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer r.Stop()

	if err := r.StartObserving(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		doc.mu.Lock()
		observing := doc.observers
		doc.mu.Unlock()
		if observing == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	doc.mu.Lock()
	checks, observers := doc.checks, doc.observers
	doc.mu.Unlock()
	if observers != 1 {
		t.Fatalf("observers = %d, want 1", observers)
	}
	if checks != 3 {
		t.Fatalf("container checks = %d, want 3", checks)
	}
	if store.loads.Load() != 1 {
		t.Fatalf("store loads = %d, want exactly 1", store.loads.Load())
	}
	if !doc.node("general").marked {
		t.Fatal("initial reload did not highlight")
	}
}

func TestStartObserving_BatchUsesCache(t *testing.T) {
	doc := newFakeDoc("general")
	store := &memStore{set: highlight.Set{{Name: "general", Color: "#112233"}}}
	r := newTestReconciler(doc, store)
	ctx := context.Background()
	defer r.Stop()

	if err := r.StartObserving(ctx); err != nil {
		t.Fatal(err)
	}

	// The store moves on, and a new channel mounts.
	store.put(highlight.Set{{Name: "general", Color: "#999999"}})
	doc.mu.Lock()
	doc.nodes = append(doc.nodes, &fakeNode{key: "9", name: "General"})
	doc.mu.Unlock()

	doc.fire()

	if got := doc.node("General").background; got != "#112233" {
		t.Fatalf("new node background = %q, want cached #112233", got)
	}
	if store.loads.Load() != 1 {
		t.Fatalf("mutation batch hit the store: loads = %d", store.loads.Load())
	}
}

func TestStartObserving_RetryMax(t *testing.T) {
	doc := newFakeDoc("general")
	doc.containerAt = 0
	r := New(Config{Document: doc, Store: &memStore{}, RetryDelay: 5 * time.Millisecond, RetryMax: 3})
	defer r.Stop()

	if err := r.StartObserving(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.checks != 3 {
		t.Fatalf("checks = %d, want 3", doc.checks)
	}
}

func TestStartObserving_RetriesFailedObserve(t *testing.T) {
	doc := newFakeDoc("general")
	doc.observeFails = 1
	store := &memStore{set: highlight.Set{{Name: "general", Color: "#112233"}}}
	r := newTestReconciler(doc, store)
	defer r.Stop()

	if err := r.StartObserving(context.Background()); err != nil {
		t.Fatalf("StartObserving: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		doc.mu.Lock()
		observing := doc.observers
		doc.mu.Unlock()
		if observing == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	doc.mu.Lock()
	observers, calls := doc.observers, doc.observeCalls
	doc.mu.Unlock()
	if observers != 1 || calls != 2 {
		t.Fatalf("observers = %d observe calls = %d, want 1 and 2", observers, calls)
	}

	doc.mu.Lock()
	doc.nodes = append(doc.nodes, &fakeNode{key: "9", name: "GENERAL"})
	doc.mu.Unlock()
	doc.fire()
	if got := doc.node("GENERAL").background; got != "#112233" {
		t.Fatalf("mutation after retry not reconciled: background = %q", got)
	}
}

func TestStartObserving_FailedObserveCountsAgainstRetryMax(t *testing.T) {
	doc := newFakeDoc("general")
	doc.observeFails = 100
	r := New(Config{Document: doc, Store: &memStore{}, RetryDelay: 5 * time.Millisecond, RetryMax: 2})
	defer r.Stop()

	if err := r.StartObserving(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.observeCalls != 2 {
		t.Fatalf("observe calls = %d, want 2", doc.observeCalls)
	}
}

func TestStartObserving_RestartReplacesSubscription(t *testing.T) {
	doc := newFakeDoc("general")
	r := newTestReconciler(doc, &memStore{})
	ctx := context.Background()
	defer r.Stop()

	r.StartObserving(ctx)
	r.StartObserving(ctx)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.observers != 1 || doc.stopped != 1 {
		t.Fatalf("observers = %d stopped = %d, want 1 and 1", doc.observers, doc.stopped)
	}
}

func TestStop_CancelsRetry(t *testing.T) {
	doc := newFakeDoc("general")
	doc.containerAt = 0
	r := newTestReconciler(doc, &memStore{})

	r.StartObserving(context.Background())
	r.Stop()
	time.Sleep(50 * time.Millisecond)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.checks != 1 {
		t.Fatalf("checks after Stop = %d, want 1", doc.checks)
	}
}

func TestRegister_BridgeActions(t *testing.T) {
	doc := newFakeDoc("general", "", "random")
	store := &memStore{set: highlight.Set{{Name: "random", Color: "#445566"}}}
	r := newTestReconciler(doc, store)
	router := bridge.NewRouter()
	r.Register(router)
	ctx := context.Background()

	raw, err := router.Dispatch(ctx, []byte(`{"action":"getChannelNames"}`))
	if err != nil {
		t.Fatal(err)
	}
	var resp bridge.ChannelNamesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.ChannelNames) != 2 {
		t.Fatalf("channelNames = %q", resp.ChannelNames)
	}

	raw, err = router.Dispatch(ctx, []byte(`{"action":"settingsUpdated"}`))
	if err != nil || raw != nil {
		t.Fatalf("settingsUpdated = (%q, %v)", raw, err)
	}
	if !doc.node("random").marked {
		t.Fatal("settingsUpdated did not reload")
	}
}
