package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/sheet"
)

// fakeClient scripts one provider. errs is consumed call by call (the
// last entry repeats); a nil entry means that call succeeds with a copy
// of rec.
type fakeClient struct {
	name      string
	rec       *chain.Partial
	errs      []error
	delay     time.Duration
	ignoreCtx bool
	calls     atomic.Int64
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if len(f.errs) > 0 {
		idx := n - 1
		if idx >= len(f.errs) {
			idx = len(f.errs) - 1
		}
		if err := f.errs[idx]; err != nil {
			return nil, err
		}
	}
	cp := *f.rec
	cp.Provider = f.name
	cp.FetchedAt = time.Now()
	return &cp, nil
}

type fakeAlerter struct {
	mu            sync.Mutex
	resolveFailed []chain.Name
	commitFailed  []chain.Name
	cleared       []chain.Name
}

func (a *fakeAlerter) ResolveFailed(ctx context.Context, name chain.Name, detail string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolveFailed = append(a.resolveFailed, name)
}

func (a *fakeAlerter) CommitFailed(ctx context.Context, name chain.Name, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commitFailed = append(a.commitFailed, name)
}

func (a *fakeAlerter) ClearChain(ctx context.Context, name chain.Name) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared = append(a.cleared, name)
}

func (a *fakeAlerter) counts() (resolve, commit, clear int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.resolveFailed), len(a.commitFailed), len(a.cleared)
}

// flakySheet fails the first n WriteOutputs calls before delegating.
type flakySheet struct {
	*sheet.Memory
	mu       sync.Mutex
	failures int
	writes   int
}

func (f *flakySheet) WriteOutputs(ctx context.Context, rowID int64, rec *chain.Canonical) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failures > 0 {
		f.failures--
		return errors.New("sheet write refused")
	}
	return f.Memory.WriteOutputs(ctx, rowID, rec)
}

func (f *flakySheet) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func newTestCoordinator(s sheet.Sheet, alerts Alerter, timeout, backoff time.Duration, clients ...Client) *Coordinator {
	ranks := make(map[string]int, len(clients))
	for i, cl := range clients {
		ranks[cl.Name()] = i + 1
	}
	return NewCoordinator(Config{
		Sheet:   s,
		Clients: clients,
		Ranks:   ranks,
		Alerts:  alerts,
		Timeout: timeout,
		Backoff: backoff,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// waitDone blocks until the resolution for name has fully retired.
func waitDone(t *testing.T, c *Coordinator, name chain.Name) {
	t.Helper()
	j, ok := c.reg.get(name)
	if !ok {
		return
	}
	select {
	case <-j.done:
	case <-time.After(10 * time.Second):
		t.Fatal("resolution did not finish")
	}
}

func TestCoordinatorMergesAndCommits(t *testing.T) {
	llama := &fakeClient{name: "defillama", rec: &chain.Partial{
		TVL:    chain.Float64(500000000),
		Symbol: chain.String("MATIC"),
	}}
	pnode := &fakeClient{name: "publicnode", rec: &chain.Partial{
		ChainID: chain.Int64(137),
		RPCURLs: []string{"https://polygon.example"},
	}}
	m := sheet.NewMemory("polygon")
	alerts := &fakeAlerter{}
	c := newTestCoordinator(m, alerts, 2*time.Second, 50*time.Millisecond, llama, pnode)

	if !c.Submit("Polygon", 1, ReasonEdit) {
		t.Fatal("Submit returned false for a fresh name")
	}
	waitDone(t, c, "polygon")

	got, err := m.ReadOutputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadOutputs error: %v", err)
	}
	if got == nil {
		t.Fatal("no record committed")
	}
	if got.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0", got.Completeness)
	}
	if got.ChainID == nil || *got.ChainID != 137 {
		t.Errorf("ChainID = %v, want 137", got.ChainID)
	}
	if got.TVL == nil || *got.TVL != 500000000 {
		t.Errorf("TVL = %v, want 500000000", got.TVL)
	}
	if got.Sources[chain.FieldTVL] != "defillama" || got.Sources[chain.FieldChainID] != "publicnode" {
		t.Errorf("Sources = %v", got.Sources)
	}

	if rec, ok := c.Record("polygon"); !ok || rec.Completeness != 1.0 {
		t.Errorf("Record(polygon) = (%v, %v), want cached record", rec, ok)
	}
	rf, cf, cl := alerts.counts()
	if rf != 0 || cf != 0 || cl != 1 {
		t.Errorf("alerts = (%d failed, %d commit, %d cleared), want (0, 0, 1)", rf, cf, cl)
	}
}

func TestCoordinatorCoalescesDuplicates(t *testing.T) {
	slow := &fakeClient{name: "defillama", delay: 300 * time.Millisecond, rec: &chain.Partial{
		TVL: chain.Float64(1),
	}}
	m := sheet.NewMemory("polygon")
	c := newTestCoordinator(m, &fakeAlerter{}, 2*time.Second, 50*time.Millisecond, slow)

	if !c.Submit("polygon", 1, ReasonEdit) {
		t.Fatal("first Submit returned false")
	}
	for i := 0; i < 5; i++ {
		if c.Submit("  POLYGON ", 1, ReasonManual) {
			t.Fatal("duplicate Submit started a second resolution")
		}
	}
	if !c.Active("polygon") {
		t.Error("Active(polygon) = false during resolution")
	}
	waitDone(t, c, "polygon")

	if n := slow.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}

	// Once retired, the next submission starts fresh.
	if !c.Submit("polygon", 1, ReasonEdit) {
		t.Fatal("Submit after completion returned false")
	}
	waitDone(t, c, "polygon")
	if n := slow.calls.Load(); n != 2 {
		t.Errorf("provider called %d times after resubmit, want 2", n)
	}
}

func TestCoordinatorOnlyOneWinnerUnderContention(t *testing.T) {
	slow := &fakeClient{name: "defillama", delay: 150 * time.Millisecond, rec: &chain.Partial{
		TVL: chain.Float64(1),
	}}
	m := sheet.NewMemory("zora")
	c := newTestCoordinator(m, &fakeAlerter{}, 2*time.Second, 50*time.Millisecond, slow)

	var started atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Submit("zora", 1, ReasonEdit) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	waitDone(t, c, "zora")

	if n := started.Load(); n != 1 {
		t.Errorf("%d submissions started resolutions, want exactly 1", n)
	}
	if n := slow.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

// A provider that sails past the shared deadline is written off as a
// timeout; the result it eventually produces must never reach the
// sheet.
func TestCoordinatorDiscardsLateResults(t *testing.T) {
	fast := &fakeClient{name: "defillama", rec: &chain.Partial{
		TVL: chain.Float64(42),
	}}
	stuck := &fakeClient{name: "publicnode", delay: 1500 * time.Millisecond, ignoreCtx: true, rec: &chain.Partial{
		ChainID: chain.Int64(999),
	}}
	m := sheet.NewMemory("zora")
	c := newTestCoordinator(m, &fakeAlerter{}, 200*time.Millisecond, 50*time.Millisecond, fast, stuck)

	c.Submit("zora", 1, ReasonEdit)
	waitDone(t, c, "zora")

	got, err := m.ReadOutputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadOutputs error: %v", err)
	}
	if got.Completeness != 0.5 {
		t.Errorf("Completeness = %v, want 0.5", got.Completeness)
	}
	if got.TVL == nil || *got.TVL != 42 {
		t.Errorf("TVL = %v, want 42 from the fast provider", got.TVL)
	}
	if got.ChainID != nil {
		t.Errorf("ChainID = %v, want absent, the late result must be discarded", *got.ChainID)
	}

	// Let the stuck provider finish and confirm nothing changes.
	time.Sleep(1200 * time.Millisecond)
	got, _ = m.ReadOutputs(context.Background(), 1)
	if got.ChainID != nil {
		t.Errorf("late result was merged after the fact: ChainID = %v", *got.ChainID)
	}
}

func TestCoordinatorAllFailRetriesOnceAndRecovers(t *testing.T) {
	flaky := &fakeClient{
		name: "defillama",
		errs: []error{NewError("defillama", ErrTransport, "connection refused"), nil},
		rec:  &chain.Partial{TVL: chain.Float64(7)},
	}
	m := sheet.NewMemory("zora")
	alerts := &fakeAlerter{}
	c := newTestCoordinator(m, alerts, time.Second, 30*time.Millisecond, flaky)

	c.Submit("zora", 1, ReasonEdit)
	waitDone(t, c, "zora")

	if n := flaky.calls.Load(); n != 2 {
		t.Fatalf("provider called %d times, want initial round plus one retry", n)
	}
	got, _ := m.ReadOutputs(context.Background(), 1)
	if got.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0 after retry", got.Completeness)
	}
	if got.TVL == nil || *got.TVL != 7 {
		t.Errorf("TVL = %v, want 7", got.TVL)
	}
	rf, _, cl := alerts.counts()
	if rf != 1 {
		t.Errorf("resolve-failed alerts = %d, want 1", rf)
	}
	if cl != 1 {
		t.Errorf("cleared alerts = %d, want 1 after recovery", cl)
	}
}

func TestCoordinatorAllFailCommitsZeroWithoutClobbering(t *testing.T) {
	down := &fakeClient{
		name: "defillama",
		errs: []error{NewError("defillama", ErrNotFound, "no such chain")},
	}
	m := sheet.NewMemory("zora")
	seed := &chain.Canonical{
		Name:           "zora",
		TVL:            chain.Float64(123),
		Completeness:   1.0,
		Sources:        map[string]string{chain.FieldTVL: "defillama"},
		LastResolvedAt: time.Now().Add(-time.Hour),
	}
	if err := m.WriteOutputs(context.Background(), 1, seed); err != nil {
		t.Fatalf("seeding sheet: %v", err)
	}
	alerts := &fakeAlerter{}
	c := newTestCoordinator(m, alerts, time.Second, 30*time.Millisecond, down)

	c.Submit("zora", 1, ReasonEdit)
	waitDone(t, c, "zora")

	if n := down.calls.Load(); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
	got, _ := m.ReadOutputs(context.Background(), 1)
	if got.Completeness != 0 {
		t.Errorf("Completeness = %v, want 0", got.Completeness)
	}
	if got.TVL == nil || *got.TVL != 123 {
		t.Errorf("TVL = %v, want previous value 123 preserved", got.TVL)
	}
	if time.Since(got.LastResolvedAt) > time.Minute {
		t.Errorf("LastResolvedAt = %v, want refreshed", got.LastResolvedAt)
	}
	rf, _, cl := alerts.counts()
	if rf != 1 || cl != 0 {
		t.Errorf("alerts = (%d failed, %d cleared), want (1, 0)", rf, cl)
	}
	if _, ok := c.Record("zora"); ok {
		t.Error("Record(zora) cached an all-failure round")
	}
}

func TestCoordinatorCommitRetriesOnce(t *testing.T) {
	ok := &fakeClient{name: "defillama", rec: &chain.Partial{TVL: chain.Float64(5)}}
	fs := &flakySheet{Memory: sheet.NewMemory("zora"), failures: 1}
	alerts := &fakeAlerter{}
	c := newTestCoordinator(fs, alerts, time.Second, 30*time.Millisecond, ok)

	c.Submit("zora", 1, ReasonEdit)
	waitDone(t, c, "zora")

	if n := fs.writeCount(); n != 2 {
		t.Errorf("WriteOutputs called %d times, want 2", n)
	}
	got, _ := fs.ReadOutputs(context.Background(), 1)
	if got == nil || got.TVL == nil || *got.TVL != 5 {
		t.Errorf("record not committed after retry: %+v", got)
	}
	_, cf, cl := alerts.counts()
	if cf != 0 || cl != 1 {
		t.Errorf("alerts = (%d commit failed, %d cleared), want (0, 1)", cf, cl)
	}
}

func TestCoordinatorCommitFailureAlerts(t *testing.T) {
	ok := &fakeClient{name: "defillama", rec: &chain.Partial{TVL: chain.Float64(5)}}
	fs := &flakySheet{Memory: sheet.NewMemory("zora"), failures: 2}
	alerts := &fakeAlerter{}
	c := newTestCoordinator(fs, alerts, time.Second, 30*time.Millisecond, ok)

	c.Submit("zora", 1, ReasonEdit)
	waitDone(t, c, "zora")

	if n := fs.writeCount(); n != 2 {
		t.Errorf("WriteOutputs called %d times, want 2", n)
	}
	_, cf, cl := alerts.counts()
	if cf != 1 {
		t.Errorf("commit-failed alerts = %d, want 1", cf)
	}
	if cl != 0 {
		t.Errorf("cleared alerts = %d, want 0 while the sheet is down", cl)
	}
	// The resolved record is still served from memory.
	if rec, okc := c.Record("zora"); !okc || rec.TVL == nil || *rec.TVL != 5 {
		t.Errorf("Record(zora) = (%v, %v), want cached despite commit failure", rec, okc)
	}
}

func TestCoordinatorRejectsEmptyName(t *testing.T) {
	cl := &fakeClient{name: "defillama", rec: &chain.Partial{}}
	c := newTestCoordinator(sheet.NewMemory("x"), &fakeAlerter{}, time.Second, 30*time.Millisecond, cl)

	if c.Submit("   ", 1, ReasonEdit) {
		t.Error("Submit of blank value started a resolution")
	}
	if n := cl.calls.Load(); n != 0 {
		t.Errorf("provider called %d times for blank value", n)
	}
}

func TestCoordinatorShutdown(t *testing.T) {
	slow := &fakeClient{name: "defillama", delay: 100 * time.Millisecond, rec: &chain.Partial{
		TVL: chain.Float64(1),
	}}
	m := sheet.NewMemory("zora")
	c := newTestCoordinator(m, &fakeAlerter{}, time.Second, 30*time.Millisecond, slow)

	c.Submit("zora", 1, ReasonEdit)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	// The in-flight resolution drained before shutdown returned.
	got, _ := m.ReadOutputs(context.Background(), 1)
	if got == nil || got.TVL == nil {
		t.Error("in-flight resolution was not drained")
	}

	if c.Submit("zora", 1, ReasonEdit) {
		t.Error("Submit accepted after shutdown")
	}
}
