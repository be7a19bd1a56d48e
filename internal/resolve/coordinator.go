package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/metrics"
	"github.com/web3-frozen/chainsync/internal/sheet"
)

// Submission reasons, used as metric labels and log fields.
const (
	ReasonStartup = "startup"
	ReasonEdit    = "edit"
	ReasonManual  = "manual"
)

const (
	defaultTimeout = 4 * time.Second
	defaultBackoff = 3 * time.Second

	// Extra window after the round deadline for cancelled clients to
	// unwind before their slot is written off as a timeout.
	collectGrace = 500 * time.Millisecond
)

// Alerter receives operator-facing failure notifications. ClearChain
// re-arms suppressed alerts once a chain resolves cleanly again.
type Alerter interface {
	ResolveFailed(ctx context.Context, name chain.Name, detail string)
	CommitFailed(ctx context.Context, name chain.Name, err error)
	ClearChain(ctx context.Context, name chain.Name)
}

type Config struct {
	Sheet   sheet.Sheet
	Clients []Client
	// Ranks orders providers by trust; the highest number wins a
	// field-level conflict.
	Ranks   map[string]int
	Alerts  Alerter
	Timeout time.Duration
	Backoff time.Duration
	Logger  *slog.Logger
}

// Coordinator owns the resolution lifecycle: it fans a submitted chain
// name out to every provider client, joins the round at a shared
// deadline, merges what came back and commits the result to the sheet.
// Duplicate submissions for a name already in flight coalesce instead
// of starting a second round.
type Coordinator struct {
	sheet   sheet.Sheet
	clients []Client
	ranks   map[string]int
	alerts  Alerter
	timeout time.Duration
	backoff time.Duration
	logger  *slog.Logger

	reg  *registry
	wg   sync.WaitGroup
	quit chan struct{}
	stop sync.Once

	mu   sync.RWMutex
	last map[chain.Name]*chain.Canonical
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Coordinator{
		sheet:   cfg.Sheet,
		clients: cfg.Clients,
		ranks:   cfg.Ranks,
		alerts:  cfg.Alerts,
		timeout: cfg.Timeout,
		backoff: cfg.Backoff,
		logger:  cfg.Logger,
		reg:     newRegistry(),
		quit:    make(chan struct{}),
		last:    make(map[chain.Name]*chain.Canonical),
	}
}

// Submit requests a resolution for raw's normalized name. It returns
// true when a new resolution was started, false when the value was
// empty, the coordinator is shutting down, or the request coalesced
// onto a resolution already in flight.
func (c *Coordinator) Submit(raw string, rowID int64, reason string) bool {
	name := chain.Normalize(raw)
	if name.Empty() {
		return false
	}
	select {
	case <-c.quit:
		return false
	default:
	}

	j, started := c.reg.begin(name, rowID, reason)
	if !started {
		metrics.ResolutionsCoalesced.Inc()
		c.logger.Debug("submission coalesced onto active resolution",
			"chain", name.String(), "reason", reason)
		return false
	}

	metrics.ResolutionsStarted.WithLabelValues(reason).Inc()
	metrics.ActiveResolutions.Inc()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer metrics.ActiveResolutions.Dec()
		defer c.reg.finish(j)
		c.run(j)
	}()
	return true
}

// Active reports whether a resolution for name is currently in flight.
func (c *Coordinator) Active(name chain.Name) bool {
	_, ok := c.reg.get(name)
	return ok
}

// Record returns the most recent merged record for name that had at
// least one provider success.
func (c *Coordinator) Record(name chain.Name) (*chain.Canonical, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.last[name]
	return rec, ok
}

// Shutdown stops accepting submissions and waits for active resolutions
// to drain. Jobs still running when ctx expires are abandoned.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stop.Do(func() { close(c.quit) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("shutdown grace expired with resolutions active",
			"active", c.reg.size())
		return ctx.Err()
	}
}

func (c *Coordinator) run(j *job) {
	start := time.Now()
	log := c.logger.With("chain", j.name.String(), "row", j.rowID, "reason", j.reason)
	log.Info("resolution started", "providers", len(c.clients))

	rec := c.round(j.name)
	committed := c.commit(j, rec, log)

	if rec.Completeness == 0 {
		metrics.ResolutionsAllFailed.Inc()
		c.alerts.ResolveFailed(context.Background(), j.name,
			fmt.Sprintf("all %d providers failed", len(c.clients)))
		log.Warn("all providers failed, retrying once", "backoff", c.backoff)
		if !c.await(c.backoff) {
			return
		}
		metrics.ResolutionRetries.Inc()
		rec = c.round(j.name)
		committed = c.commit(j, rec, log)
	}

	if rec.Completeness > 0 {
		c.remember(j.name, rec)
		if committed {
			c.alerts.ClearChain(context.Background(), j.name)
		}
	}

	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	metrics.ResolveCompleteness.WithLabelValues(j.name.String()).Set(rec.Completeness)
	log.Info("resolution finished",
		"completeness", rec.Completeness,
		"coalesced", c.reg.coalescedCount(j),
		"duration_ms", time.Since(start).Milliseconds())
}

// round runs one fan-out across all clients and merges the outcome.
// Every client gets until the shared deadline; whatever has not
// reported by then (plus a short grace) is recorded as a timeout and
// its eventual result discarded.
func (c *Coordinator) round(name chain.Name) *chain.Canonical {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	results := make(chan chain.Attempt, len(c.clients))
	pending := make(map[string]bool, len(c.clients))
	for _, cl := range c.clients {
		pending[cl.Name()] = true
		go func(cl Client) {
			results <- c.attempt(ctx, cl, name)
		}(cl)
	}

	escape := time.NewTimer(c.timeout + collectGrace)
	defer escape.Stop()

	attempts := make([]chain.Attempt, 0, len(c.clients))
collect:
	for len(attempts) < len(c.clients) {
		select {
		case a := <-results:
			delete(pending, a.Provider)
			attempts = append(attempts, a)
		case <-escape.C:
			break collect
		}
	}
	for provider := range pending {
		c.logger.Warn("provider unresponsive past deadline",
			"provider", provider, "chain", name.String())
		attempts = append(attempts, chain.Attempt{
			Provider: provider,
			Err:      NewError(provider, ErrTimeout, "no response before deadline"),
		})
	}

	return chain.Merge(name, attempts, c.ranks, time.Now())
}

func (c *Coordinator) attempt(ctx context.Context, cl Client, name chain.Name) chain.Attempt {
	start := time.Now()
	rec, err := cl.Resolve(ctx, name)
	metrics.ProviderLatency.WithLabelValues(cl.Name()).Observe(time.Since(start).Seconds())

	if err == nil && ctx.Err() != nil {
		rec = nil
		err = NewError(cl.Name(), ErrTimeout, "result arrived after deadline")
	}
	if err == nil && rec == nil {
		err = NewError(cl.Name(), ErrMalformed, "provider returned no record")
	}
	if err != nil {
		err = Classify(cl.Name(), err)
		metrics.ProviderFailures.WithLabelValues(cl.Name(), KindOf(err).String()).Inc()
		c.logger.Warn("provider attempt failed",
			"provider", cl.Name(),
			"chain", name.String(),
			"kind", KindOf(err).String(),
			"error", err)
		return chain.Attempt{Provider: cl.Name(), Err: err}
	}

	metrics.ProviderSuccesses.WithLabelValues(cl.Name()).Inc()
	return chain.Attempt{Provider: cl.Name(), Record: rec}
}

// commit writes rec to the sheet with one immediate retry. A record
// only carries the fields providers actually supplied, so even a
// completeness-zero commit cannot blank out earlier data.
func (c *Coordinator) commit(j *job, rec *chain.Canonical, log *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.sheet.WriteOutputs(ctx, j.rowID, rec)
	if err != nil {
		metrics.CommitRetries.Inc()
		log.Warn("commit failed, retrying once", "error", err)
		err = c.sheet.WriteOutputs(ctx, j.rowID, rec)
	}
	if err != nil {
		metrics.CommitFailures.Inc()
		c.alerts.CommitFailed(context.Background(), j.name, err)
		log.Error("commit failed, row left untouched", "error", err)
		return false
	}
	metrics.Commits.Inc()
	return true
}

func (c *Coordinator) remember(name chain.Name, rec *chain.Canonical) {
	c.mu.Lock()
	c.last[name] = rec
	c.mu.Unlock()
}

// await sleeps for d unless shutdown begins first.
func (c *Coordinator) await(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.quit:
		return false
	}
}
