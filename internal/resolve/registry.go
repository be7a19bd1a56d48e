package resolve

import (
	"sync"

	"github.com/web3-frozen/chainsync/internal/chain"
)

// job is one active resolution. Everything that coalesces onto it
// shares its outcome.
type job struct {
	name      chain.Name
	rowID     int64
	reason    string
	coalesced int
	done      chan struct{}
}

// registry enforces at-most-one active resolution per chain name. The
// check-and-insert is atomic under the mutex, so two concurrent
// submissions for the same name can never both start.
type registry struct {
	mu     sync.Mutex
	active map[chain.Name]*job
}

func newRegistry() *registry {
	return &registry{active: make(map[chain.Name]*job)}
}

// begin returns the job for name, creating it if none is active.
// started reports whether this call created it.
func (r *registry) begin(name chain.Name, rowID int64, reason string) (j *job, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[name]; ok {
		existing.coalesced++
		return existing, false
	}
	j = &job{
		name:   name,
		rowID:  rowID,
		reason: reason,
		done:   make(chan struct{}),
	}
	r.active[name] = j
	return j, true
}

// finish retires j. Submissions arriving afterwards start fresh.
func (r *registry) finish(j *job) {
	r.mu.Lock()
	if r.active[j.name] == j {
		delete(r.active, j.name)
	}
	r.mu.Unlock()
	close(j.done)
}

// coalescedCount reads under the lock because begin may still be
// incrementing while the job's own goroutine reports it.
func (r *registry) coalescedCount(j *job) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return j.coalesced
}

func (r *registry) get(name chain.Name) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.active[name]
	return j, ok
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
