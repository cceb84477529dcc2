// Package jobtable implements C5: a concurrent, key-ordered mapping from
// remote job id to job record, the teacher's readers-writer-lock-guarded
// in-memory containers (c.f. agent/autoupdate.Manager's mu sync.RWMutex
// pattern) generalized to the ordered-iteration requirement of §4.5.
package jobtable

import (
	"sort"
	"sync"

	"github.com/istopwg/ippinfra/internal/proxyctx"
)

// Table is a sorted container keyed by RemoteJobID, ascending, as required
// by §4.5 so the Job Worker always picks the oldest eligible job first.
type Table struct {
	mu      sync.RWMutex
	byID    map[int32]*proxyctx.Record
	ordered []int32 // kept sorted ascending

	condMu sync.Mutex
	cond   *sync.Cond
}

func New() *Table {
	t := &Table{byID: make(map[int32]*proxyctx.Record)}
	t.cond = sync.NewCond(&t.condMu)
	return t
}

// Insert adds a new record, or is a no-op if one already exists for that
// remote id (§8: "at most one job record exists for k at any instant").
// Returns true if a record was inserted.
func (t *Table) Insert(r *proxyctx.Record) bool {
	t.mu.Lock()
	if _, exists := t.byID[r.RemoteJobID]; exists {
		t.mu.Unlock()
		return false
	}
	t.byID[r.RemoteJobID] = r
	i := sort.Search(len(t.ordered), func(i int) bool { return t.ordered[i] >= r.RemoteJobID })
	t.ordered = append(t.ordered, 0)
	copy(t.ordered[i+1:], t.ordered[i:])
	t.ordered[i] = r.RemoteJobID
	t.mu.Unlock()

	t.Signal()
	return true
}

// Get looks up a record by remote job id.
func (t *Table) Get(id int32) (*proxyctx.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byID[id]
	return r, ok
}

// Remove deletes a record by remote job id.
func (t *Table) Remove(id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return
	}
	delete(t.byID, id)
	i := sort.Search(len(t.ordered), func(i int) bool { return t.ordered[i] >= id })
	if i < len(t.ordered) && t.ordered[i] == id {
		t.ordered = append(t.ordered[:i], t.ordered[i+1:]...)
	}
}

// Each walks every record in ascending remote-job-id order under a read
// lock, matching §4.5's ordered-iteration requirement. fn must not mutate
// the table.
func (t *Table) Each(fn func(*proxyctx.Record)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.ordered {
		fn(t.byID[id])
	}
}

// FirstPendingEligible scans for the first (oldest) record with
// local_job_state == pending and remote_job_state < canceled (§4.6 step 1).
func (t *Table) FirstPendingEligible() *proxyctx.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.ordered {
		r := t.byID[id]
		if r.Local() == proxyctx.JobStatePending && r.Remote() < proxyctx.JobStateCanceled {
			return r
		}
	}
	return nil
}

// PruneTerminal removes every record whose remote state has reached
// canceled or beyond (§3, §4.6 step 3) and returns how many were removed.
func (t *Table) PruneTerminal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.ordered[:0:0]
	removed := 0
	for _, id := range t.ordered {
		r := t.byID[id]
		if r.Prunable() {
			delete(t.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.ordered = kept
	return removed
}

// Len returns the number of records currently held.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ordered)
}

// Signal wakes every waiter blocked in Wait, used whenever C4 inserts a
// record or changes a remote_job_state the worker might now be eligible to
// act on (§5: "The condition's associated mutex is distinct and used only
// for the wait/signal handshake"). Broadcast rather than Signal: a Wait call
// whose timeout already fired leaves its goroutine parked on cond.Wait()
// until some future wakeup, and Signal's single-waiter wakeup could pick
// that orphan instead of the caller actively waiting right now, delaying
// pickup of a newly-eligible job until the next backstop. Waking everyone
// means the active caller is never starved by an orphan.
func (t *Table) Signal() {
	t.condMu.Lock()
	t.cond.Broadcast()
	t.condMu.Unlock()
}

// Wait blocks the calling goroutine on the condition variable until either
// Signal is called or timeout elapses — the worker's 15-second liveness
// backstop from §4.6 step 3.
func (t *Table) Wait(timeout <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		t.condMu.Lock()
		t.cond.Wait()
		t.condMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-timeout:
		// The waiting goroutine above remains parked until the next Signal;
		// that is fine because Signal broadcasts, so the next Signal releases
		// it together with any caller actively waiting.
	}
}

// Snapshot returns the ordered records as a slice, used by internal/diag
// for read-only reporting.
func (t *Table) Snapshot() []*proxyctx.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*proxyctx.Record, len(t.ordered))
	for i, id := range t.ordered {
		out[i] = t.byID[id]
	}
	return out
}
