package packet

import "sync"

// Scheduler owns the pending list that backs idempotent callbacks for one
// connection. It replaces the original design's process-wide pending list
// (spec.md §9: "re-architect as explicitly constructed context objects") —
// each Connection constructs its own Scheduler, and tests construct theirs.
type Scheduler struct {
	mu      sync.Mutex
	pending []*Callback
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Callback is an idempotent callback: a (fn, queued) pair that, once queued,
// is guaranteed to run exactly once on the next Drain, no matter how many
// times Queue is called before that Drain.
type Callback struct {
	sched  *Scheduler
	fn     func()
	queued bool
}

// NewCallback builds a Callback bound to sched. fn must not block.
func NewCallback(sched *Scheduler, fn func()) *Callback {
	return &Callback{sched: sched, fn: fn}
}

// Queue schedules the callback to run on the scheduler's next Drain, unless
// it is already queued for a Drain that hasn't happened yet.
func (c *Callback) Queue() {
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.queued {
		return
	}
	c.queued = true
	s.pending = append(s.pending, c)
}

// Drain runs every callback queued since the last Drain, exactly once each.
// A callback that re-queues itself (directly or via another callback) while
// its batch is running is not invoked again within that batch — it runs in
// the next pass, which this same Drain call makes: Drain keeps taking fresh
// batches until nothing is pending.
func (s *Scheduler) Drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, cb := range batch {
			cb.clearQueued()
			cb.fn()
		}
	}
}

func (c *Callback) clearQueued() {
	c.sched.mu.Lock()
	c.queued = false
	c.sched.mu.Unlock()
}

// Pending reports whether any callback is currently queued. Useful for tests
// and for a select-based event loop deciding whether to wake immediately.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}
