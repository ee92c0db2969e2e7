package job

import "sync"

// Gate bounds how many jobs may run at once, globally and per owner.
// Admission is a non-blocking test: the claim loop walks the queue in
// admission order and asks for a slot per candidate, so an owner at its
// limit is skipped without holding up later candidates in the scan.
//
// A semaphore is not enough here: the global limit must be resizable at
// runtime and admission must account for the per-owner count.
type Gate struct {
	mu       sync.Mutex
	limit    int
	inUse    int
	perOwner map[string]int
}

// NewGate creates a gate with the given global concurrency limit. Limits
// below one are treated as one.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		limit:    limit,
		perOwner: make(map[string]int),
	}
}

// TryAcquire takes a slot without waiting, returning false when the gate is
// globally full or the owner is at its limit. ownerLimit <= 0 means the
// owner is unbounded. The release function is idempotent.
func (g *Gate) TryAcquire(owner string, ownerLimit int) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.eligibleLocked(owner, ownerLimit) {
		return nil, false
	}
	g.admitLocked(owner)
	return g.releaseFunc(owner), true
}

// SetLimit changes the global concurrency limit. Lowering it below current
// usage never interrupts running jobs; the gate simply stops admitting until
// usage drops under the new limit.
func (g *Gate) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = limit
}

// Limit returns the current global concurrency limit.
func (g *Gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// InUse returns the number of held slots.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// OwnerInUse returns the number of slots held by the owner.
func (g *Gate) OwnerInUse(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.perOwner[owner]
}

func (g *Gate) eligibleLocked(owner string, ownerLimit int) bool {
	if g.inUse >= g.limit {
		return false
	}
	if ownerLimit > 0 && g.perOwner[owner] >= ownerLimit {
		return false
	}
	return true
}

func (g *Gate) admitLocked(owner string) {
	g.inUse++
	g.perOwner[owner]++
}

func (g *Gate) releaseFunc(owner string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.inUse--
			if g.perOwner[owner] <= 1 {
				delete(g.perOwner, owner)
			} else {
				g.perOwner[owner]--
			}
		})
	}
}
