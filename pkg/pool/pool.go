// Package pool hands out locked memory slots to concurrent callers without
// blocking.
//
// A pool owns a fixed number of slots whose memory is allocated on first use
// and kept until the pool is closed. When every slot is busy, Acquire falls
// back to a transient slot that lives for a single use. The pool size is a
// pre-provisioning hint for peak concurrency, not an admission limit.
package pool

import (
	"log/slog"
	"sync/atomic"

	"example.com/cryptkeeper/pkg/util/securemem"
)

var newRegion = securemem.NewRegion

// Pool is a fixed-capacity set of equally sized slots.
type Pool struct {
	name     string
	slots    []*Slot
	slotSize int
	cursor   atomic.Int64
	closed   atomic.Bool
	logger   *slog.Logger

	acquisitions atomic.Uint64
	fallbacks    atomic.Uint64
	allocated    atomic.Int64
	inUse        atomic.Int64
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Size         int
	SlotSize     int
	Allocated    int
	InUse        int
	Acquisitions uint64
	Fallbacks    uint64
}

// New creates a pool of size slots holding slotSize bytes each. A size of 0
// disables pooling: every Acquire returns a transient slot. A nil logger
// discards pool events.
func New(name string, size, slotSize int, logger *slog.Logger) *Pool {
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pool{
		name:     name,
		slots:    make([]*Slot, size),
		slotSize: slotSize,
		logger:   logger.With("pool", name),
	}
	for i := range p.slots {
		p.slots[i] = &Slot{pool: p, index: i, cached: true}
	}
	return p
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Size() int { return len(p.slots) }

func (p *Pool) SlotSize() int { return p.slotSize }

// Acquire returns an in-use slot. It scans at most Size candidates starting
// at the shared cursor and never waits for a busy slot.
func (p *Pool) Acquire() *Slot {
	p.acquisitions.Add(1)
	if p.closed.Load() {
		return p.transient()
	}
	for range len(p.slots) {
		s := p.slots[p.next()]
		if s.state.CompareAndSwap(stateFree, stateInUse) {
			p.inUse.Add(1)
			return s
		}
		if s.state.CompareAndSwap(stateUnallocated, stateInUse) {
			p.allocate(s)
			p.allocated.Add(1)
			p.inUse.Add(1)
			return s
		}
	}
	if len(p.slots) > 0 {
		p.fallbacks.Add(1)
		p.logger.Debug("pool exhausted, using transient slot", "size", len(p.slots))
	}
	return p.transient()
}

// next claims the candidate index under the cursor and advances it, so
// concurrent acquirers start from different slots.
func (p *Pool) next() int {
	n := int64(len(p.slots))
	for {
		cur := p.cursor.Load()
		if p.cursor.CompareAndSwap(cur, (cur+1)%n) {
			return int(cur)
		}
	}
}

// allocate maps the region of a slot the caller has just claimed. memguard
// panics when it cannot lock memory; the claim is undone before the panic
// continues so the slot can be allocated again later.
func (p *Pool) allocate(s *Slot) {
	defer func() {
		if r := recover(); r != nil {
			s.state.CompareAndSwap(stateInUse, stateUnallocated)
			panic(r)
		}
	}()
	s.region = newRegion(p.slotSize)
}

func (p *Pool) transient() *Slot {
	s := &Slot{pool: p, index: -1, region: newRegion(p.slotSize)}
	s.state.Store(stateInUse)
	return s
}

// Close destroys every idle slot. Slots in use are destroyed when released.
// Acquire keeps working after Close but only returns transient slots.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for _, s := range p.slots {
		if s.state.CompareAndSwap(stateFree, stateRetired) {
			s.retire()
			continue
		}
		s.state.CompareAndSwap(stateUnallocated, stateRetired)
	}
	p.logger.Debug("pool closed")
}

func (p *Pool) Closed() bool { return p.closed.Load() }

func (p *Pool) Stats() Stats {
	return Stats{
		Size:         len(p.slots),
		SlotSize:     p.slotSize,
		Allocated:    int(p.allocated.Load()),
		InUse:        int(p.inUse.Load()),
		Acquisitions: p.acquisitions.Load(),
		Fallbacks:    p.fallbacks.Load(),
	}
}
