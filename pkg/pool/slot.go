package pool

import (
	"sync/atomic"

	"example.com/cryptkeeper/pkg/util/securemem"
)

const (
	stateUnallocated int32 = iota
	stateFree
	stateInUse
	stateRetired
)

// Slot is one region of locked memory. Cached slots belong to a pool and are
// reused; transient slots are destroyed on release.
//
// State moves unallocated → in use → free → in use → … and ends retired
// (transient slots, or cached slots of a closed pool).
type Slot struct {
	pool   *Pool
	region *securemem.Region
	state  atomic.Int32
	index  int
	cached bool
}

// Index is the slot's position in its pool, or -1 for a transient slot.
func (s *Slot) Index() int { return s.index }

func (s *Slot) Cached() bool { return s.cached }

// Bytes returns the slot's whole region.
func (s *Slot) Bytes() []byte { return s.region.Bytes() }

// String returns a string aliasing n bytes of the region from offset.
func (s *Slot) String(offset, n int) string { return s.region.String(offset, n) }

// Release wipes the slot, then frees it for reuse or destroys it. Call it
// exactly once per Acquire.
func (s *Slot) Release() {
	if s.state.Load() != stateInUse {
		return
	}
	s.region.Wipe()
	if !s.cached {
		if s.state.CompareAndSwap(stateInUse, stateRetired) {
			s.region.Destroy()
		}
		return
	}
	if !s.state.CompareAndSwap(stateInUse, stateFree) {
		return
	}
	s.pool.inUse.Add(-1)
	if s.pool.closed.Load() && s.state.CompareAndSwap(stateFree, stateRetired) {
		s.retire()
	}
}

func (s *Slot) retire() {
	s.region.Destroy()
	s.pool.allocated.Add(-1)
}
