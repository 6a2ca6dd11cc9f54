// Package oracle implements the Oracle Mesh (spec §2 C4-C9): the Bot
// handle facade, the block/mempool/pair/nonce/fork-db background tasks,
// and the Sell/AntiRug/Retry SnipeTx collections they coordinate through.
package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oraclemesh/sniper/internal/metrics"
	"github.com/oraclemesh/sniper/internal/position"
)

// snipeTxSet is an ordered, uniqueness-on-Key() collection of SnipeTx, the
// shape spec §3 "Oracle collections" describes for SellOracle, AntiRugOracle,
// and RetryOracle alike. It is not safe for concurrent use on its own —
// callers take it through Bot's RWMutex-guarded accessors.
type snipeTxSet struct {
	order []common.Address
	byKey map[common.Address]position.SnipeTx
}

func newSnipeTxSet() *snipeTxSet {
	return &snipeTxSet{byKey: make(map[common.Address]position.SnipeTx)}
}

// Add is a no-op if the key is already present, preserving the first
// recorded copy (spec §3: "Duplicate adds are no-ops").
func (s *snipeTxSet) Add(tx position.SnipeTx) {
	key := tx.Key()
	if _, exists := s.byKey[key]; exists {
		return
	}
	s.byKey[key] = tx
	s.order = append(s.order, key)
}

// Upsert replaces the entry for tx's key if present, otherwise adds it.
// Used by mutation helpers (update counters, latch flags) that need to
// write back a changed copy.
func (s *snipeTxSet) Upsert(tx position.SnipeTx) {
	key := tx.Key()
	if _, exists := s.byKey[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byKey[key] = tx
}

// Remove is idempotent (spec §3).
func (s *snipeTxSet) Remove(key common.Address) {
	if _, exists := s.byKey[key]; !exists {
		return
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *snipeTxSet) Get(key common.Address) (position.SnipeTx, bool) {
	tx, ok := s.byKey[key]
	return tx, ok
}

func (s *snipeTxSet) Len() int { return len(s.order) }

// Snapshot returns a value-copy slice, safe to use after the lock guarding
// the set has been released (spec §5: "clone the needed slice of data").
func (s *snipeTxSet) Snapshot() []position.SnipeTx {
	out := make([]position.SnipeTx, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// guardedSet pairs a snipeTxSet with the RWMutex that protects it. Bot
// embeds three of these (sell, antiRug, retry); every exported method
// acquires the lock, mutates or reads, and releases before returning,
// satisfying the §5 invariant that no suspension point happens while a
// lock is held.
type guardedSet struct {
	mu   sync.RWMutex
	set  *snipeTxSet
	name string // metrics label; empty disables reporting
}

func newGuardedSet(name string) *guardedSet {
	return &guardedSet{set: newSnipeTxSet(), name: name}
}

func (g *guardedSet) reportSize() {
	if g.name == "" {
		return
	}
	metrics.SetOracleSize(g.name, g.set.Len())
}

func (g *guardedSet) add(tx position.SnipeTx) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set.Add(tx)
	g.reportSize()
}

func (g *guardedSet) upsert(tx position.SnipeTx) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set.Upsert(tx)
	g.reportSize()
}

func (g *guardedSet) remove(key common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set.Remove(key)
	g.reportSize()
}

func (g *guardedSet) get(key common.Address) (position.SnipeTx, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.set.Get(key)
}

func (g *guardedSet) len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.set.Len()
}

func (g *guardedSet) snapshot() []position.SnipeTx {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.set.Snapshot()
}

// mutate reads the current entry (if any), lets fn transform it, and
// writes the result back under a single write-lock acquisition — this is
// how counter bumps (snipe_retries, attempts_to_sell) stay monotonic
// without a read/modify/write race across goroutines (spec §5 ordering
// guarantees, spec §8 property 3).
func (g *guardedSet) mutate(key common.Address, fn func(position.SnipeTx) position.SnipeTx) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.set.Get(key)
	if !ok {
		return
	}
	g.set.Upsert(fn(cur))
}
