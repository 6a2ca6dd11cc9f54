package forkdb

import "github.com/ethereum/go-ethereum/common"

// accessListTracker is a minimal warm/cold address+slot set, mirroring
// go-ethereum's core/state.accessList without pulling in the full state
// package (which expects a trie-backed Database).
type accessListTracker struct {
	addresses map[common.Address]struct{}
	slots     map[common.Address]map[common.Hash]struct{}
}

func newAccessList() *accessListTracker {
	return &accessListTracker{
		addresses: make(map[common.Address]struct{}),
		slots:     make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (a *accessListTracker) containsAddress(addr common.Address) bool {
	_, ok := a.addresses[addr]
	return ok
}

func (a *accessListTracker) contains(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	if _, ok := a.addresses[addr]; !ok {
		return false, false
	}
	addressOk = true
	if slots, ok := a.slots[addr]; ok {
		_, slotOk = slots[slot]
	}
	return addressOk, slotOk
}

func (a *accessListTracker) addAddress(addr common.Address) {
	a.addresses[addr] = struct{}{}
}

func (a *accessListTracker) addSlot(addr common.Address, slot common.Hash) {
	a.addAddress(addr)
	if a.slots[addr] == nil {
		a.slots[addr] = make(map[common.Hash]struct{})
	}
	a.slots[addr][slot] = struct{}{}
}

// Entries renders the tracked set as a types.AccessList-compatible slice of
// (address, slots) pairs, in the shape evmrunner needs to install on a real
// transaction's access list.
func (a *accessListTracker) Entries() []AccessTuple {
	out := make([]AccessTuple, 0, len(a.addresses))
	for addr := range a.addresses {
		var keys []common.Hash
		for slot := range a.slots[addr] {
			keys = append(keys, slot)
		}
		out = append(out, AccessTuple{Address: addr, StorageKeys: keys})
	}
	return out
}

// AccessTuple mirrors types.AccessTuple locally so callers outside this
// package don't need to import core/types just to read Entries().
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// Entries exposes the current sandbox's tracked access list.
func (db *ForkDB) Entries() []AccessTuple {
	return db.accessList.Entries()
}
