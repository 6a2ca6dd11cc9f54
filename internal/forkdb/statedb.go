package forkdb

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// overlayAccount is the per-sandbox, copy-on-write layer above the
// factory's cached base account. A nil field means "fall through to the
// base layer"; overlayAccount.destructed means the account was
// self-destructed within this sandbox only.
type overlayAccount struct {
	balance     *uint256.Int
	nonce       *uint64
	code        []byte
	codeSet     bool
	storage     map[common.Hash]common.Hash
	destructed  bool
	created     bool
}

func (o *overlayAccount) ensureStorage() map[common.Hash]common.Hash {
	if o.storage == nil {
		o.storage = make(map[common.Hash]common.Hash)
	}
	return o.storage
}

// journalEntry undoes one mutation on RevertToSnapshot.
type journalEntry func(db *ForkDB)

// ForkDB is a single sandboxed EVM state view: a private write overlay on
// top of a ForkFactory's shared, lazily-populated read cache. It satisfies
// go-ethereum's vm.StateDB so it can be dropped directly into a
// core/vm.EVM. Never share a ForkDB across concurrent simulations — call
// ForkFactory.NewSandbox for each one.
type ForkDB struct {
	factory *ForkFactory
	ctx     context.Context

	overlay map[common.Address]*overlayAccount

	transientStorage map[common.Address]map[common.Hash]common.Hash

	refund uint64
	logs   []*types.Log

	accessList *accessListTracker

	journal   []journalEntry
	snapshots int

	txHash  common.Hash
	txIndex int
}

func (db *ForkDB) acct(addr common.Address) *overlayAccount {
	o, ok := db.overlay[addr]
	if !ok {
		o = &overlayAccount{}
		db.overlay[addr] = o
	}
	return o
}

// SetTxContext mirrors go-ethereum's StateDB.SetTxContext used by the EVM
// to tag logs/access-list entries with the executing transaction.
func (db *ForkDB) SetTxContext(hash common.Hash, index int) {
	db.txHash, db.txIndex = hash, index
}

func (db *ForkDB) CreateAccount(addr common.Address) {
	o := db.acct(addr)
	prevCreated := o.created
	db.journal = append(db.journal, func(d *ForkDB) { d.overlay[addr].created = prevCreated })
	o.created = true
}

func (db *ForkDB) CreateContract(addr common.Address) {
	// Contract-vs-EOA distinction is not needed for simulation purposes;
	// CreateAccount already marks the account as freshly created.
}

func (db *ForkDB) SubBalance(addr common.Address, amount *uint256.Int) {
	cur := db.GetBalance(addr)
	next := new(uint256.Int).Sub(cur, amount)
	db.setBalance(addr, next)
}

func (db *ForkDB) AddBalance(addr common.Address, amount *uint256.Int) {
	cur := db.GetBalance(addr)
	next := new(uint256.Int).Add(cur, amount)
	db.setBalance(addr, next)
}

func (db *ForkDB) setBalance(addr common.Address, value *uint256.Int) {
	o := db.acct(addr)
	prev := o.balance
	db.journal = append(db.journal, func(d *ForkDB) { d.overlay[addr].balance = prev })
	o.balance = value
}

func (db *ForkDB) GetBalance(addr common.Address) *uint256.Int {
	if o, ok := db.overlay[addr]; ok && o.balance != nil {
		return o.balance
	}
	base := db.factory.fetchAccount(db.ctx, addr)
	return base.balance
}

func (db *ForkDB) GetNonce(addr common.Address) uint64 {
	if o, ok := db.overlay[addr]; ok && o.nonce != nil {
		return *o.nonce
	}
	return db.factory.fetchAccount(db.ctx, addr).nonce
}

func (db *ForkDB) SetNonce(addr common.Address, nonce uint64) {
	o := db.acct(addr)
	prev := o.nonce
	db.journal = append(db.journal, func(d *ForkDB) { d.overlay[addr].nonce = prev })
	o.nonce = &nonce
}

func (db *ForkDB) GetCode(addr common.Address) []byte {
	if o, ok := db.overlay[addr]; ok && o.codeSet {
		return o.code
	}
	return db.factory.fetchAccount(db.ctx, addr).code
}

func (db *ForkDB) GetCodeSize(addr common.Address) int {
	return len(db.GetCode(addr))
}

func (db *ForkDB) GetCodeHash(addr common.Address) common.Hash {
	if o, ok := db.overlay[addr]; ok && o.codeSet {
		if len(o.code) == 0 {
			return common.Hash{}
		}
		return crypto.Keccak256Hash(o.code)
	}
	return db.factory.fetchAccount(db.ctx, addr).codeHash
}

func (db *ForkDB) SetCode(addr common.Address, code []byte) {
	o := db.acct(addr)
	prevCode, prevSet := o.code, o.codeSet
	db.journal = append(db.journal, func(d *ForkDB) {
		a := d.overlay[addr]
		a.code, a.codeSet = prevCode, prevSet
	})
	o.code, o.codeSet = code, true
}

func (db *ForkDB) AddRefund(gas uint64) {
	prev := db.refund
	db.journal = append(db.journal, func(d *ForkDB) { d.refund = prev })
	db.refund += gas
}

func (db *ForkDB) SubRefund(gas uint64) {
	prev := db.refund
	db.journal = append(db.journal, func(d *ForkDB) { d.refund = prev })
	if gas > db.refund {
		db.refund = 0
		return
	}
	db.refund -= gas
}

func (db *ForkDB) GetRefund() uint64 { return db.refund }

func (db *ForkDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	// The factory cache is the "committed" base layer relative to this
	// sandbox's in-flight overlay.
	return db.factory.fetchStorage(db.ctx, addr, slot)
}

func (db *ForkDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	if o, ok := db.overlay[addr]; ok && o.storage != nil {
		if v, ok := o.storage[slot]; ok {
			return v
		}
	}
	return db.factory.fetchStorage(db.ctx, addr, slot)
}

func (db *ForkDB) SetState(addr common.Address, slot, value common.Hash) {
	o := db.acct(addr)
	storage := o.ensureStorage()
	prev, had := storage[slot]
	db.journal = append(db.journal, func(d *ForkDB) {
		s := d.overlay[addr].storage
		if had {
			s[slot] = prev
		} else {
			delete(s, slot)
		}
	})
	storage[slot] = value
}

func (db *ForkDB) GetTransientState(addr common.Address, slot common.Hash) common.Hash {
	if m, ok := db.transientStorage[addr]; ok {
		return m[slot]
	}
	return common.Hash{}
}

func (db *ForkDB) SetTransientState(addr common.Address, slot, value common.Hash) {
	if db.transientStorage == nil {
		db.transientStorage = make(map[common.Address]map[common.Hash]common.Hash)
	}
	if db.transientStorage[addr] == nil {
		db.transientStorage[addr] = make(map[common.Hash]common.Hash)
	}
	db.transientStorage[addr][slot] = value
}

func (db *ForkDB) SelfDestruct(addr common.Address) {
	o := db.acct(addr)
	prev := o.destructed
	db.journal = append(db.journal, func(d *ForkDB) { d.overlay[addr].destructed = prev })
	o.destructed = true
	o.balance = uint256.NewInt(0)
}

func (db *ForkDB) HasSelfDestructed(addr common.Address) bool {
	if o, ok := db.overlay[addr]; ok {
		return o.destructed
	}
	return false
}

// SelfDestruct6780 behaves exactly like SelfDestruct and returns the prior
// balance and true. It does not check whether addr was created in the
// current transaction, so an account created by an earlier call in the same
// ForkDB (e.g. a pending tx applied by CommitPendingTx) is destructed too.
func (db *ForkDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	bal := *db.GetBalance(addr)
	db.SelfDestruct(addr)
	return bal, true
}

func (db *ForkDB) Exist(addr common.Address) bool {
	if o, ok := db.overlay[addr]; ok && (o.created || o.balance != nil || o.nonce != nil || o.codeSet) {
		return true
	}
	return db.factory.fetchAccount(db.ctx, addr).exists
}

func (db *ForkDB) Empty(addr common.Address) bool {
	return db.GetNonce(addr) == 0 && db.GetBalance(addr).IsZero() && db.GetCodeSize(addr) == 0
}

func (db *ForkDB) AddressInAccessList(addr common.Address) bool {
	return db.accessList.containsAddress(addr)
}

func (db *ForkDB) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	return db.accessList.contains(addr, slot)
}

func (db *ForkDB) AddAddressToAccessList(addr common.Address) {
	db.accessList.addAddress(addr)
}

func (db *ForkDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	db.accessList.addSlot(addr, slot)
}

func (db *ForkDB) Prepare(rules Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	db.accessList = newAccessList()
	db.accessList.addAddress(sender)
	if dest != nil {
		db.accessList.addAddress(*dest)
	}
	for _, p := range precompiles {
		db.accessList.addAddress(p)
	}
	for _, el := range txAccesses {
		db.accessList.addAddress(el.Address)
		for _, slot := range el.StorageKeys {
			db.accessList.addSlot(el.Address, slot)
		}
	}
	if rules.IsBerlin {
		db.accessList.addAddress(coinbase)
	}
}

// Rules is the minimal subset of params.Rules that Prepare needs; defined
// locally so this package does not have to depend on the exact params.Rules
// shape across go-ethereum versions.
type Rules struct {
	IsBerlin bool
}

func (db *ForkDB) RevertToSnapshot(id int) {
	for len(db.journal) > id {
		entry := db.journal[len(db.journal)-1]
		db.journal = db.journal[:len(db.journal)-1]
		entry(db)
	}
}

func (db *ForkDB) Snapshot() int {
	return len(db.journal)
}

func (db *ForkDB) AddLog(l *types.Log) {
	l.TxHash = db.txHash
	l.TxIndex = uint(db.txIndex)
	db.logs = append(db.logs, l)
}

func (db *ForkDB) AddPreimage(hash common.Hash, preimage []byte) {
	// Preimages are only needed for trie debugging; simulations never
	// persist state, so this is a no-op.
}

func (db *ForkDB) ForEachStorage(addr common.Address, cb func(common.Hash, common.Hash) bool) error {
	if o, ok := db.overlay[addr]; ok {
		for k, v := range o.storage {
			if !cb(k, v) {
				return nil
			}
		}
	}
	return nil
}

// Logs returns every log emitted during this sandbox's lifetime, in order.
func (db *ForkDB) Logs() []*types.Log { return db.logs }

// TouchedAccounts returns every address that has an overlay entry in this
// sandbox, i.e. every account written to (including writes later reverted).
// Accounts that were only read, or only warmed in the access list, are not
// included. Used by SimulationPipeline.GetTouchedPools.
func (db *ForkDB) TouchedAccounts() []common.Address {
	addrs := make([]common.Address, 0, len(db.overlay))
	for addr := range db.overlay {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Balance0 is a convenience for tests and helpers that want *big.Int.
func Balance0() *big.Int { return big.NewInt(0) }
