// Package forkdb implements the copy-on-write EVM state overlay described
// in spec §4.1: a ForkFactory pins a base block and lazily fetches
// accounts/code/storage from the chain client into a cache shared by every
// sandbox clone; each ForkDB sandbox carries its own private write overlay
// so simulations never disturb their siblings or the chain itself.
package forkdb

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chain"
)

// account is the lazily-fetched, factory-cached base-layer view of one
// address. It never mutates once populated — writes always land in a
// ForkDB's private overlay instead.
type account struct {
	balance *uint256.Int
	nonce   uint64
	code    []byte
	codeHash common.Hash
	exists  bool
}

// ForkFactory pins a base block and fetches/caches account and storage
// data from the chain client on demand. The cache is a plain sync.Map
// rather than a byte-oriented LRU: values are small, typed, and
// request-scoped to the life of one base block, so there is no benefit to
// a fixed-capacity byte cache built for trie-node-sized blobs (see
// DESIGN.md).
type ForkFactory struct {
	client     chain.Client
	baseBlock  *big.Int
	accounts   sync.Map // common.Address -> *account
	storage    sync.Map // storageKey -> common.Hash
	blockHashes sync.Map // uint64 -> common.Hash
}

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// NewForkFactory pins the factory to baseBlock (nil means "latest").
func NewForkFactory(client chain.Client, baseBlock *big.Int) *ForkFactory {
	return &ForkFactory{client: client, baseBlock: baseBlock}
}

func (f *ForkFactory) fetchAccount(ctx context.Context, addr common.Address) *account {
	if v, ok := f.accounts.Load(addr); ok {
		return v.(*account)
	}

	acc, err := f.client.GetAccount(ctx, addr, f.baseBlock)
	var a *account
	if err != nil {
		log.Warn("forkdb: account fetch failed, treating as empty", "addr", addr, "err", err)
		a = &account{balance: uint256.NewInt(0)}
	} else {
		bal, overflow := uint256.FromBig(acc.Balance)
		if overflow {
			bal = uint256.NewInt(0)
		}
		a = &account{
			balance: bal,
			nonce:   acc.Nonce,
			code:    acc.Code,
			exists:  acc.Nonce != 0 || acc.Balance.Sign() != 0 || len(acc.Code) != 0,
		}
		if len(a.code) > 0 {
			a.codeHash = crypto.Keccak256Hash(a.code)
		}
	}

	actual, _ := f.accounts.LoadOrStore(addr, a)
	return actual.(*account)
}

func (f *ForkFactory) fetchStorage(ctx context.Context, addr common.Address, slot common.Hash) common.Hash {
	key := storageKey{addr: addr, slot: slot}
	if v, ok := f.storage.Load(key); ok {
		return v.(common.Hash)
	}

	raw, err := f.client.StorageAt(ctx, addr, slot, f.baseBlock)
	var value common.Hash
	if err != nil {
		log.Warn("forkdb: storage fetch failed, treating as zero", "addr", addr, "slot", slot, "err", err)
	} else {
		value = common.BytesToHash(raw)
	}

	actual, _ := f.storage.LoadOrStore(key, value)
	return actual.(common.Hash)
}

// NewSandbox returns a lightweight, independently-mutable ForkDB view bound
// to ctx for the lazy fetches it performs against the factory. Writes made
// to it never propagate to the factory cache or to siblings spawned from
// the same factory.
func (f *ForkFactory) NewSandbox(ctx context.Context) *ForkDB {
	return &ForkDB{
		factory:    f,
		ctx:        ctx,
		overlay:    make(map[common.Address]*overlayAccount),
		accessList: newAccessList(),
	}
}

// BaseBlock reports the block this factory's cache is pinned to.
func (f *ForkFactory) BaseBlock() *big.Int { return f.baseBlock }
