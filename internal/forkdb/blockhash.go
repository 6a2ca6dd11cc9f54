package forkdb

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// GetHash resolves a BLOCKHASH lookup and caches the answer per block
// number. It never queries the chain client: every number resolves to the
// zero hash. The EVM built by evmrunner does not call it; that EVM's
// vm.BlockContext.GetHash returns the zero hash directly.
func (f *ForkFactory) GetHash(ctx context.Context, number uint64) common.Hash {
	if v, ok := f.blockHashes.Load(number); ok {
		return v.(common.Hash)
	}

	// The chain client interface only exposes header subscriptions and
	// account/storage reads; block-hash-by-number is out of the narrow
	// capability set spec §6 grants us, so historical BLOCKHASH lookups
	// beyond the pinned base block resolve to the zero hash. Simulations
	// in this bot never rely on BLOCKHASH for economic logic.
	hash := common.Hash{}
	actual, _ := f.blockHashes.LoadOrStore(number, hash)
	return actual.(common.Hash)
}
