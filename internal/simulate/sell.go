package simulate

import (
	"context"
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/evmrunner"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/sniperabi"
)

// SimulateSell optionally commits a pending tx, reads the contract's
// current balance of pool.Token1, sells the whole balance, and returns the
// WETH received. Used both for steady-state SellOracle revaluation and for
// the AntiRug/AntiHoneypot before-vs-after comparison.
func (p *Pipeline) SimulateSell(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, block position.BlockInfo, pc PendingCtx) (*uint256.Int, error) {
	sandbox := factory.NewSandbox(ctx)
	if err := p.commitPending(sandbox, block, pc); err != nil {
		return nil, err
	}

	balance, err := p.liveTokenBalance(sandbox, block, pool)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return uint256.NewInt(0), nil
	}

	sellData, err := sniperabi.Sniper.Pack("snipaaaaaa", pool.Token1, p.WETH, pool.Address, balance, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	sellResult := evmrunner.SimCall(sandbox, block, p.ChainConfig, p.Caller, p.Contract, sellData, nil)
	if sellResult.Err != nil {
		return nil, sellResult.Err
	}

	out := decodeSwapAmountOut(sellResult.Logs, pool.Address)
	if out == nil {
		out = uint256.NewInt(0)
	}
	return out, nil
}

// liveTokenBalance reads the contract's current balance of pool.Token1
// against an already-prepared sandbox.
func (p *Pipeline) liveTokenBalance(sandbox *forkdb.ForkDB, block position.BlockInfo, pool position.Pool) (*big.Int, error) {
	balData, err := sniperabi.Pair.Pack("balanceOf", p.Contract)
	if err != nil {
		return nil, err
	}
	balResult := evmrunner.SimCall(sandbox, block, p.ChainConfig, p.Caller, pool.Token1, balData, nil)
	if balResult.Err != nil {
		return nil, balResult.Err
	}
	return new(big.Int).SetBytes(balResult.ReturnData), nil
}

// LiveTokenBalance reads the contract's current on-chain balance of
// pool.Token1. Full-exit sells must use this instead of the amount
// recorded at buy time (position.SnipeTx.ExpectedAmountOfTokens), which
// goes stale the moment a partial sell (e.g. the initial profit take)
// changes the contract's actual holdings.
func (p *Pipeline) LiveTokenBalance(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, block position.BlockInfo) (*uint256.Int, error) {
	sandbox := factory.NewSandbox(ctx)
	balance, err := p.liveTokenBalance(sandbox, block, pool)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, chainerr.New(chainerr.KindInvariantBreach, "live_token_balance: balance overflowed uint256", nil)
	}
	return out, nil
}

// GetTouchedPools simulates tx and intersects the set of accounts the tx
// wrote to (ForkDB.TouchedAccounts) against held, returning the subset of
// held pools the tx writes to; a pool the tx only reads is not returned.
func (p *Pipeline) GetTouchedPools(ctx context.Context, factory *forkdb.ForkFactory, block position.BlockInfo, tx *types.Transaction, sender common.Address, held []position.Pool) ([]position.Pool, error) {
	sandbox := factory.NewSandbox(ctx)
	result := evmrunner.CommitPendingTx(sandbox, block, p.ChainConfig, tx, sender)
	if result.Err != nil {
		return nil, result.Err
	}

	touched := mapset.NewThreadUnsafeSet[common.Address]()
	for _, addr := range sandbox.TouchedAccounts() {
		touched.Add(addr)
	}

	var out []position.Pool
	for _, pool := range held {
		if touched.Contains(pool.Address) {
			out = append(out, pool)
		}
	}
	return out, nil
}
