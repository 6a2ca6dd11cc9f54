// Package simulate implements the EVM-Simulation Pipeline (spec §4.6):
// pure functions over (pool, amount, block, optional pending tx, fork)
// that discover pool pricing, classify tax/honeypot behaviour, and price
// exits. Every function takes its own ForkFactory sandbox clone so callers
// never share mutable EVM state across probes.
package simulate

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/evmrunner"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/metrics"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/sniperabi"
)

// probeStep is the 0.001 ETH decrement find_amount_in probes down by.
var probeStep = uint256.MustFromDecimal("1000000000000000")

const maxProbeAttempts = 100

// Pipeline bundles the static configuration every simulation call needs:
// the chain rules to execute under, the sniper contract and the caller
// address simulations impersonate, WETH's address, and the buy slippage
// ratio used by GenerateTxData.
type Pipeline struct {
	ChainConfig    *params.ChainConfig
	Contract       common.Address
	Caller         common.Address
	WETH           common.Address
	BuyNumerator   uint64
	BuyDenominator uint64
	MinBuySize     *uint256.Int
	MaxBuySize     *uint256.Int
}

// PendingCtx bundles the optional co-simulated pending transaction shared
// by nearly every pipeline entry point. The zero value means "no pending
// tx to commit".
type PendingCtx struct {
	Tx     *types.Transaction
	Sender common.Address
}

func (p *Pipeline) commitPending(db *forkdb.ForkDB, block position.BlockInfo, pc PendingCtx) error {
	if pc.Tx == nil {
		return nil
	}
	result := evmrunner.CommitPendingTx(db, block, p.ChainConfig, pc.Tx, pc.Sender)
	return result.Err
}

// FindAmountIn probes down from MaxBuySize in probeStep decrements,
// re-simulating a zero-slippage buy in a fresh sandbox each time, until a
// probe succeeds, the amount would fall below MinBuySize, or
// maxProbeAttempts is exceeded. Returns zero (not an error) when nothing
// succeeds — spec §4.6 treats that as "drop the event", not a failure.
func (p *Pipeline) FindAmountIn(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, block position.BlockInfo, pc PendingCtx) (*uint256.Int, error) {
	defer metrics.ObserveLatency("find_amount_in", time.Now())
	amount := new(uint256.Int).Set(p.MaxBuySize)

	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		if amount.Lt(p.MinBuySize) {
			return uint256.NewInt(0), nil
		}

		sandbox := factory.NewSandbox(ctx)
		if err := p.commitPending(sandbox, block, pc); err != nil {
			amount = new(uint256.Int).Sub(amount, probeStep)
			continue
		}

		data, err := sniperabi.Sniper.Pack("snipaaaaaa", p.WETH, pool.Token1, pool.Address, amount.ToBig(), big.NewInt(0))
		if err != nil {
			return nil, err
		}

		result := evmrunner.SimCall(sandbox, block, p.ChainConfig, p.Caller, p.Contract, data, nil)
		if result.Err == nil && !result.Reverted {
			return amount, nil
		}

		amount = new(uint256.Int).Sub(amount, probeStep)
	}

	return uint256.NewInt(0), nil
}

// TaxCheck buys amountIn, checks buy-side tax against the Swap/Transfer
// logs, advances one simulated block, sells the received amount, and
// checks sell-side tax. Returns (passed, err): a tax failure is a signal
// (passed=false, err=nil); only an unrelated simulation failure returns a
// non-nil error (spec §7: "simulation revert... classified as a signal,
// not an error, inside tax/transfer checks").
func (p *Pipeline) TaxCheck(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, amountIn *uint256.Int, block position.BlockInfo, pc PendingCtx) (bool, error) {
	defer metrics.ObserveLatency("tax_check", time.Now())
	sandbox := factory.NewSandbox(ctx)
	if err := p.commitPending(sandbox, block, pc); err != nil {
		return false, err
	}

	buyData, err := sniperabi.Sniper.Pack("snipaaaaaa", p.WETH, pool.Token1, pool.Address, amountIn.ToBig(), big.NewInt(0))
	if err != nil {
		return false, err
	}
	buyResult := evmrunner.SimCall(sandbox, block, p.ChainConfig, p.Caller, p.Contract, buyData, nil)
	if buyResult.Reverted {
		return false, nil
	}
	if buyResult.Err != nil {
		return false, buyResult.Err
	}

	swapOut := decodeSwapAmountOut(buyResult.Logs, pool.Address)
	received := decodeTransferReceived(buyResult.Logs, p.Contract)
	if swapOut == nil || swapOut.IsZero() || received == nil {
		return false, errors.New("tax_check: buy produced no Swap/Transfer log")
	}

	if received.Lt(mulDiv(swapOut, 70, 100)) {
		return false, nil
	}

	nextBlock := position.BlockInfo{
		Number:    block.Number + 1,
		Timestamp: block.Timestamp + 12,
		BaseFee:   block.BaseFee,
	}

	sellData, err := sniperabi.Sniper.Pack("snipaaaaaa", pool.Token1, p.WETH, pool.Address, received.ToBig(), big.NewInt(0))
	if err != nil {
		return false, err
	}
	sellResult := evmrunner.SimCall(sandbox, nextBlock, p.ChainConfig, p.Caller, p.Contract, sellData, nil)
	if sellResult.Reverted {
		return false, nil
	}
	if sellResult.Err != nil {
		return false, sellResult.Err
	}

	wethOut := decodeSwapAmountOut(sellResult.Logs, pool.Address)
	if wethOut == nil {
		return false, errors.New("tax_check: sell produced no Swap log")
	}

	return wethOut.Gte(mulDiv(amountIn, 70, 100)), nil
}

// TransferCheck advances 200 blocks, withdraws the contract's balance of
// the acquired token to admin, and requires the admin's resulting balance
// be at least 80% of the pre-withdraw contract balance. Per the CLARIFIED
// OPEN QUESTIONS in SPEC_FULL.md, an admin address with zero ETH in the
// sandbox is treated as an environment defect and the check is skipped
// rather than failed.
func (p *Pipeline) TransferCheck(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, block position.BlockInfo, admin common.Address) (bool, error) {
	sandbox := factory.NewSandbox(ctx)

	futureBlock := position.BlockInfo{
		Number:    block.Number + 200,
		Timestamp: block.Timestamp + 200*12,
		BaseFee:   block.BaseFee,
	}

	balData, err := sniperabi.Pair.Pack("balanceOf", p.Contract)
	if err != nil {
		return false, err
	}
	balResult := evmrunner.SimCall(sandbox, futureBlock, p.ChainConfig, p.Caller, pool.Token1, balData, nil)
	if balResult.Err != nil {
		return false, balResult.Err
	}
	preBalance := new(big.Int).SetBytes(balResult.ReturnData)
	if preBalance.Sign() == 0 {
		return true, nil
	}

	if sandbox.GetBalance(admin).IsZero() {
		return true, nil
	}

	withdrawData, err := sniperabi.Sniper.Pack("withdraw", pool.Token1, preBalance)
	if err != nil {
		return false, err
	}
	withdrawResult := evmrunner.SimCall(sandbox, futureBlock, p.ChainConfig, admin, p.Contract, withdrawData, nil)
	if withdrawResult.Err != nil {
		return false, nil
	}

	adminBalData, err := sniperabi.Pair.Pack("balanceOf", admin)
	if err != nil {
		return false, err
	}
	adminBalResult := evmrunner.SimCall(sandbox, futureBlock, p.ChainConfig, p.Caller, pool.Token1, adminBalData, nil)
	if adminBalResult.Err != nil {
		return false, adminBalResult.Err
	}
	adminBalance := new(big.Int).SetBytes(adminBalResult.ReturnData)

	threshold := new(big.Int).Mul(preBalance, big.NewInt(80))
	threshold.Div(threshold, big.NewInt(100))

	return adminBalance.Cmp(threshold) >= 0, nil
}

func mulDiv(x *uint256.Int, num, den uint64) *uint256.Int {
	r := new(uint256.Int).Mul(x, uint256.NewInt(num))
	return r.Div(r, uint256.NewInt(den))
}
