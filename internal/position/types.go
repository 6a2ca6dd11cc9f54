// Package position holds the value types shared across the oracle mesh:
// Pool identity, BlockInfo snapshots, the per-token SnipeTx lifecycle
// record, and the ephemeral TxData dispatch artifact.
package position

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// FrontrunTag selects how a TxData gets ordered against a co-bundled
// pending transaction.
type FrontrunTag uint8

const (
	// TagFrontrun places our tx ahead of the pending tx it reacts to.
	TagFrontrun FrontrunTag = iota
	// TagBackrun places our tx behind the pending tx that created the pool.
	TagBackrun
	// TagSolo submits our tx alone, with no co-bundled pending tx.
	TagSolo
)

func (t FrontrunTag) String() string {
	switch t {
	case TagFrontrun:
		return "frontrun"
	case TagBackrun:
		return "backrun"
	case TagSolo:
		return "solo"
	default:
		return "unknown"
	}
}

// Pool identifies a Uniswap-V2-style liquidity pair. token0 is always the
// quote asset (WETH); token1 is the asset being acquired. Pool is a value
// type: copy it freely, never mutate a shared instance.
type Pool struct {
	Address       common.Address
	Token0        common.Address // always WETH after normalization
	Token1        common.Address
	WethLiquidity *uint256.Int // reserve snapshot at discovery time
}

// Equal reports whether two pools share the same address, the only identity
// component per spec §3.
func (p Pool) Equal(other Pool) bool {
	return p.Address == other.Address
}

// BlockInfo is a minimal block header snapshot used throughout simulation.
type BlockInfo struct {
	Number    uint64
	Timestamp uint64
	BaseFee   *big.Int
}

// NextBlockInfo predicts the following block per the EIP-1559 base fee
// formula, given the latest observed header.
func NextBlockInfo(latest *types.Header) BlockInfo {
	return BlockInfo{
		Number:    latest.Number.Uint64() + 1,
		Timestamp: latest.Time + 12,
		BaseFee:   NextBaseFee(latest),
	}
}

// NextBaseFee implements the EIP-1559 base-fee recurrence described in
// spec §4.3: unchanged at the gas target, scaled by the relative distance
// from target divided by 8 otherwise.
func NextBaseFee(latest *types.Header) *big.Int {
	baseFee := latest.BaseFee
	if baseFee == nil {
		return big.NewInt(0)
	}

	gasTarget := latest.GasLimit / 2
	if gasTarget == 0 {
		return new(big.Int).Set(baseFee)
	}

	if latest.GasUsed == gasTarget {
		return new(big.Int).Set(baseFee)
	}

	var delta uint64
	over := latest.GasUsed > gasTarget
	if over {
		delta = latest.GasUsed - gasTarget
	} else {
		delta = gasTarget - latest.GasUsed
	}

	adj := new(big.Int).Mul(baseFee, new(big.Int).SetUint64(delta))
	adj.Div(adj, new(big.Int).SetUint64(gasTarget))
	adj.Div(adj, big.NewInt(8))

	next := new(big.Int).Set(baseFee)
	if over {
		next.Add(next, adj)
	} else {
		next.Sub(next, adj)
		if next.Sign() < 0 {
			next.SetInt64(0)
		}
	}
	return next
}

// SnipeTx is the per-position lifecycle record described in spec §3. Its
// identity is Pool.Token1. Only one of IsPending/RetryPending may be true
// at any instant, and GotInitialOut is latch-only (false -> true, then
// never reset except on eviction).
type SnipeTx struct {
	Pool                    Pool
	AmountIn                *uint256.Int // quote (WETH) spent
	ExpectedAmountOfTokens  *uint256.Int
	TargetAmountWeth        *uint256.Int
	GasUsed                 uint64
	GasCost                 *uint256.Int
	BlockBought             uint64
	SnipeRetries            uint8
	AttemptsToSell          uint8
	IsPending               bool
	RetryPending            bool
	GotInitialOut           bool
}

// Key returns the identity of this position: the acquired token's address.
func (s SnipeTx) Key() common.Address {
	return s.Pool.Token1
}

// NewSnipeTx builds a fully-populated record after a successful
// tax/transfer check and dispatch-ready simulation.
func NewSnipeTx(pool Pool, amountIn, expectedTokens, targetWeth *uint256.Int, gasUsed uint64, gasCost *uint256.Int, blockBought uint64) SnipeTx {
	return SnipeTx{
		Pool:                   pool,
		AmountIn:               amountIn,
		ExpectedAmountOfTokens: expectedTokens,
		TargetAmountWeth:       targetWeth,
		GasUsed:                gasUsed,
		GasCost:                gasCost,
		BlockBought:            blockBought,
	}
}

// StubSnipeTx builds the placeholder record pushed to the RetryOracle when
// the initial tax check fails: zeroed counters, placeholder gas, per
// spec §4.7 step 3.
func StubSnipeTx(pool Pool, targetWeth *uint256.Int, blockBought uint64) SnipeTx {
	return SnipeTx{
		Pool:                   pool,
		AmountIn:               uint256.NewInt(0),
		ExpectedAmountOfTokens: uint256.NewInt(0),
		TargetAmountWeth:       targetWeth,
		GasCost:                uint256.NewInt(0),
		BlockBought:            blockBought,
	}
}

// TxData is the ephemeral, dispatch-ready artifact produced by
// generate_tx_data. It is never retained past a single dispatch attempt.
type TxData struct {
	CallData          []byte
	AccessList        types.AccessList
	GasUsed           uint64
	ExpectedAmount    *uint256.Int // minimum-received bound
	PendingTx         *types.Transaction // nil when Tag == TagSolo
	FrontrunOrBackrun FrontrunTag
}
