// Package evmrunner configures and drives a core/vm.EVM instance over a
// caller-supplied ForkDB, per spec §4.2. The runner itself holds no state:
// every call takes the EVM+ForkDB it should operate on.
package evmrunner

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/position"
)

// CallGasLimit is the fixed per-call gas budget for every simulation
// (spec §4.2: "gas limit (1M per call)").
const CallGasLimit = 1_000_000

// CallResult is the outcome of a plain sim_call.
type CallResult struct {
	Reverted bool
	ReturnData []byte
	Logs     []*types.Log
	GasUsed  uint64
	Err      error
}

// AccessListResult additionally carries the access list discovered by the
// tracing pass.
type AccessListResult struct {
	CallResult
	AccessList types.AccessList
}

// newEVM builds an EVM configured per spec §4.2: caller/target/data/value
// come from the call itself, block fields from block, and balance/gas/
// base-fee checks are disabled for simulation friendliness.
func newEVM(db *forkdb.ForkDB, block position.BlockInfo, chainCfg *params.ChainConfig, tracer *vm.EVMLogger) *vm.EVM {
	blockCtx := vm.BlockContext{
		CanTransfer: func(vm.StateDB, common.Address, *big.Int) bool { return true },
		Transfer:    func(vm.StateDB, common.Address, common.Address, *big.Int) {},
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    common.Address{},
		BlockNumber: new(big.Int).SetUint64(block.Number),
		Time:        block.Timestamp,
		Difficulty:  big.NewInt(0),
		BaseFee:     block.BaseFee,
		GasLimit:    30_000_000,
	}

	cfg := vm.Config{
		NoBaseFee: true,
	}
	if tracer != nil {
		cfg.Tracer = *tracer
	}

	return vm.NewEVM(blockCtx, vm.TxContext{}, db, chainCfg, cfg)
}

// SimCall runs a single call with no access list installed. Its state
// changes stay in db: the runner itself never snapshots, so a caller that
// wants them discarded takes a snapshot before the call and reverts after.
// The returned Logs are only the logs emitted by this call, not those of
// earlier calls against the same db.
func SimCall(db *forkdb.ForkDB, block position.BlockInfo, chainCfg *params.ChainConfig, caller, to common.Address, data []byte, value *big.Int) CallResult {
	evm := newEVM(db, block, chainCfg, nil)

	if value == nil {
		value = big.NewInt(0)
	}

	logStart := len(db.Logs())
	ret, gasLeft, err := evm.Call(vm.AccountRef(caller), to, data, CallGasLimit, toUint256(value))
	result := CallResult{
		ReturnData: ret,
		GasUsed:    CallGasLimit - gasLeft,
		Logs:       db.Logs()[logStart:],
	}
	if err != nil {
		result.Reverted = errors.Is(err, vm.ErrExecutionReverted)
		result.Err = err
	}
	return result
}

// SimCallWithAccessList first runs a tracing pass with an access-list
// inspector that records every account/slot touched other than the caller
// and target, then replays the call with that access list installed and
// returns the gas/logs measured under it (spec §4.2).
func SimCallWithAccessList(db *forkdb.ForkDB, block position.BlockInfo, chainCfg *params.ChainConfig, caller, to common.Address, data []byte, value *big.Int) AccessListResult {
	if value == nil {
		value = big.NewInt(0)
	}

	tracer := logger.NewAccessListTracer(nil, caller, to, nil)
	var loggerIface vm.EVMLogger = tracer
	evm := newEVM(db, block, chainCfg, &loggerIface)

	snap := db.Snapshot()
	_, _, _ = evm.Call(vm.AccountRef(caller), to, data, CallGasLimit, toUint256(value))
	db.RevertToSnapshot(snap)

	accessList := tracer.AccessList()

	db.Prepare(forkdb.Rules{IsBerlin: true}, caller, common.Address{}, &to, nil, accessList)
	logStart := len(db.Logs())
	ret, gasLeft, err := evm.Call(vm.AccountRef(caller), to, data, CallGasLimit, toUint256(value))

	result := AccessListResult{
		CallResult: CallResult{
			ReturnData: ret,
			GasUsed:    CallGasLimit - gasLeft,
			Logs:       db.Logs()[logStart:],
		},
		AccessList: accessList,
	}
	if err != nil {
		result.Reverted = errors.Is(err, vm.ErrExecutionReverted)
		result.Err = err
	}
	return result
}

// CommitPendingTx applies an external pending transaction's state effects
// to db before the agent's own call runs. Fails (via CallResult.Err) if
// the pending tx reverts — per spec §4.2, a reverting pending tx means the
// simulation it was meant to seed is meaningless.
func CommitPendingTx(db *forkdb.ForkDB, block position.BlockInfo, chainCfg *params.ChainConfig, tx *types.Transaction, sender common.Address) CallResult {
	var to common.Address
	if tx.To() != nil {
		to = *tx.To()
	}
	result := SimCall(db, block, chainCfg, sender, to, tx.Data(), tx.Value())
	if result.Reverted {
		result.Err = errors.New("pending tx reverted during commit")
	}
	return result
}

func toUint256(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return uint256.NewInt(0)
	}
	return u
}
