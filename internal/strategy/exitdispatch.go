package strategy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/bundle"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/config"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
)

// Deps bundles everything the exit paths (SellOracle, AntiRug,
// AntiHoneypot) need beyond the Bot handle.
type Deps struct {
	Pipeline   *simulate.Pipeline
	Dispatcher *bundle.Dispatcher
	ChainID    *big.Int
	GasLimit   uint64
	Cfg        *config.Config
}

// dispatchTxData is the common tail of process_tx (spec §4.8): refuse if
// the simulated gas cost exceeds the expected proceeds, otherwise sign and
// dispatch, reporting whether the tx was included. It does not touch the
// oracles; removing the position on inclusion is left to the caller.
func dispatchTxData(ctx context.Context, bot *oracle.Bot, deps Deps, txData position.TxData, tag position.FrontrunTag, pendingTx *types.Transaction, block position.BlockInfo, tip *big.Int) (bool, error) {
	feeCap := new(big.Int).Add(block.BaseFee, tip)
	gasCost, overflow := uint256.FromBig(new(big.Int).Mul(big.NewInt(int64(txData.GasUsed)), feeCap))
	if overflow {
		return false, chainerr.New(chainerr.KindInvariantBreach, "process_tx: gas cost overflowed uint256", nil)
	}
	if txData.ExpectedAmount == nil || gasCost.Gt(txData.ExpectedAmount) {
		return false, chainerr.New(chainerr.KindInvariantBreach, "process_tx: refused, gas cost exceeds expected proceeds", nil)
	}

	nonce := bot.GetNonce()
	agentTx, err := deps.Dispatcher.BuildTx(deps.ChainID, nonce, deps.Pipeline.Contract, deps.GasLimit, tip, feeCap, txData)
	if err != nil {
		return false, err
	}

	included, err := deps.Dispatcher.DispatchOrFallback(ctx, agentTx, pendingTx, tag, block.Number, block.Timestamp)
	if err != nil {
		log.Warn("strategy: exit dispatch errored", "err", err)
	}
	return included, err
}

// exitFullPosition sells the whole remaining token balance at market and,
// on inclusion, removes the position from both oracles. Used by the
// time-pressure ladder and the primary take-profit trigger, neither of
// which co-bundles a pending tx.
func exitFullPosition(ctx context.Context, bot *oracle.Bot, deps Deps, tx position.SnipeTx, factory *forkdb.ForkFactory, block position.BlockInfo) bool {
	balance, err := deps.Pipeline.LiveTokenBalance(ctx, factory, tx.Pool, block)
	if err != nil {
		log.Debug("strategy: exit live_token_balance failed", "pool", tx.Pool.Address, "err", err)
		return false
	}

	txData, _, err := deps.Pipeline.GenerateTxData(ctx, factory, tx.Pool, balance, block, simulate.GenerateOptions{
		DoBuy: false,
		Tag:   position.TagSolo,
	})
	if err != nil {
		log.Debug("strategy: exit generate_tx_data failed", "pool", tx.Pool.Address, "err", err)
		return false
	}

	tip := deps.Cfg.MinerTipToSell.ToBig()
	included, err := dispatchTxData(ctx, bot, deps, txData, position.TagSolo, nil, block, tip)
	if err != nil {
		log.Debug("strategy: exit dispatch refused or failed", "pool", tx.Pool.Address, "err", err)
		return false
	}
	if included {
		bot.RemoveHeldPosition(tx.Key())
		log.Info("strategy: position exited", "pool", tx.Pool.Address)
	}
	return included
}
