package strategy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
)

// bpsDenominator expresses drop thresholds in basis points.
const bpsDenominator = 10000

// minerTipFloorMultiplierTenths is the "MINER_TIP_TO_SELL × 1.2" floor
// spec §4.9 step 1 insists on, expressed in tenths to stay integer-exact.
const minerTipFloorMultiplierTenths = 12

// AntiRug implements C13: watches every surviving pending tx, and for each
// held pool it touches, compares pre- and post-commit exit value. A
// collapse past the configured threshold is treated as a rug and answered
// with a front-run exit.
type AntiRug struct {
	bot  *oracle.Bot
	deps Deps
}

func NewAntiRug(bot *oracle.Bot, deps Deps) *AntiRug {
	return &AntiRug{bot: bot, deps: deps}
}

func (a *AntiRug) Run(ctx context.Context) {
	pending := make(chan *types.Transaction, 256)
	sub := a.bot.SubscribePendingTxs(pending)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("antirug: pending tx feed subscription error", "err", err)
			}
			return
		case tx := <-pending:
			a.handle(ctx, tx)
		}
	}
}

func (a *AntiRug) handle(ctx context.Context, tx *types.Transaction) {
	factory := a.bot.ForkFactory()
	if factory == nil {
		return
	}
	held := a.bot.AntiRugTxs()
	if len(held) == 0 {
		return
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return
	}

	pools := make([]position.Pool, 0, len(held))
	for _, h := range held {
		pools = append(pools, h.Pool)
	}

	_, block := a.bot.BlockInfo()
	touched, err := a.deps.Pipeline.GetTouchedPools(ctx, factory, block, tx, sender, pools)
	if err != nil || len(touched) == 0 {
		return
	}

	for _, pool := range touched {
		snipeTx, ok := findByPool(held, pool.Address)
		if !ok {
			continue
		}
		checkAndRespond(ctx, a.bot, a.deps, factory, block, snipeTx, tx, sender, a.deps.Cfg.AntiRugDropBps, "antirug")
	}
}

func findByPool(txs []position.SnipeTx, addr common.Address) (position.SnipeTx, bool) {
	for _, tx := range txs {
		if tx.Pool.Address == addr {
			return tx, true
		}
	}
	return position.SnipeTx{}, false
}

// checkAndRespond runs simulate_sell before and after committing the
// candidate pending tx and, if the post-commit value collapses past
// dropBps, dispatches a front-run exit.
func checkAndRespond(ctx context.Context, bot *oracle.Bot, deps Deps, factory *forkdb.ForkFactory, block position.BlockInfo, tx position.SnipeTx, pendingTx *types.Transaction, sender common.Address, dropBps uint64, watcher string) {
	before, err := deps.Pipeline.SimulateSell(ctx, factory, tx.Pool, block, simulate.PendingCtx{})
	if err != nil || before.IsZero() {
		return
	}

	after, err := deps.Pipeline.SimulateSell(ctx, factory, tx.Pool, block, simulate.PendingCtx{Tx: pendingTx, Sender: sender})
	if err != nil {
		return
	}

	floor := mulDivUint256(before, dropBps, bpsDenominator)
	if !after.Lt(floor) {
		return
	}

	log.Warn(watcher+": liquidity collapse detected, front-running", "pool", tx.Pool.Address, "before", before, "after", after)

	tip := maxBig(calculateMinerTip(pendingTx.GasTipCap()), mulRat(deps.Cfg.MinerTipToSell.ToBig(), minerTipFloorMultiplierTenths, 10))

	balance, err := deps.Pipeline.LiveTokenBalance(ctx, factory, tx.Pool, block)
	if err != nil {
		log.Debug(watcher+": live_token_balance failed", "pool", tx.Pool.Address, "err", err)
		return
	}

	txData, _, err := deps.Pipeline.GenerateTxData(ctx, factory, tx.Pool, balance, block, simulate.GenerateOptions{
		DoBuy:   false,
		Tag:     position.TagFrontrun,
		Pending: simulate.PendingCtx{Tx: pendingTx, Sender: sender},
	})
	if err != nil {
		log.Debug(watcher+": generate_tx_data failed", "pool", tx.Pool.Address, "err", err)
		return
	}

	included, err := dispatchTxData(ctx, bot, deps, txData, position.TagFrontrun, pendingTx, block, tip)
	if err != nil {
		log.Debug(watcher+": exit dispatch refused or failed", "pool", tx.Pool.Address, "err", err)
		return
	}
	if included {
		bot.RemoveHeldPosition(tx.Key())
		log.Info(watcher+": front-run exit included", "pool", tx.Pool.Address)
	}
}
