package strategy

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
	"golang.org/x/sync/semaphore"
)

// taxedOutBps is the "< 9% of amount_in" eviction threshold from spec
// §4.8 step 3.
const taxedOutBps = 900

// SellOracle implements C12: on every new block it revalues every held
// position concurrently, bounded by a semaphore sized to the pooled
// simulation worker count (spec §9).
type SellOracle struct {
	bot  *oracle.Bot
	deps Deps
	sem  *semaphore.Weighted
}

func NewSellOracle(bot *oracle.Bot, deps Deps, maxConcurrent int64) *SellOracle {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &SellOracle{bot: bot, deps: deps, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (s *SellOracle) Run(ctx context.Context) {
	blocks := make(chan position.BlockInfo, 8)
	sub := s.bot.SubscribeNewBlocks(blocks)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("selloracle: block feed subscription error", "err", err)
			}
			return
		case block := <-blocks:
			s.runOnce(ctx, block)
		}
	}
}

func (s *SellOracle) runOnce(ctx context.Context, block position.BlockInfo) {
	factory := s.bot.ForkFactory()
	if factory == nil {
		return
	}

	for _, tx := range s.bot.SellTxs() {
		tx := tx
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer s.sem.Release(1)
			s.evaluate(ctx, tx, factory, block)
		}()
	}
}

func (s *SellOracle) evaluate(ctx context.Context, tx position.SnipeTx, factory *forkdb.ForkFactory, block position.BlockInfo) {
	cfg := s.deps.Cfg

	if tx.AttemptsToSell >= cfg.MaxSellAttempts {
		s.bot.RemoveHeldPosition(tx.Key())
		log.Debug("selloracle: attempts exhausted, abandoning position", "pool", tx.Pool.Address)
		return
	}

	exitValue, err := s.deps.Pipeline.SimulateSell(ctx, factory, tx.Pool, block, simulate.PendingCtx{})
	if err != nil {
		s.bot.MutateSellTx(tx.Key(), bumpAttempts)
		log.Debug("selloracle: simulate_sell errored", "pool", tx.Pool.Address, "err", err)
		return
	}

	taxedOutFloor := mulDivUint256(tx.AmountIn, taxedOutBps, 10000)
	if exitValue.Lt(taxedOutFloor) {
		s.bot.RemoveHeldPosition(tx.Key())
		log.Info("selloracle: taxed out, evicting", "pool", tx.Pool.Address, "exitValue", exitValue)
		return
	}

	blocksSinceBuy := block.Number - tx.BlockBought
	for _, rung := range cfg.Ladder {
		if blocksSinceBuy != rung.BlocksSinceBuy {
			continue
		}
		required := mulDivUint256(tx.AmountIn, rung.RequiredMultipleTenths, 10)
		if exitValue.Lt(required) {
			log.Info("selloracle: time-pressure ladder missed, forcing exit", "pool", tx.Pool.Address, "blocksSinceBuy", blocksSinceBuy)
			exitFullPosition(ctx, s.bot, s.deps, tx, factory, block)
			return
		}
	}

	if !tx.GotInitialOut && !tx.RetryPending {
		recoveryTarget := new(uint256.Int).Add(tx.GasCost, tx.AmountIn)
		threshold := new(uint256.Int).Mul(recoveryTarget, uint256.NewInt(cfg.InitialProfitTake))
		if exitValue.Gte(threshold) && exitValue.Lt(tx.TargetAmountWeth) {
			if s.takeInitialProfit(ctx, tx, factory, block, recoveryTarget) {
				return
			}
		}
	}

	if exitValue.Gte(tx.TargetAmountWeth) {
		exitFullPosition(ctx, s.bot, s.deps, tx, factory, block)
	}
}

// takeInitialProfit dispatches a sell sized to recover exactly
// gas_cost + amount_in, latching got_initial_out on inclusion (spec §4.8
// step 5 — a one-time event per position).
func (s *SellOracle) takeInitialProfit(ctx context.Context, tx position.SnipeTx, factory *forkdb.ForkFactory, block position.BlockInfo, recoveryTarget *uint256.Int) bool {
	txData, err := s.deps.Pipeline.ProfitTaker(ctx, factory, tx.Pool, block, recoveryTarget)
	if err != nil {
		log.Debug("selloracle: initial profit_taker failed", "pool", tx.Pool.Address, "err", err)
		return false
	}

	tip := s.deps.Cfg.MinerTipToSell.ToBig()
	included, err := dispatchTxData(ctx, s.bot, s.deps, txData, position.TagSolo, nil, block, tip)
	if err != nil {
		log.Debug("selloracle: initial profit dispatch refused", "pool", tx.Pool.Address, "err", err)
		return false
	}
	if included {
		s.bot.MutateSellTx(tx.Key(), func(st position.SnipeTx) position.SnipeTx {
			st.GotInitialOut = true
			return st
		})
		log.Info("selloracle: initial profit taken", "pool", tx.Pool.Address)
	}
	return included
}

func bumpAttempts(s position.SnipeTx) position.SnipeTx {
	s.AttemptsToSell++
	return s
}

func mulDivUint256(x *uint256.Int, num, den uint64) *uint256.Int {
	out := new(uint256.Int).Mul(x, uint256.NewInt(num))
	return out.Div(out, uint256.NewInt(den))
}
