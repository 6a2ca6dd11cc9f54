package sniper

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/evmrunner"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
	"github.com/oraclemesh/sniper/internal/sniperabi"
	"golang.org/x/sync/semaphore"
)

// retryOverrunBps is the 120% ceiling spec §4.7 step 2 uses to detect that
// someone else filled the pool out from under a queued retry.
const retryOverrunBps = 12000

// RetryDeps extends Deps with the parallelism bound the RetrySniper needs
// for its per-block fan-out (spec §9 "one task per block per position,
// bounded with a semaphore").
type RetryDeps struct {
	Deps
	MaxConcurrent  int64
	MinerTipToSell *big.Int
}

// RetrySniper implements C11: on every new block it snapshots RetryOracle,
// skips entries that are already pending, drops entries that are exhausted
// or that the market has moved past, and re-attempts the rest concurrently up to
// MaxConcurrent at a time.
type RetrySniper struct {
	bot        *oracle.Bot
	deps       RetryDeps
	maxRetries uint8
	sem        *semaphore.Weighted
}

func NewRetrySniper(bot *oracle.Bot, deps RetryDeps, maxRetries uint8) *RetrySniper {
	concurrency := deps.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 8
	}
	return &RetrySniper{
		bot:        bot,
		deps:       deps,
		maxRetries: maxRetries,
		sem:        semaphore.NewWeighted(concurrency),
	}
}

// Run fires once per new block until ctx is cancelled.
func (r *RetrySniper) Run(ctx context.Context) {
	blocks := make(chan position.BlockInfo, 8)
	sub := r.bot.SubscribeNewBlocks(blocks)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("retrysniper: block feed subscription error", "err", err)
			}
			return
		case <-blocks:
			r.runOnce(ctx)
		}
	}
}

func (r *RetrySniper) runOnce(ctx context.Context) {
	entries := r.bot.RetryTxs()
	factory := r.bot.ForkFactory()
	if factory == nil {
		return
	}
	_, next := r.bot.BlockInfo()

	for _, tx := range entries {
		tx := tx
		if tx.RetryPending {
			continue
		}
		if tx.SnipeRetries >= r.maxRetries {
			r.bot.RemoveRetryTx(tx.Key())
			continue
		}
		if r.reserveOverrun(ctx, factory, tx, next) {
			r.bot.RemoveRetryTx(tx.Key())
			continue
		}

		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		r.bot.MutateRetryTx(tx.Key(), func(s position.SnipeTx) position.SnipeTx {
			s.RetryPending = true
			return s
		})

		go func() {
			defer r.sem.Release(1)
			r.attempt(ctx, tx, factory, next)
		}()
	}
}

// reserveOverrun approximates the pool's current WETH reserve as
// WETH.balanceOf(pool) and reports whether it exceeds 120% of the
// recorded snapshot — evidence someone else already filled the pool.
func (r *RetrySniper) reserveOverrun(ctx context.Context, factory *forkdb.ForkFactory, tx position.SnipeTx, block position.BlockInfo) bool {
	if tx.Pool.WethLiquidity == nil || tx.Pool.WethLiquidity.IsZero() {
		return false
	}
	sandbox := factory.NewSandbox(ctx)
	data, err := sniperabi.Pair.Pack("balanceOf", tx.Pool.Address)
	if err != nil {
		return false
	}
	result := evmrunner.SimCall(sandbox, block, r.deps.Pipeline.ChainConfig, r.deps.Pipeline.Caller, tx.Pool.Token0, data, nil)
	if result.Err != nil || len(result.ReturnData) < 32 {
		return false
	}
	current, overflow := uint256.FromBig(new(big.Int).SetBytes(result.ReturnData))
	if overflow {
		return false
	}
	ceiling := new(uint256.Int).Mul(tx.Pool.WethLiquidity, uint256.NewInt(retryOverrunBps))
	ceiling.Div(ceiling, uint256.NewInt(10000))
	return current.Gt(ceiling)
}

func (r *RetrySniper) attempt(ctx context.Context, tx position.SnipeTx, factory *forkdb.ForkFactory, block position.BlockInfo) {
	clear := func(s position.SnipeTx) position.SnipeTx {
		s.RetryPending = false
		s.SnipeRetries++
		return s
	}

	pc := simulate.PendingCtx{}

	amountIn, err := r.deps.Pipeline.FindAmountIn(ctx, factory, tx.Pool, block, pc)
	if err != nil || amountIn.IsZero() {
		r.bot.MutateRetryTx(tx.Key(), clear)
		return
	}

	passed, err := r.deps.Pipeline.TaxCheck(ctx, factory, tx.Pool, amountIn, block, pc)
	if err != nil || !passed {
		r.bot.MutateRetryTx(tx.Key(), clear)
		return
	}

	txData, received, err := r.deps.Pipeline.GenerateTxData(ctx, factory, tx.Pool, amountIn, block, simulate.GenerateOptions{
		DoBuy:   true,
		Tag:     position.TagSolo,
		Pending: pc,
	})
	if err != nil {
		r.bot.MutateRetryTx(tx.Key(), clear)
		return
	}

	nonce := r.bot.GetNonce()
	tip := r.deps.MinerTipToSell
	if tip == nil {
		tip = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(block.BaseFee, tip)
	agentTx, err := r.deps.Dispatcher.BuildTx(r.deps.ChainID, nonce, r.deps.Pipeline.Contract, r.deps.GasLimit, tip, feeCap, txData)
	if err != nil {
		log.Error("retrysniper: failed to build agent tx", "pool", tx.Pool.Address, "err", err)
		r.bot.MutateRetryTx(tx.Key(), clear)
		return
	}

	included, err := r.deps.Dispatcher.Dispatch(ctx, agentTx, nil, position.TagSolo, block.Number, block.Timestamp)
	if err != nil {
		log.Warn("retrysniper: dispatch errored", "pool", tx.Pool.Address, "err", err)
	}
	if !included {
		r.bot.MutateRetryTx(tx.Key(), clear)
		return
	}

	snipeTx := position.NewSnipeTx(tx.Pool, amountIn, received, r.deps.TargetAmountToSell, txData.GasUsed, uint256.NewInt(0), block.Number)
	r.bot.PromoteFromRetry(snipeTx)
	log.Info("retrysniper: retry bundle included, promoted to held", "pool", tx.Pool.Address)
}
