// Package sniper implements the Sniper (C10) and RetrySniper (C11): the
// front door that turns a freshly discovered pool into a held position,
// and the bounded-retry loop that re-attempts snipes the first pass missed.
package sniper

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/bundle"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
)

// Deps bundles everything Sniper and RetrySniper need beyond the Bot
// handle: the simulation pipeline, the dispatcher, and the miner-tip and
// chain-ID constants used to build transactions.
type Deps struct {
	Pipeline           *simulate.Pipeline
	Dispatcher         *bundle.Dispatcher
	ChainID            *big.Int
	GasLimit           uint64
	MinerTipToSnipe    *big.Int
	TargetAmountToSell *uint256.Int
}

// Sniper consumes NewPairWithTx events from the Bot handle sequentially —
// spec §4.7 requires only one in-flight evaluation at a time, since the
// evaluation itself fans out into its own simulations.
type Sniper struct {
	bot  *oracle.Bot
	deps Deps
}

func New(bot *oracle.Bot, deps Deps) *Sniper {
	return &Sniper{bot: bot, deps: deps}
}

// Run subscribes to new pairs and processes each one in turn until ctx is
// cancelled or the bot shuts down.
func (s *Sniper) Run(ctx context.Context) {
	pairs := make(chan oracle.NewPairWithTx, 64)
	sub := s.bot.SubscribeNewPairs(pairs)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("sniper: new-pair feed subscription error", "err", err)
			}
			return
		case evt := <-pairs:
			s.handlePair(ctx, evt)
		}
	}
}

func (s *Sniper) handlePair(ctx context.Context, evt oracle.NewPairWithTx) {
	factory := s.bot.ForkFactory()
	if factory == nil {
		return
	}
	_, next := s.bot.BlockInfo()

	pendingSender, err := types.Sender(types.LatestSignerForChainID(evt.PendingTx.ChainId()), evt.PendingTx)
	if err != nil {
		log.Debug("sniper: could not recover pending tx sender, dropping", "pool", evt.Pool.Address, "err", err)
		return
	}
	pc := simulate.PendingCtx{Tx: evt.PendingTx, Sender: pendingSender}

	if code := s.bot.Client(); code != nil {
		if c, err := code.CodeAt(ctx, evt.Pool.Token1, nil); err == nil && len(c) > 0 {
			if !simulate.StaticSafetyCheck(c) {
				log.Debug("sniper: static safety check rejected token", "token", evt.Pool.Token1)
				return
			}
		}
	}

	amountIn, err := s.deps.Pipeline.FindAmountIn(ctx, factory, evt.Pool, next, pc)
	if err != nil {
		log.Warn("sniper: find_amount_in failed", "pool", evt.Pool.Address, "err", err)
		return
	}
	if amountIn.IsZero() {
		log.Debug("sniper: find_amount_in found no viable buy size, dropping", "pool", evt.Pool.Address)
		return
	}

	passed, err := s.deps.Pipeline.TaxCheck(ctx, factory, evt.Pool, amountIn, next, pc)
	if err != nil {
		log.Warn("sniper: tax_check errored", "pool", evt.Pool.Address, "err", err)
		return
	}
	if !passed {
		stub := position.StubSnipeTx(evt.Pool, uint256.NewInt(0), next.Number)
		s.bot.AddRetryTx(stub)
		log.Debug("sniper: tax_check failed, queued for retry", "pool", evt.Pool.Address)
		return
	}

	txData, received, err := s.deps.Pipeline.GenerateTxData(ctx, factory, evt.Pool, amountIn, next, simulate.GenerateOptions{
		DoBuy:   true,
		Tag:     position.TagBackrun,
		Pending: pc,
	})
	if err != nil {
		log.Warn("sniper: generate_tx_data failed", "pool", evt.Pool.Address, "err", err)
		return
	}

	snipeTx := position.NewSnipeTx(evt.Pool, amountIn, received, s.deps.TargetAmountToSell, txData.GasUsed, uint256.NewInt(0), next.Number)

	// Armed before dispatch: a rug between dispatch and response must find
	// the watchers already live (spec §4.7 step 5).
	s.bot.AddHeldPosition(snipeTx)

	nonce := s.bot.GetNonce()
	tip := s.deps.MinerTipToSnipe
	feeCap := new(big.Int).Add(next.BaseFee, tip)
	agentTx, err := s.deps.Dispatcher.BuildTx(s.deps.ChainID, nonce, s.deps.Pipeline.Contract, s.deps.GasLimit, tip, feeCap, txData)
	if err != nil {
		log.Error("sniper: failed to build agent tx", "pool", evt.Pool.Address, "err", err)
		s.bot.RemoveHeldPosition(snipeTx.Key())
		return
	}

	included, err := s.deps.Dispatcher.Dispatch(ctx, agentTx, evt.PendingTx, position.TagBackrun, next.Number, next.Timestamp)
	if err != nil {
		log.Warn("sniper: dispatch errored", "pool", evt.Pool.Address, "err", err)
	}
	if included {
		log.Info("sniper: snipe bundle included", "pool", evt.Pool.Address, "amountIn", amountIn)
		return
	}

	s.bot.RemoveHeldPosition(snipeTx.Key())
	s.bot.AddRetryTx(snipeTx)
	log.Debug("sniper: bundle not included, queued for retry", "pool", evt.Pool.Address)
}
