package strategy

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/oracle"
)

// AntiHoneypot implements C14: same before/after exit-value comparison as
// AntiRug, but triggered on pending txs that call the held token contract
// directly — typically an owner tax-flip or a transfer-disable switch.
type AntiHoneypot struct {
	bot  *oracle.Bot
	deps Deps
}

func NewAntiHoneypot(bot *oracle.Bot, deps Deps) *AntiHoneypot {
	return &AntiHoneypot{bot: bot, deps: deps}
}

func (h *AntiHoneypot) Run(ctx context.Context) {
	pending := make(chan *types.Transaction, 256)
	sub := h.bot.SubscribePendingTxs(pending)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("antihoneypot: pending tx feed subscription error", "err", err)
			}
			return
		case tx := <-pending:
			h.handle(ctx, tx)
		}
	}
}

func (h *AntiHoneypot) handle(ctx context.Context, tx *types.Transaction) {
	to := tx.To()
	if to == nil {
		return
	}

	factory := h.bot.ForkFactory()
	if factory == nil {
		return
	}

	held := h.bot.AntiRugTxs()
	match := -1
	for i, candidate := range held {
		if candidate.Pool.Token1 == *to {
			match = i
			break
		}
	}
	if match < 0 {
		return
	}
	snipeTx := held[match]

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return
	}

	_, block := h.bot.BlockInfo()
	checkAndRespond(ctx, h.bot, h.deps, factory, block, snipeTx, tx, sender, h.deps.Cfg.AntiHoneypotDropBps, "antihoneypot")
}
