package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oraclemesh/sniper/internal/chain"
)

// RunMempoolStream implements C5: it subscribes to the full pending
// transaction feed and republishes every tx that survives the spec §4.4
// filter — not originated by the agent or admin address, and not
// destined for the zero address (a common placeholder the original feed
// otherwise forwards verbatim).
func RunMempoolStream(ctx context.Context, bot *Bot, dial chain.Dialer, caller, admin common.Address) {
	chain.RunWithReconnect(ctx, "mempool-stream", dial, func(ctx context.Context, c chain.Client) error {
		txs := make(chan *types.Transaction, 256)
		sub, err := c.SubscribePendingTransactions(ctx, txs)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-bot.Done():
				return nil
			case err := <-sub.Err():
				return err
			case tx := <-txs:
				if tx == nil {
					continue
				}
				if !shouldForward(tx, caller, admin) {
					continue
				}
				bot.publishPendingTx(tx)
			}
		}
	})
}

func shouldForward(tx *types.Transaction, caller, admin common.Address) bool {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil && (from == caller || from == admin) {
		return false
	}
	to := tx.To()
	if to == nil {
		return true
	}
	if *to == (common.Address{}) {
		return false
	}
	return true
}
