package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/position"
)

// RunNonceOracle implements C8: on every new block it re-reads the caller's
// on-chain transaction count and resyncs the Bot's local nonce counter,
// correcting any drift introduced by a dropped or reverted dispatch (spec
// §4.3 "Nonce discipline").
func RunNonceOracle(ctx context.Context, bot *Bot, caller common.Address) {
	blocks := make(chan position.BlockInfo, 8)
	sub := bot.SubscribeNewBlocks(blocks)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("oracle: nonce feed subscription error", "err", err)
			}
			return
		case <-blocks:
			client := bot.Client()
			if client == nil {
				continue
			}
			n, err := client.TransactionCount(ctx, caller, nil)
			if err != nil {
				log.Warn("oracle: nonce resync failed", "err", err)
				continue
			}
			bot.ResyncNonce(n)
		}
	}
}
