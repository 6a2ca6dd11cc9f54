package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/position"
)

// RunForkDbOracle implements C9: on every new block it builds a fresh
// ForkFactory pinned to that block number and installs it on bot, so every
// simulation started after this point reads from up-to-date chain state
// (spec §4.1, §4.3).
func RunForkDbOracle(ctx context.Context, bot *Bot) {
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
				log.Error("oracle: forkdb feed subscription error", "err", err)
			}
			return
		case b := <-blocks:
			client := bot.Client()
			if client == nil {
				continue
			}
			factory := forkdb.NewForkFactory(client, new(big.Int).SetUint64(b.Number))
			bot.SetForkFactory(factory)
		}
	}
}
