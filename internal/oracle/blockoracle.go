package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/position"
)

// RunBlockOracle implements C4: it subscribes to new heads, recomputes the
// latest/next BlockInfo pair on every header, installs it on bot, and
// broadcasts it to subscribers (spec §4.3). dial is passed through to
// chain.RunWithReconnect so a dropped subscription rebuilds the client.
func RunBlockOracle(ctx context.Context, bot *Bot, dial chain.Dialer) {
	chain.RunWithReconnect(ctx, "block-oracle", dial, func(ctx context.Context, c chain.Client) error {
		headers := make(chan *types.Header, 16)
		sub, err := c.SubscribeNewBlocks(ctx, headers)
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
			case h := <-headers:
				latest := position.BlockInfo{
					Number:    h.Number.Uint64(),
					Timestamp: h.Time,
					BaseFee:   h.BaseFee,
				}
				next := position.NextBlockInfo(h)
				bot.SetBlockInfo(latest, next)
				bot.publishNewBlock(latest)
				log.Debug("oracle: new block", "number", latest.Number, "baseFee", latest.BaseFee)
			}
		}
	})
}
