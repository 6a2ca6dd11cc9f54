package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/evmrunner"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/metrics"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/sniperabi"
)

// PairOracleConfig carries the subset of config the pair oracle needs to
// classify a discovered pool, passed in rather than importing the config
// package directly so this package stays testable with plain values.
type PairOracleConfig struct {
	WETH           common.Address
	ChainConfig    *params.ChainConfig
	MinWethReserve *uint256.Int
	MaxWethReserve *uint256.Int
}

// RunPairOracle implements C6: every surviving pending tx — after the
// ERC-20 transfer/approve selector pre-filter spec §4.5 requires — is
// replayed against a throwaway sandbox cloned from the current fork. If
// the replay emits a PairCreated log, the new pool's reserves are read
// back out of the matching Sync log. Otherwise, if only Mint+Sync fire,
// the Mint amounts are compared against the Sync reserves: a match means
// the pool was just created (this is its first liquidity add), a
// mismatch means the pool pre-existed and is dropped. Either way the
// token order is normalized so Token0 is always WETH, and pools outside
// [MinWethReserve, MaxWethReserve] are dropped before broadcasting.
func RunPairOracle(ctx context.Context, bot *Bot, cfg PairOracleConfig) {
	pending := make(chan *types.Transaction, 256)
	sub := bot.SubscribePendingTxs(pending)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bot.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("oracle: pair feed subscription error", "err", err)
			}
			return
		case tx := <-pending:
			if isErc20TransferOrApprove(tx.Data()) {
				continue
			}
			pool, ok := discoverPair(ctx, bot, cfg, tx)
			if !ok {
				continue
			}
			metrics.PairsDiscovered.Inc()
			bot.publishNewPair(NewPairWithTx{Pool: pool, PendingTx: tx})
		}
	}
}

// isErc20TransferOrApprove reports whether data's selector matches the
// ERC-20 transfer/approve calls spec §4.5 filters out before simulating —
// neither can ever emit a PairCreated/Mint log, so simulating them is
// wasted EVM work.
func isErc20TransferOrApprove(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	return selector == sniperabi.TransferSelector || selector == sniperabi.ApproveSelector
}

func discoverPair(ctx context.Context, bot *Bot, cfg PairOracleConfig, tx *types.Transaction) (position.Pool, bool) {
	sandbox := bot.NewSandbox(ctx)
	if sandbox == nil {
		return position.Pool{}, false
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return position.Pool{}, false
	}

	latest, _ := bot.BlockInfo()

	result := evmrunner.CommitPendingTx(sandbox, latest, cfg.ChainConfig, tx, sender)
	if result.Err != nil {
		return position.Pool{}, false
	}

	var (
		pairAddr         common.Address
		token0, token1   common.Address
		foundPairCreated bool
		mintPool         common.Address
		mintAmount0      *big.Int
		mintAmount1      *big.Int
		foundMint        bool
	)
	for _, l := range result.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case sniperabi.PairCreatedTopic:
			if len(l.Topics) >= 3 {
				token0 = common.BytesToAddress(l.Topics[1].Bytes())
				token1 = common.BytesToAddress(l.Topics[2].Bytes())
				if len(l.Data) >= 32 {
					pairAddr = common.BytesToAddress(l.Data[12:32])
				}
				foundPairCreated = true
			}
		case sniperabi.MintTopic:
			if len(l.Data) >= 64 {
				mintPool = l.Address
				mintAmount0 = new(big.Int).SetBytes(l.Data[0:32])
				mintAmount1 = new(big.Int).SetBytes(l.Data[32:64])
				foundMint = true
			}
		}
	}

	switch {
	case foundPairCreated:
		// token0/token1/pairAddr already populated above.
	case foundMint:
		sync := findSyncLog(result.Logs, mintPool)
		if sync == nil {
			return position.Pool{}, false
		}
		if mintAmount0.Cmp(sync.reserve0) != 0 || mintAmount1.Cmp(sync.reserve1) != 0 {
			// Mint amounts don't match the pool's first Sync: this pool
			// already existed before this tx, not a new discovery.
			return position.Pool{}, false
		}
		pairAddr = mintPool
		t0, t1, err := queryPairTokens(sandbox, cfg.ChainConfig, latest, pairAddr)
		if err != nil {
			log.Debug("oracle: token0/token1 query failed for mint-discovered pair", "pair", pairAddr, "err", err)
			return position.Pool{}, false
		}
		token0, token1 = t0, t1
	default:
		return position.Pool{}, false
	}

	weth, other, ok := normalizeWethPair(cfg.WETH, token0, token1)
	if !ok {
		log.Debug("oracle: pair discovered with neither leg being WETH, skipping", "pair", pairAddr)
		return position.Pool{}, false
	}

	reserve := findWethReserve(result.Logs, pairAddr, weth == token0)
	if reserve == nil {
		reserve = uint256.NewInt(0)
	}

	if cfg.MinWethReserve != nil && reserve.Lt(cfg.MinWethReserve) {
		return position.Pool{}, false
	}
	if cfg.MaxWethReserve != nil && reserve.Gt(cfg.MaxWethReserve) {
		return position.Pool{}, false
	}

	return position.Pool{
		Address:       pairAddr,
		Token0:        weth,
		Token1:        other,
		WethLiquidity: reserve,
	}, true
}

// syncReserves holds one Sync log's decoded reserve pair.
type syncReserves struct {
	reserve0, reserve1 *big.Int
}

// findSyncLog returns the decoded Sync log emitted by pairAddr, or nil if
// none fired.
func findSyncLog(logs []*types.Log, pairAddr common.Address) *syncReserves {
	for _, l := range logs {
		if l.Address != pairAddr {
			continue
		}
		if len(l.Topics) == 0 || l.Topics[0] != sniperabi.SyncTopic {
			continue
		}
		if len(l.Data) < 64 {
			continue
		}
		return &syncReserves{
			reserve0: new(big.Int).SetBytes(l.Data[0:32]),
			reserve1: new(big.Int).SetBytes(l.Data[32:64]),
		}
	}
	return nil
}

// queryPairTokens reads token0()/token1() off a pool contract directly,
// the fallback the Mint+Sync branch needs since a Mint log alone doesn't
// carry the pair's token addresses.
func queryPairTokens(sandbox *forkdb.ForkDB, chainCfg *params.ChainConfig, block position.BlockInfo, pairAddr common.Address) (common.Address, common.Address, error) {
	token0Data, err := sniperabi.Pair.Pack("token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1Data, err := sniperabi.Pair.Pack("token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	r0 := evmrunner.SimCall(sandbox, block, chainCfg, common.Address{}, pairAddr, token0Data, nil)
	if r0.Err != nil || len(r0.ReturnData) < 32 {
		return common.Address{}, common.Address{}, chainerr.New(chainerr.KindSimulationRevert, "queryPairTokens: token0() call failed", r0.Err)
	}
	r1 := evmrunner.SimCall(sandbox, block, chainCfg, common.Address{}, pairAddr, token1Data, nil)
	if r1.Err != nil || len(r1.ReturnData) < 32 {
		return common.Address{}, common.Address{}, chainerr.New(chainerr.KindSimulationRevert, "queryPairTokens: token1() call failed", r1.Err)
	}

	return common.BytesToAddress(r0.ReturnData[12:32]), common.BytesToAddress(r1.ReturnData[12:32]), nil
}

// normalizeWethPair reports which of (token0, token1) is weth and returns
// (weth, otherToken, ok). ok is false if neither leg is weth.
func normalizeWethPair(weth, token0, token1 common.Address) (common.Address, common.Address, bool) {
	switch weth {
	case token0:
		return token0, token1, true
	case token1:
		return token1, token0, true
	default:
		return common.Address{}, common.Address{}, false
	}
}

// findWethReserve scans for a Sync log from pairAddr and returns the WETH
// side of the reserve pair, given whether WETH is reserve0 or reserve1.
func findWethReserve(logs []*types.Log, pairAddr common.Address, wethIsReserve0 bool) *uint256.Int {
	for _, l := range logs {
		if l.Address != pairAddr {
			continue
		}
		if len(l.Topics) == 0 || l.Topics[0] != sniperabi.SyncTopic {
			continue
		}
		if len(l.Data) < 64 {
			continue
		}
		reserve0 := new(big.Int).SetBytes(l.Data[0:32])
		reserve1 := new(big.Int).SetBytes(l.Data[32:64])
		var chosen *big.Int
		if wethIsReserve0 {
			chosen = reserve0
		} else {
			chosen = reserve1
		}
		v, overflow := uint256.FromBig(chosen)
		if overflow {
			return uint256.NewInt(0)
		}
		return v
	}
	return nil
}
