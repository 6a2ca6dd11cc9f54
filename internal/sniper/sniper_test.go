package sniper

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/bundle"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
	"github.com/stretchr/testify/require"
)

type sniperFakeClient struct{}

func (f *sniperFakeClient) SubscribeNewBlocks(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *sniperFakeClient) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *sniperFakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *sniperFakeClient) TransactionCount(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (f *sniperFakeClient) GetAccount(ctx context.Context, account common.Address, blockNumber *big.Int) (chain.Account, error) {
	return chain.Account{Balance: big.NewInt(0)}, nil
}
func (f *sniperFakeClient) StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *sniperFakeClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *sniperFakeClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *sniperFakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *sniperFakeClient) Close() {}

func testDeps() Deps {
	return Deps{
		Pipeline: &simulate.Pipeline{
			ChainConfig:    params.MainnetChainConfig,
			Contract:       common.HexToAddress("0xc0ffee"),
			Caller:         common.HexToAddress("0xca11e4"),
			WETH:           common.HexToAddress("0xweth"),
			BuyNumerator:   9,
			BuyDenominator: 10,
			MinBuySize:     uint256.NewInt(1),
			MaxBuySize:     uint256.NewInt(1_000_000),
		},
		Dispatcher:      bundle.New(bundle.Config{}),
		ChainID:         big.NewInt(1),
		GasLimit:        500_000,
		MinerTipToSnipe: big.NewInt(1),
	}
}

func TestHandlePairNoopsWithoutForkFactory(t *testing.T) {
	bot := oracle.NewBot(nil)
	s := New(bot, testDeps())

	evt := oracle.NewPairWithTx{
		Pool:      position.Pool{Address: common.HexToAddress("0xpool1")},
		PendingTx: types.NewTx(&types.LegacyTx{Gas: 21000}),
	}
	s.handlePair(context.Background(), evt)

	require.Equal(t, 0, bot.SellLen())
}

func TestHandlePairDropsOnUnrecoverableSender(t *testing.T) {
	bot := oracle.NewBot(nil)
	bot.SetForkFactory(forkdb.NewForkFactory(&sniperFakeClient{}, nil))

	// unsigned tx: types.Sender will fail to recover a signer, so
	// handlePair must drop the event before touching the pipeline.
	to := common.HexToAddress("0xtoken1")
	unsigned := types.NewTx(&types.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)})

	s := New(bot, testDeps())
	evt := oracle.NewPairWithTx{Pool: position.Pool{Address: common.HexToAddress("0xpool1")}, PendingTx: unsigned}

	s.handlePair(context.Background(), evt)
	require.Equal(t, 0, bot.SellLen())
	require.Equal(t, 0, bot.AntiRugLen())
}
