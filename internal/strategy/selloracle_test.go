package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/config"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/simulate"
	"github.com/stretchr/testify/require"
)

type sellFakeClient struct{}

func (f *sellFakeClient) SubscribeNewBlocks(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *sellFakeClient) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *sellFakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *sellFakeClient) TransactionCount(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (f *sellFakeClient) GetAccount(ctx context.Context, account common.Address, blockNumber *big.Int) (chain.Account, error) {
	return chain.Account{Balance: big.NewInt(0)}, nil
}
func (f *sellFakeClient) StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *sellFakeClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *sellFakeClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *sellFakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *sellFakeClient) Close() {}

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
		Cfg: &config.Config{
			MaxSellAttempts:   3,
			InitialProfitTake: 2,
			Ladder:            []config.LadderRung{{BlocksSinceBuy: 50, RequiredMultipleTenths: 13}},
			MinerTipToSell:    uint256.NewInt(1),
		},
	}
}

func TestBumpAttempts(t *testing.T) {
	tx := position.SnipeTx{AttemptsToSell: 1}
	got := bumpAttempts(tx)
	require.Equal(t, uint8(2), got.AttemptsToSell)
}

func TestMulDivUint256(t *testing.T) {
	got := mulDivUint256(uint256.NewInt(1000), 900, 10000)
	require.Equal(t, uint64(90), got.Uint64())
}

func TestEvaluateExhaustedAttemptsEvictsPosition(t *testing.T) {
	bot := oracle.NewBot(nil)
	addr := common.HexToAddress("0xtoken1")
	tx := position.SnipeTx{Pool: position.Pool{Token1: addr}, AttemptsToSell: 3}
	bot.AddHeldPosition(tx)

	s := NewSellOracle(bot, testDeps(), 1)
	factory := forkdb.NewForkFactory(&sellFakeClient{}, nil)

	s.evaluate(context.Background(), tx, factory, position.BlockInfo{Number: 1, BaseFee: big.NewInt(1)})

	require.Equal(t, 0, bot.SellLen())
	require.Equal(t, 0, bot.AntiRugLen())
}

func TestEvaluateZeroExitValueBelowTaxedOutFloorEvicts(t *testing.T) {
	bot := oracle.NewBot(nil)
	addr := common.HexToAddress("0xtoken1")
	tx := position.SnipeTx{
		Pool:           position.Pool{Token1: addr},
		AttemptsToSell: 0,
		AmountIn:       uint256.NewInt(1_000_000),
		GasCost:        uint256.NewInt(0),
		TargetAmountWeth: uint256.NewInt(2_000_000),
		BlockBought:    1,
	}
	bot.AddHeldPosition(tx)

	s := NewSellOracle(bot, testDeps(), 1)
	factory := forkdb.NewForkFactory(&sellFakeClient{}, nil)

	// balanceOf against a codeless address returns zero-length data, read
	// back as an exit value of zero — well below the 9% taxed-out floor.
	s.evaluate(context.Background(), tx, factory, position.BlockInfo{Number: 1, BaseFee: big.NewInt(1)})

	require.Equal(t, 0, bot.SellLen(), "zero exit value against a nonzero amount_in must evict as taxed out")
}
