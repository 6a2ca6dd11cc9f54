package sniper

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/stretchr/testify/require"
)

type retryFakeClient struct {
	code map[common.Address][]byte
}

func (f *retryFakeClient) SubscribeNewBlocks(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *retryFakeClient) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *retryFakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *retryFakeClient) TransactionCount(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (f *retryFakeClient) GetAccount(ctx context.Context, account common.Address, blockNumber *big.Int) (chain.Account, error) {
	return chain.Account{Balance: big.NewInt(0), Code: f.code[account]}, nil
}
func (f *retryFakeClient) StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *retryFakeClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[account], nil
}
func (f *retryFakeClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *retryFakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *retryFakeClient) Close() {}

// returnsValueCode is bytecode that returns a single 32-byte word holding v:
// PUSH32 <v left-padded> PUSH1 0 MSTORE PUSH1 0x20 PUSH1 0 RETURN
func returnsValueCode(v uint64) []byte {
	word := make([]byte, 32)
	big.NewInt(0).SetUint64(v).FillBytes(word)
	code := []byte{byte(vm.PUSH32)}
	code = append(code, word...)
	code = append(code,
		byte(vm.PUSH1), 0x00,
		byte(vm.MSTORE),
		byte(vm.PUSH1), 0x20,
		byte(vm.PUSH1), 0x00,
		byte(vm.RETURN),
	)
	return code
}

func testBlock() position.BlockInfo {
	return position.BlockInfo{Number: 10, Timestamp: 100, BaseFee: big.NewInt(1)}
}

func newRetrySniper(client chain.Client) *RetrySniper {
	bot := oracle.NewBot(nil)
	bot.SetForkFactory(forkdb.NewForkFactory(client, nil))
	return NewRetrySniper(bot, RetryDeps{Deps: testDeps(), MaxConcurrent: 4}, 3)
}

func TestReserveOverrunSkippedWhenLiquidityZero(t *testing.T) {
	r := newRetrySniper(&retryFakeClient{})
	factory := forkdb.NewForkFactory(&retryFakeClient{}, nil)
	tx := position.SnipeTx{Pool: position.Pool{WethLiquidity: nil}}

	require.False(t, r.reserveOverrun(context.Background(), factory, tx, testBlock()))
}

func TestReserveOverrunDetectsFill(t *testing.T) {
	token0 := common.HexToAddress("0xtoken0")
	client := &retryFakeClient{code: map[common.Address][]byte{token0: returnsValueCode(2000)}}
	r := newRetrySniper(client)
	factory := forkdb.NewForkFactory(client, nil)

	tx := position.SnipeTx{Pool: position.Pool{Token0: token0, WethLiquidity: uint256.NewInt(1000)}}

	require.True(t, r.reserveOverrun(context.Background(), factory, tx, testBlock()), "2000 exceeds the 1200 (120% of 1000) ceiling")
}

func TestReserveOverrunWithinBounds(t *testing.T) {
	token0 := common.HexToAddress("0xtoken0")
	client := &retryFakeClient{code: map[common.Address][]byte{token0: returnsValueCode(1100)}}
	r := newRetrySniper(client)
	factory := forkdb.NewForkFactory(client, nil)

	tx := position.SnipeTx{Pool: position.Pool{Token0: token0, WethLiquidity: uint256.NewInt(1000)}}

	require.False(t, r.reserveOverrun(context.Background(), factory, tx, testBlock()), "1100 is within the 1200 ceiling")
}

func TestRunOnceEvictsExhaustedRetries(t *testing.T) {
	bot := oracle.NewBot(nil)
	bot.SetForkFactory(forkdb.NewForkFactory(&retryFakeClient{}, nil))
	addr := common.HexToAddress("0xtoken1")
	bot.AddRetryTx(position.SnipeTx{Pool: position.Pool{Token1: addr}, SnipeRetries: 3})

	r := NewRetrySniper(bot, RetryDeps{Deps: testDeps(), MaxConcurrent: 4}, 3)
	r.runOnce(context.Background())

	require.Len(t, bot.RetryTxs(), 0)
}

func TestRunOnceSkipsAlreadyPendingRetry(t *testing.T) {
	bot := oracle.NewBot(nil)
	bot.SetForkFactory(forkdb.NewForkFactory(&retryFakeClient{}, nil))
	addr := common.HexToAddress("0xtoken1")
	bot.AddRetryTx(position.SnipeTx{Pool: position.Pool{Token1: addr}, RetryPending: true})

	r := NewRetrySniper(bot, RetryDeps{Deps: testDeps(), MaxConcurrent: 4}, 3)
	r.runOnce(context.Background())

	require.Len(t, bot.RetryTxs(), 1, "a pending retry is left untouched, not removed or re-dispatched")
}
