// Package chain defines the ChainClient capability set consumed by the
// oracle mesh (spec §6 External Interfaces) and a concrete adapter over
// go-ethereum's ethclient/rpc. The concrete websocket client itself is an
// external collaborator per spec §1 scope — this package only adapts it to
// the narrow interface the rest of the bot needs, so every consumer can be
// tested against a fake.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Account is the minimal account view the simulation pipeline needs.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
}

// Client is the capability set spec §6 names. Every oracle and simulation
// component depends on this interface, never on a concrete client, so that
// tests can substitute an in-memory fake.
type Client interface {
	SubscribeNewBlocks(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error)

	BlockNumber(ctx context.Context) (uint64, error)
	TransactionCount(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	GetAccount(ctx context.Context, account common.Address, blockNumber *big.Int) (Account, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	Close()
}

// EthClient adapts *ethclient.Client (plus its underlying *rpc.Client, for
// the full-transaction pending-tx subscription ethclient does not expose
// directly) to Client.
type EthClient struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// Dial connects to a websocket JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string) (*EthClient, error) {
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &EthClient{eth: ethclient.NewClient(rc), rpc: rc}, nil
}

func (c *EthClient) SubscribeNewBlocks(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.eth.SubscribeNewHead(ctx, ch)
}

// SubscribePendingTransactions subscribes in full-transaction-object mode
// ("newPendingTransactions", true) which ethclient does not expose, so we
// drive the underlying rpc.Client directly.
func (c *EthClient) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	return c.rpc.EthSubscribe(ctx, ch, "newPendingTransactions", true)
}

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *EthClient) TransactionCount(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return c.eth.NonceAt(ctx, account, blockNumber)
}

func (c *EthClient) GetAccount(ctx context.Context, account common.Address, blockNumber *big.Int) (Account, error) {
	balance, err := c.eth.BalanceAt(ctx, account, blockNumber)
	if err != nil {
		return Account{}, err
	}
	nonce, err := c.eth.NonceAt(ctx, account, blockNumber)
	if err != nil {
		return Account{}, err
	}
	code, err := c.eth.CodeAt(ctx, account, blockNumber)
	if err != nil {
		return Account{}, err
	}
	return Account{Balance: balance, Nonce: nonce, Code: code}, nil
}

func (c *EthClient) StorageAt(ctx context.Context, account common.Address, slot common.Hash, blockNumber *big.Int) ([]byte, error) {
	return c.eth.StorageAt(ctx, account, slot, blockNumber)
}

func (c *EthClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CodeAt(ctx, account, blockNumber)
}

func (c *EthClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

func (c *EthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

func (c *EthClient) Close() {
	c.eth.Close()
}
