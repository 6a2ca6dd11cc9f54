package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/stretchr/testify/require"
)

func TestAntiHoneypotHandleIgnoresContractCreation(t *testing.T) {
	bot := oracle.NewBot(nil)
	h := NewAntiHoneypot(bot, testDeps())

	tx := types.NewTx(&types.LegacyTx{To: nil, Gas: 21000}) // contract creation, To() == nil
	h.handle(context.Background(), tx)
}

func TestAntiHoneypotHandleIgnoresUnmatchedTarget(t *testing.T) {
	bot := oracle.NewBot(nil)
	bot.SetForkFactory(forkdb.NewForkFactory(&sellFakeClient{}, nil))
	token1 := common.HexToAddress("0xtoken1")
	bot.AddAntiRugTx(position.SnipeTx{Pool: position.Pool{Token1: token1}})
	h := NewAntiHoneypot(bot, testDeps())

	other := common.HexToAddress("0xbb02")
	tx := types.NewTx(&types.LegacyTx{To: &other, Gas: 21000, GasPrice: big.NewInt(1)})
	h.handle(context.Background(), tx)

	require.Equal(t, 1, bot.AntiRugLen(), "no matching held position: position untouched")
}
