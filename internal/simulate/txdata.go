package simulate

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/evmrunner"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/oraclemesh/sniper/internal/sniperabi"
)

// GenerateOptions selects the swap direction and bundle framing for
// GenerateTxData.
type GenerateOptions struct {
	DoBuy    bool
	Tag      position.FrontrunTag
	Pending  PendingCtx
}

// GenerateTxData runs the full dry-run described in spec §4.6: computes an
// access list, re-executes with it installed to measure real gas, reads
// the actual received amount off the logs, and re-encodes the call with a
// minimum-received bound of received * BuyNumerator / BuyDenominator. It
// returns the dispatch-ready TxData plus the raw received amount (callers
// need it to build the SnipeTx record).
func (p *Pipeline) GenerateTxData(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, amount *uint256.Int, block position.BlockInfo, opts GenerateOptions) (position.TxData, *uint256.Int, error) {
	sandbox := factory.NewSandbox(ctx)
	if err := p.commitPending(sandbox, block, opts.Pending); err != nil {
		return position.TxData{}, nil, err
	}

	input, output := pool.Token1, p.WETH
	if opts.DoBuy {
		input, output = p.WETH, pool.Token1
	}

	data, err := sniperabi.Sniper.Pack("snipaaaaaa", input, output, pool.Address, amount.ToBig(), big.NewInt(0))
	if err != nil {
		return position.TxData{}, nil, err
	}

	alResult := evmrunner.SimCallWithAccessList(sandbox, block, p.ChainConfig, p.Caller, p.Contract, data, nil)
	if alResult.Err != nil {
		return position.TxData{}, nil, alResult.Err
	}

	var received *uint256.Int
	if opts.DoBuy {
		received = decodeTransferReceived(alResult.Logs, p.Contract)
	} else {
		received = decodeSwapAmountOut(alResult.Logs, pool.Address)
	}
	if received == nil {
		received = uint256.NewInt(0)
	}

	minReceived := mulDiv(received, p.BuyNumerator, p.BuyDenominator)

	finalData, err := sniperabi.Sniper.Pack("snipaaaaaa", input, output, pool.Address, amount.ToBig(), minReceived.ToBig())
	if err != nil {
		return position.TxData{}, nil, err
	}

	txData := position.TxData{
		CallData:          finalData,
		AccessList:        alResult.AccessList,
		GasUsed:           alResult.GasUsed,
		ExpectedAmount:    minReceived,
		PendingTx:         opts.Pending.Tx,
		FrontrunOrBackrun: opts.Tag,
	}
	return txData, received, nil
}

// profitTakerMaxIterations bounds the 5%-bump compensation loop per the
// CLARIFIED OPEN QUESTIONS decision (the original source bumps once,
// unbounded; this caps at 5 attempts and stops as soon as the round trip
// clears amountIn).
const profitTakerMaxIterations = 5

// profitTakerSlippageBps is the 15% slippage guard spec §4.6 names for
// profit_taker's returned TxData.
const profitTakerSlippageBps = 8500

// ProfitTaker back-solves the token quantity that sells for at least
// targetWeth: it first simulates a hypothetical buy of targetWeth to learn
// the corresponding token amount, then simulates selling that amount,
// bumping by 5% up to profitTakerMaxIterations times if the round trip
// underpays.
func (p *Pipeline) ProfitTaker(ctx context.Context, factory *forkdb.ForkFactory, pool position.Pool, block position.BlockInfo, targetWeth *uint256.Int) (position.TxData, error) {
	priceSandbox := factory.NewSandbox(ctx)
	buyData, err := sniperabi.Sniper.Pack("snipaaaaaa", p.WETH, pool.Token1, pool.Address, targetWeth.ToBig(), big.NewInt(0))
	if err != nil {
		return position.TxData{}, err
	}
	buyResult := evmrunner.SimCall(priceSandbox, block, p.ChainConfig, p.Caller, p.Contract, buyData, nil)
	if buyResult.Err != nil {
		return position.TxData{}, buyResult.Err
	}

	tokenQty := decodeTransferReceived(buyResult.Logs, p.Contract)
	if tokenQty == nil || tokenQty.IsZero() {
		return position.TxData{}, chainerr.New(chainerr.KindInvariantBreach, "profit_taker: hypothetical buy produced no received amount", nil)
	}

	for i := 0; i < profitTakerMaxIterations; i++ {
		trial := factory.NewSandbox(ctx)
		sellData, err := sniperabi.Sniper.Pack("snipaaaaaa", pool.Token1, p.WETH, pool.Address, tokenQty.ToBig(), big.NewInt(0))
		if err != nil {
			return position.TxData{}, err
		}
		sellResult := evmrunner.SimCall(trial, block, p.ChainConfig, p.Caller, p.Contract, sellData, nil)
		if sellResult.Err != nil {
			return position.TxData{}, sellResult.Err
		}

		wethOut := decodeSwapAmountOut(sellResult.Logs, pool.Address)
		if wethOut != nil && wethOut.Cmp(targetWeth) >= 0 {
			minReceived := mulDiv(wethOut, profitTakerSlippageBps, 10000)
			finalData, err := sniperabi.Sniper.Pack("snipaaaaaa", pool.Token1, p.WETH, pool.Address, tokenQty.ToBig(), minReceived.ToBig())
			if err != nil {
				return position.TxData{}, err
			}
			return position.TxData{
				CallData:          finalData,
				GasUsed:           sellResult.GasUsed,
				ExpectedAmount:    minReceived,
				FrontrunOrBackrun: position.TagSolo,
			}, nil
		}

		tokenQty = mulDiv(tokenQty, 105, 100)
	}

	return position.TxData{}, chainerr.New(chainerr.KindInvariantBreach, "profit_taker: round trip still underpays after bump budget", nil)
}
