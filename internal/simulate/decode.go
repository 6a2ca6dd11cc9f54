package simulate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/sniperabi"
)

// decodeSwapAmountOut returns the non-zero output leg of the first Swap log
// emitted by pairAddr, or nil if none is present.
func decodeSwapAmountOut(logs []*types.Log, pairAddr common.Address) *uint256.Int {
	for _, l := range logs {
		if l.Address != pairAddr {
			continue
		}
		if len(l.Topics) == 0 || l.Topics[0] != sniperabi.SwapTopic {
			continue
		}
		if len(l.Data) < 128 {
			continue
		}
		amount0Out := new(big.Int).SetBytes(l.Data[64:96])
		amount1Out := new(big.Int).SetBytes(l.Data[96:128])

		chosen := amount1Out
		if amount0Out.Sign() > 0 {
			chosen = amount0Out
		}
		v, overflow := uint256.FromBig(chosen)
		if overflow {
			return uint256.NewInt(0)
		}
		return v
	}
	return nil
}

// decodeTransferReceived returns the value of the first ERC-20 Transfer log
// whose recipient topic matches to, or nil if none is present.
func decodeTransferReceived(logs []*types.Log, to common.Address) *uint256.Int {
	for _, l := range logs {
		if len(l.Topics) < 3 || l.Topics[0] != sniperabi.TransferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		if len(l.Data) < 32 {
			continue
		}
		v, overflow := uint256.FromBig(new(big.Int).SetBytes(l.Data[:32]))
		if overflow {
			return uint256.NewInt(0)
		}
		return v
	}
	return nil
}
