// Package strategy implements the SellOracle loop (C12), the AntiRug and
// AntiHoneypot watchers (C13/C14), and the miner-tip bidding curve they
// share — the exit-side counterpart to internal/sniper.
package strategy

import "math/big"

var (
	gwei = big.NewInt(1_000_000_000)

	tipFloor        = new(big.Int).Mul(big.NewInt(10), gwei)
	tierTenth       = new(big.Int).Div(gwei, big.NewInt(10)) // 0.1 gwei
	tierHalf        = new(big.Int).Div(gwei, big.NewInt(2))  // 0.5 gwei
	tierOne         = gwei
	tierTwo         = new(big.Int).Mul(big.NewInt(2), gwei)
	tierThree       = new(big.Int).Mul(big.NewInt(3), gwei)
	tierTen         = new(big.Int).Mul(big.NewInt(10), gwei)
)

// calculateMinerTip implements the bidding curve in spec §4.9: the
// attacker's own priority fee p decides our multiplier, so a
// low-priority-fee rug still gets outbid cheaply and a high-priority-fee
// one doesn't bankrupt the tip budget.
func calculateMinerTip(p *big.Int) *big.Int {
	if p == nil || p.Sign() <= 0 {
		return new(big.Int).Set(tipFloor)
	}
	switch {
	case p.Cmp(tierTenth) < 0:
		return mulRat(p, 200, 1)
	case p.Cmp(tierHalf) < 0:
		return mulRat(p, 50, 1)
	case p.Cmp(tierOne) < 0:
		return mulRat(p, 20, 1)
	case p.Cmp(tierTwo) < 0:
		return mulRat(p, 10, 1)
	case p.Cmp(tierThree) < 0:
		return mulRat(p, 10, 1)
	case p.Cmp(tierTen) < 0:
		return mulRat(p, 5, 1)
	default:
		return mulRat(p, 3, 2) // 1.5x
	}
}

func mulRat(p *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(p, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}

// maxBig returns the larger of a and b.
func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
