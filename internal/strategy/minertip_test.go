package strategy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateMinerTip(t *testing.T) {
	cases := []struct {
		name string
		p    *big.Int
		want *big.Int
	}{
		{"zero", big.NewInt(0), new(big.Int).Mul(big.NewInt(10), gwei)},
		{"nil", nil, new(big.Int).Mul(big.NewInt(10), gwei)},
		{"low tier 200x", big.NewInt(1e7), mulRat(big.NewInt(1e7), 200, 1)},       // 0.01 gwei
		{"mid tier 50x", new(big.Int).Mul(big.NewInt(2), big.NewInt(1e8)), mulRat(new(big.Int).Mul(big.NewInt(2), big.NewInt(1e8)), 50, 1)}, // 0.2 gwei
		{"one to two tier 10x", new(big.Int).Mul(big.NewInt(15), big.NewInt(1e8)), mulRat(new(big.Int).Mul(big.NewInt(15), big.NewInt(1e8)), 10, 1)}, // 1.5 gwei
		{"top tier 1.5x", new(big.Int).Mul(big.NewInt(20), gwei), mulRat(new(big.Int).Mul(big.NewInt(20), gwei), 3, 2)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := calculateMinerTip(c.p)
			require.Equal(t, 0, got.Cmp(c.want), "p=%v got=%v want=%v", c.p, got, c.want)
		})
	}
}

func TestMaxBig(t *testing.T) {
	a := big.NewInt(5)
	b := big.NewInt(9)
	require.Equal(t, b, maxBig(a, b))
	require.Equal(t, a, maxBig(a, big.NewInt(1)))
}
