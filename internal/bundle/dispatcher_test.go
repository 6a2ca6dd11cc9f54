package bundle

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	name      string
	included  bool
	sendErr   error
	awaitErr  error
	simulated bool
}

func (f *fakeRelay) URL() string { return f.name }

func (f *fakeRelay) SendBundle(ctx context.Context, txs [][]byte, targetBlock uint64, minTs, maxTs uint64) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0xabc"), nil
}

func (f *fakeRelay) AwaitInclusion(ctx context.Context, bundleHash common.Hash) (bool, error) {
	if f.awaitErr != nil {
		return false, f.awaitErr
	}
	return f.included, nil
}

func (f *fakeRelay) SimulateBundle(ctx context.Context, txs [][]byte, targetBlock uint64) error {
	f.simulated = true
	return nil
}

func TestDispatchRefusesAboveMaxGasPrice(t *testing.T) {
	d := New(Config{MaxGasPriceWei: big.NewInt(1), Relays: []Relay{&fakeRelay{included: true}}})
	agent := sampleTx(0) // GasFeeCap = 2, above the ceiling of 1
	included, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.False(t, included)
	require.True(t, chainerr.IsInvariantBreach(err))
}

func TestDispatchDryRunNeverSends(t *testing.T) {
	relay := &fakeRelay{included: true}
	d := New(Config{DryRun: true, Relays: []Relay{relay}})
	agent := sampleTx(0)
	included, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.NoError(t, err)
	require.False(t, included)
	require.False(t, relay.simulated, "dry run never reaches the relay fan-out")
}

func TestDispatchNoRelaysConfigured(t *testing.T) {
	d := New(Config{})
	agent := sampleTx(0)
	_, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.True(t, chainerr.IsConfig(err))
}

func TestDispatchFirstInclusionWins(t *testing.T) {
	relays := []Relay{
		&fakeRelay{name: "a", included: false},
		&fakeRelay{name: "b", included: true},
		&fakeRelay{name: "c", included: true},
	}
	d := New(Config{Relays: relays})
	agent := sampleTx(0)
	included, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.NoError(t, err)
	require.True(t, included)
}

func TestDispatchNoRelayIncludesBundle(t *testing.T) {
	relays := []Relay{&fakeRelay{name: "a", included: false}, &fakeRelay{name: "b", included: false}}
	d := New(Config{Relays: relays})
	agent := sampleTx(0)
	included, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.NoError(t, err)
	require.False(t, included)
}

func TestDispatchOnlyPrimaryRelaySimulates(t *testing.T) {
	primary := &fakeRelay{name: "primary", included: true}
	secondary := &fakeRelay{name: "secondary", included: false}
	d := New(Config{Relays: []Relay{primary, secondary}})
	agent := sampleTx(0)
	_, err := d.Dispatch(context.Background(), agent, nil, position.TagSolo, 1, 1)
	require.NoError(t, err)
	require.True(t, primary.simulated)
	require.False(t, secondary.simulated)
}
