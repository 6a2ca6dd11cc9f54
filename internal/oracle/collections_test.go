package oracle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oraclemesh/sniper/internal/position"
	"github.com/stretchr/testify/require"
)

func mkTx(addr common.Address, attempts uint8) position.SnipeTx {
	return position.SnipeTx{Pool: position.Pool{Token1: addr}, AttemptsToSell: attempts}
}

func TestSnipeTxSetAddIsIdempotent(t *testing.T) {
	s := newSnipeTxSet()
	addr := common.HexToAddress("0x1")
	s.Add(mkTx(addr, 0))
	s.Add(mkTx(addr, 99)) // second add must be a no-op

	tx, ok := s.Get(addr)
	require.True(t, ok)
	require.Equal(t, uint8(0), tx.AttemptsToSell)
	require.Equal(t, 1, s.Len())
}

func TestSnipeTxSetUpsertOverwrites(t *testing.T) {
	s := newSnipeTxSet()
	addr := common.HexToAddress("0x1")
	s.Add(mkTx(addr, 0))
	s.Upsert(mkTx(addr, 5))

	tx, ok := s.Get(addr)
	require.True(t, ok)
	require.Equal(t, uint8(5), tx.AttemptsToSell)
	require.Equal(t, 1, s.Len(), "upsert on an existing key does not grow order")
}

func TestSnipeTxSetUpsertAddsWhenMissing(t *testing.T) {
	s := newSnipeTxSet()
	addr := common.HexToAddress("0x1")
	s.Upsert(mkTx(addr, 3))
	require.Equal(t, 1, s.Len())
}

func TestSnipeTxSetRemoveIsIdempotent(t *testing.T) {
	s := newSnipeTxSet()
	addr := common.HexToAddress("0x1")
	s.Add(mkTx(addr, 0))
	s.Remove(addr)
	s.Remove(addr) // second remove is a no-op, not a panic

	require.Equal(t, 0, s.Len())
	_, ok := s.Get(addr)
	require.False(t, ok)
}

func TestSnipeTxSetSnapshotIsIndependentCopy(t *testing.T) {
	s := newSnipeTxSet()
	addr := common.HexToAddress("0x1")
	s.Add(mkTx(addr, 0))

	snap := s.Snapshot()
	s.Upsert(mkTx(addr, 10))

	require.Equal(t, uint8(0), snap[0].AttemptsToSell, "snapshot taken before the mutation is unaffected by it")
}

func TestSnipeTxSetPreservesInsertionOrder(t *testing.T) {
	s := newSnipeTxSet()
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")
	c := common.HexToAddress("0x3")
	s.Add(mkTx(a, 0))
	s.Add(mkTx(b, 0))
	s.Add(mkTx(c, 0))
	s.Remove(b)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, a, snap[0].Key())
	require.Equal(t, c, snap[1].Key())
}

func TestGuardedSetMutateBumpsInPlace(t *testing.T) {
	g := newGuardedSet("")
	addr := common.HexToAddress("0x1")
	g.add(mkTx(addr, 0))

	g.mutate(addr, func(tx position.SnipeTx) position.SnipeTx {
		tx.AttemptsToSell++
		return tx
	})

	tx, ok := g.get(addr)
	require.True(t, ok)
	require.Equal(t, uint8(1), tx.AttemptsToSell)
}

func TestGuardedSetMutateOnMissingKeyIsNoop(t *testing.T) {
	g := newGuardedSet("")
	addr := common.HexToAddress("0x1")
	called := false
	g.mutate(addr, func(tx position.SnipeTx) position.SnipeTx {
		called = true
		return tx
	})
	require.False(t, called)
}

func TestGuardedSetLenAndSnapshot(t *testing.T) {
	g := newGuardedSet("")
	g.add(mkTx(common.HexToAddress("0x1"), 0))
	g.add(mkTx(common.HexToAddress("0x2"), 0))

	require.Equal(t, 2, g.len())
	require.Len(t, g.snapshot(), 2)
}
