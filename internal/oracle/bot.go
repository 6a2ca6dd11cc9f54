package oracle

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/forkdb"
	"github.com/oraclemesh/sniper/internal/position"
)

// NewPairWithTx is broadcast by the PairOracle to the Sniper: a freshly
// discovered pool plus the pending tx that created it, carried along so
// the Sniper can back-run it in the same bundle (spec §4.5).
type NewPairWithTx struct {
	Pool      position.Pool
	PendingTx *types.Transaction
}

// Bot is the polymorphic facade described in spec §3 "Bot handle": it owns
// every oracle behind its own RWMutex and exposes only take-lock/clone/
// release accessors, so downstream tasks never hold a raw oracle lock
// across a suspension point (spec §5 invariant).
type Bot struct {
	client chain.Client

	blockMu     sync.RWMutex
	latestBlock position.BlockInfo
	nextBlock   position.BlockInfo

	nonce uint64 // only mutated via GetNonce and ResyncNonce, under nonceMu
	nonceMu sync.Mutex

	sell     *guardedSet
	antiRug  *guardedSet
	retry    *guardedSet

	forkMu  sync.RWMutex
	factory *forkdb.ForkFactory

	newBlockFeed event.Feed
	newPairFeed  event.Feed
	pendingTxFeed event.Feed

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewBot wires a Bot around client. It does not start any background
// loop; callers start the oracle goroutines separately (cmd/sniper) so
// tests can construct a Bot without any I/O.
func NewBot(client chain.Client) *Bot {
	return &Bot{
		client:  client,
		sell:    newGuardedSet("sell"),
		antiRug: newGuardedSet("anti_rug"),
		retry:   newGuardedSet("retry"),
		done:    make(chan struct{}),
	}
}

// Done is closed once Shutdown has been called; oracle loops select on it
// alongside their own ctx to stop promptly (spec §5 Cancellation).
func (b *Bot) Done() <-chan struct{} { return b.done }

// Shutdown marks the bot as stopping. It does not drain positions — per
// spec §5, in-flight dispatches complete best-effort and held positions
// are simply abandoned in memory.
func (b *Bot) Shutdown() {
	b.shutdownOnce.Do(func() { close(b.done) })
}

// --- Block info -----------------------------------------------------------

// SetBlockInfo installs a newly observed latest/next block pair. Called
// only by the BlockOracle loop.
func (b *Bot) SetBlockInfo(latest, next position.BlockInfo) {
	b.blockMu.Lock()
	b.latestBlock, b.nextBlock = latest, next
	b.blockMu.Unlock()
}

// BlockInfo returns the latest and predicted-next block snapshots.
func (b *Bot) BlockInfo() (latest, next position.BlockInfo) {
	b.blockMu.RLock()
	defer b.blockMu.RUnlock()
	return b.latestBlock, b.nextBlock
}

// --- Nonce -----------------------------------------------------------------

// GetNonce atomically reads then increments the local nonce counter; apart
// from ResyncNonce's per-block overwrite it is the only way the local nonce
// is mutated (spec §5 "Nonce discipline").
func (b *Bot) GetNonce() uint64 {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	n := b.nonce
	b.nonce++
	return n
}

// ResyncNonce overwrites local drift with the chain-reported count,
// called by the NonceOracle on every new block.
func (b *Bot) ResyncNonce(chainNonce uint64) {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	b.nonce = chainNonce
}

// NonceValue exposes the current local nonce for diagnostics/tests; it does
// not mutate it (use GetNonce to acquire-and-increment).
func (b *Bot) NonceValue() uint64 {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	return b.nonce
}

// --- ForkDB ------------------------------------------------------------

// SetForkFactory installs a fresh factory pinned to the current base
// block. Called only by the ForkDbOracle on every new block.
func (b *Bot) SetForkFactory(f *forkdb.ForkFactory) {
	b.forkMu.Lock()
	b.factory = f
	b.forkMu.Unlock()
}

// NewSandbox returns a fresh ForkDB sandbox cloned from the current
// factory. Safe to call concurrently; each caller gets an independent
// overlay.
func (b *Bot) NewSandbox(ctx context.Context) *forkdb.ForkDB {
	f := b.ForkFactory()
	if f == nil {
		return nil
	}
	return f.NewSandbox(ctx)
}

// ForkFactory returns the factory currently installed by the ForkDbOracle.
// Simulation pipeline calls that need more than one sandbox clone within a
// single logical operation (e.g. FindAmountIn's probe loop) take the
// factory directly instead of a single pre-built sandbox.
func (b *Bot) ForkFactory() *forkdb.ForkFactory {
	b.forkMu.RLock()
	defer b.forkMu.RUnlock()
	return b.factory
}

// --- Sell oracle -------------------------------------------------------

func (b *Bot) AddSellTx(tx position.SnipeTx)              { b.sell.add(tx) }
func (b *Bot) RemoveSellTx(key common.Address)             { b.sell.remove(key) }
func (b *Bot) SellTxs() []position.SnipeTx                 { return b.sell.snapshot() }
func (b *Bot) SellLen() int                                { return b.sell.len() }
func (b *Bot) MutateSellTx(key common.Address, fn func(position.SnipeTx) position.SnipeTx) {
	b.sell.mutate(key, fn)
}

// --- Anti-rug oracle -----------------------------------------------------

func (b *Bot) AddAntiRugTx(tx position.SnipeTx)  { b.antiRug.add(tx) }
func (b *Bot) RemoveAntiRugTx(key common.Address) { b.antiRug.remove(key) }
func (b *Bot) AntiRugTxs() []position.SnipeTx    { return b.antiRug.snapshot() }
func (b *Bot) AntiRugLen() int                   { return b.antiRug.len() }

// --- Retry oracle --------------------------------------------------------

func (b *Bot) AddRetryTx(tx position.SnipeTx)   { b.retry.add(tx) }
func (b *Bot) RemoveRetryTx(key common.Address) { b.retry.remove(key) }
func (b *Bot) RetryTxs() []position.SnipeTx     { return b.retry.snapshot() }
func (b *Bot) MutateRetryTx(key common.Address, fn func(position.SnipeTx) position.SnipeTx) {
	b.retry.mutate(key, fn)
}

// --- Position lifecycle helpers -----------------------------------------

// AddHeldPosition adds tx to both Sell and AntiRug atomically from the
// caller's point of view: both adds happen before this call returns, which
// is what spec §4.7 step 5 requires ("before dispatching the bundle") and
// spec §8 invariant 1 (mirror relation) depends on.
func (b *Bot) AddHeldPosition(tx position.SnipeTx) {
	b.AddSellTx(tx)
	b.AddAntiRugTx(tx)
}

// RemoveHeldPosition removes tx from both Sell and AntiRug, preserving the
// mirror relation on the way out too.
func (b *Bot) RemoveHeldPosition(key common.Address) {
	b.RemoveSellTx(key)
	b.RemoveAntiRugTx(key)
}

// PromoteFromRetry moves a SnipeTx out of RetryOracle and into the held
// state, per the disjoint state machine in DESIGN NOTES §9.
func (b *Bot) PromoteFromRetry(tx position.SnipeTx) {
	b.RemoveRetryTx(tx.Key())
	b.AddHeldPosition(tx)
}

// --- Feeds ---------------------------------------------------------------

// SubscribeNewBlocks returns a subscription to the NewBlock broadcast.
// Late subscribers only see blocks published after they subscribe (spec
// §4.3 step 3), which event.Feed gives for free. event.Feed does not drop
// events for a lagging subscriber: Send blocks until every subscribed
// channel has taken the value, so a subscriber whose channel is full stalls
// the publisher. The same holds for the pair and pending-tx feeds below.
func (b *Bot) SubscribeNewBlocks(ch chan<- position.BlockInfo) event.Subscription {
	return b.newBlockFeed.Subscribe(ch)
}

func (b *Bot) publishNewBlock(info position.BlockInfo) {
	b.newBlockFeed.Send(info)
}

// SubscribeNewPairs returns a subscription to NewPairWithTx events.
func (b *Bot) SubscribeNewPairs(ch chan<- NewPairWithTx) event.Subscription {
	return b.newPairFeed.Subscribe(ch)
}

func (b *Bot) publishNewPair(p NewPairWithTx) {
	n := b.newPairFeed.Send(p)
	if n == 0 {
		log.Debug("oracle: NewPairWithTx published with no subscribers", "token", p.Pool.Token1)
	}
}

// SubscribePendingTxs returns a subscription to every surviving pending tx
// (post MempoolStream filtering).
func (b *Bot) SubscribePendingTxs(ch chan<- *types.Transaction) event.Subscription {
	return b.pendingTxFeed.Subscribe(ch)
}

func (b *Bot) publishPendingTx(tx *types.Transaction) {
	b.pendingTxFeed.Send(tx)
}

// Client exposes the underlying chain client for components that need raw
// access (e.g. the bundle dispatcher's receipt polling).
func (b *Bot) Client() chain.Client { return b.client }

// chainIDCache holds the chain ID installed by SetChainID; it is never
// resolved over RPC.
var chainIDCache atomic.Pointer[big.Int]

// ChainID returns the cached chain ID if SetChainID has been called.
func ChainID() *big.Int {
	return chainIDCache.Load()
}

// SetChainID is called once at startup after reading config.
func SetChainID(id *big.Int) {
	chainIDCache.Store(id)
}
