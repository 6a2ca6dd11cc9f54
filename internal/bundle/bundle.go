// Package bundle implements the Bundle Dispatcher (spec §4.10): it signs
// the agent's transaction, composes it with an optional co-bundled pending
// transaction according to the front-run/back-run/solo tag, and fans the
// bundle out to every configured relay concurrently with first-inclusion-
// wins semantics.
package bundle

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/metrics"
	"github.com/oraclemesh/sniper/internal/position"
	"golang.org/x/sync/errgroup"
)

// Relay is the capability set a block-builder relay backend must offer.
// Defined at the consumer so tests can substitute an in-memory fake
// instead of dialing a real relay endpoint.
type Relay interface {
	// URL identifies the relay for logging.
	URL() string
	// SendBundle submits the RLP-encoded tx list for inclusion in
	// targetBlock and returns once the relay acknowledges receipt (not
	// inclusion) or the context is cancelled.
	SendBundle(ctx context.Context, txs [][]byte, targetBlock uint64, minTimestamp, maxTimestamp uint64) (bundleHash common.Hash, err error)
	// AwaitInclusion blocks until the relay reports the bundle identified
	// by bundleHash landed on-chain, or ctx is cancelled.
	AwaitInclusion(ctx context.Context, bundleHash common.Hash) (included bool, err error)
	// SimulateBundle is best-effort and only ever called against the
	// primary relay; its result is logged, never gating (spec §4.10).
	SimulateBundle(ctx context.Context, txs [][]byte, targetBlock uint64) error
}

// Dispatcher owns the signing key and relay set. One Dispatcher is shared
// across every Sniper/RetrySniper/SellOracle/AntiRug dispatch.
type Dispatcher struct {
	signer       types.Signer
	key          *ecdsa.PrivateKey
	relays       []Relay
	maxGasPrice  *big.Int
	publicFallback bool
	client       chain.Client
	dryRun       bool
}

// Config configures a Dispatcher.
type Config struct {
	Signer         types.Signer
	Key            *ecdsa.PrivateKey
	Relays         []Relay
	MaxGasPriceWei *big.Int
	PublicFallback bool
	Client         chain.Client
	DryRun         bool
}

func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		signer:         cfg.Signer,
		key:            cfg.Key,
		relays:         cfg.Relays,
		maxGasPrice:    cfg.MaxGasPriceWei,
		publicFallback: cfg.PublicFallback,
		client:         cfg.Client,
		dryRun:         cfg.DryRun,
	}
}

// BuildTx constructs and signs an EIP-1559 transaction from txData, ready
// for bundling.
func (d *Dispatcher) BuildTx(chainID *big.Int, nonce uint64, to common.Address, gasLimit uint64, tip, feeCap *big.Int, txData position.TxData) (*types.Transaction, error) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:    chainID,
		Nonce:      nonce,
		GasTipCap:  tip,
		GasFeeCap:  feeCap,
		Gas:        gasLimit,
		To:         &to,
		Value:      big.NewInt(0),
		Data:       txData.CallData,
		AccessList: txData.AccessList,
	})
	return types.SignTx(tx, d.signer, d.key)
}

// Dispatch composes the bundle per tag, fans it out to every relay, and
// returns true on first confirmed inclusion. It refuses to dispatch if the
// agent tx's gas fee cap exceeds MaxGasPriceWei (spec SUPPLEMENTED
// FEATURES #4, a guard independent of the miner-tip bidding curve).
func (d *Dispatcher) Dispatch(ctx context.Context, agentTx *types.Transaction, pendingTx *types.Transaction, tag position.FrontrunTag, targetBlock, targetTimestamp uint64) (bool, error) {
	if d.maxGasPrice != nil && agentTx.GasFeeCap().Cmp(d.maxGasPrice) > 0 {
		return false, chainerr.New(chainerr.KindInvariantBreach, "dispatch refused: gas fee cap exceeds MAX_GAS_PRICE", nil)
	}

	if d.dryRun {
		log.Info("bundle: dry run, not dispatching", "tag", tag, "txHash", agentTx.Hash())
		return false, nil
	}

	rlpTxs, err := composeBundle(agentTx, pendingTx, tag)
	if err != nil {
		return false, err
	}

	if len(d.relays) == 0 {
		return false, chainerr.New(chainerr.KindConfig, "no relays configured", nil)
	}

	included, err := d.dispatchRelays(ctx, rlpTxs, targetBlock, targetTimestamp)
	outcome := "not_included"
	if err != nil {
		outcome = "error"
	} else if included {
		outcome = "included"
	}
	metrics.RecordDispatch(tag.String(), outcome)
	return included, err
}

func (d *Dispatcher) dispatchRelays(ctx context.Context, rlpTxs [][]byte, targetBlock, targetTimestamp uint64) (bool, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	included := make(chan bool, len(d.relays))

	for i, relay := range d.relays {
		relay := relay
		primary := i == 0
		g.Go(func() error {
			if primary {
				if err := relay.SimulateBundle(ctx, rlpTxs, targetBlock); err != nil {
					log.Debug("bundle: primary relay simulation failed (non-gating)", "relay", relay.URL(), "err", err)
				}
			}

			hash, err := relay.SendBundle(ctx, rlpTxs, targetBlock, targetTimestamp, targetTimestamp)
			if err != nil {
				log.Warn("bundle: relay submission failed", "relay", relay.URL(), "err", err)
				return nil
			}

			ok, err := relay.AwaitInclusion(ctx, hash)
			if err != nil {
				log.Debug("bundle: relay await-inclusion failed", "relay", relay.URL(), "err", err)
				return nil
			}
			if ok {
				select {
				case included <- true:
					cancel()
				default:
				}
			}
			return nil
		})
	}

	_ = g.Wait()

	select {
	case <-included:
		return true, nil
	default:
		return false, nil
	}
}

// DispatchOrFallback is the supplemented exit-only fallback (SPEC_FULL.md
// SUPPLEMENTED FEATURES #1): if bundle dispatch reports non-inclusion and
// PublicFallbackEnabled is set, it falls back to a plain
// SendRawTransaction against the public mempool. Never used for buys,
// which require bundle co-location with the pool-creation tx.
func (d *Dispatcher) DispatchOrFallback(ctx context.Context, agentTx *types.Transaction, pendingTx *types.Transaction, tag position.FrontrunTag, targetBlock, targetTimestamp uint64) (bool, error) {
	included, err := d.Dispatch(ctx, agentTx, pendingTx, tag, targetBlock, targetTimestamp)
	if err != nil || included || !d.publicFallback {
		return included, err
	}
	if d.client == nil {
		return false, nil
	}
	log.Info("bundle: falling back to public mempool for sell tx", "txHash", agentTx.Hash())
	if err := d.client.SendRawTransaction(ctx, agentTx); err != nil {
		log.Warn("bundle: public fallback send failed", "err", err)
		return false, nil
	}
	return d.awaitReceipt(ctx, agentTx.Hash())
}

func (d *Dispatcher) awaitReceipt(ctx context.Context, hash common.Hash) (bool, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			receipt, err := d.client.TransactionReceipt(ctx, hash)
			if err != nil || receipt == nil {
				continue
			}
			return receipt.Status == types.ReceiptStatusSuccessful, nil
		}
	}
}

// composeBundle orders [agentTx, pendingTx] per the tag table in spec
// §4.10 and RLP-encodes each leg.
func composeBundle(agentTx, pendingTx *types.Transaction, tag position.FrontrunTag) ([][]byte, error) {
	var ordered []*types.Transaction
	switch tag {
	case position.TagFrontrun:
		if pendingTx == nil {
			return nil, chainerr.New(chainerr.KindInvariantBreach, "front-run tag requires a pending tx", nil)
		}
		ordered = []*types.Transaction{agentTx, pendingTx}
	case position.TagBackrun:
		if pendingTx == nil {
			return nil, chainerr.New(chainerr.KindInvariantBreach, "back-run tag requires a pending tx", nil)
		}
		ordered = []*types.Transaction{pendingTx, agentTx}
	case position.TagSolo:
		ordered = []*types.Transaction{agentTx}
	default:
		return nil, chainerr.New(chainerr.KindInvariantBreach, fmt.Sprintf("unknown frontrun tag %d", tag), nil)
	}

	out := make([][]byte, 0, len(ordered))
	for _, tx := range ordered {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// MarshalBundleRequest is exposed for relay implementations that need the
// canonical eth_sendBundle JSON-RPC params shape (spec §6 Bundle relay
// protocol). Every bundle carries stateBlockNumber = targetBlock - 1
// alongside blockNumber = targetBlock (spec §4.10 simulation_block).
func MarshalBundleRequest(txs [][]byte, targetBlock, minTimestamp, maxTimestamp uint64) ([]byte, error) {
	hexTxs := make([]string, len(txs))
	for i, tx := range txs {
		hexTxs[i] = "0x" + common.Bytes2Hex(tx)
	}
	return json.Marshal(struct {
		Txs              []string `json:"txs"`
		BlockNumber      string   `json:"blockNumber"`
		StateBlockNumber string   `json:"stateBlockNumber"`
		MinTimestamp     uint64   `json:"minTimestamp"`
		MaxTimestamp     uint64   `json:"maxTimestamp"`
	}{
		Txs:              hexTxs,
		BlockNumber:      fmt.Sprintf("0x%x", targetBlock),
		StateBlockNumber: fmt.Sprintf("0x%x", simulationBlock(targetBlock)),
		MinTimestamp:     minTimestamp,
		MaxTimestamp:     maxTimestamp,
	})
}

// simulationBlock is the state the bundle must be simulated against: the
// parent of the block it targets (spec §4.10).
func simulationBlock(targetBlock uint64) uint64 {
	if targetBlock == 0 {
		return 0
	}
	return targetBlock - 1
}
