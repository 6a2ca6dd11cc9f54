package bundle

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// FlashbotsRelay implements Relay against a relay endpoint speaking the
// Flashbots-style eth_sendBundle/eth_callBundle JSON-RPC protocol (spec §6
// "Bundle relay protocol"), authenticated via the X-Flashbots-Signature
// header: keccak256(body) signed by a fixed "searcher identity" key,
// independent of the key that signs the transactions themselves.
type FlashbotsRelay struct {
	url      string
	identity *ecdsa.PrivateKey
	http     *http.Client
}

// NewFlashbotsRelay builds a relay client. identity is the signing key for
// the X-Flashbots-Signature header, not the transaction signer.
func NewFlashbotsRelay(url string, identity *ecdsa.PrivateKey) *FlashbotsRelay {
	return &FlashbotsRelay{url: url, identity: identity, http: &http.Client{Timeout: 10 * time.Second}}
}

func (r *FlashbotsRelay) URL() string { return r.url }

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *FlashbotsRelay) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	sig, err := r.signBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", sig)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("flashbots relay: malformed response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("flashbots relay: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// signBody produces the "address:signature" header value Flashbots-style
// relays require: the searcher identity's address, a colon, and its
// signature over the hex-encoded keccak256 hash of the request body.
func (r *FlashbotsRelay) signBody(body []byte) (string, error) {
	hashHex := hexutil.Encode(crypto.Keccak256(body))
	sig, err := crypto.Sign(personalSignHash([]byte(hashHex)), r.identity)
	if err != nil {
		return "", err
	}
	addr := crypto.PubkeyToAddress(r.identity.PublicKey)
	return addr.Hex() + ":" + hexutil.Encode(sig), nil
}

// personalSignHash mirrors go-ethereum's accounts.TextHash (the EIP-191
// personal_sign prefix) without importing the accounts package for one
// helper: Flashbots-style relays expect the signature over the hex string
// of the body hash, not its raw bytes.
func personalSignHash(data []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256([]byte(msg))
}

func (r *FlashbotsRelay) SendBundle(ctx context.Context, txs [][]byte, targetBlock uint64, minTimestamp, maxTimestamp uint64) (common.Hash, error) {
	hexTxs := make([]string, len(txs))
	for i, tx := range txs {
		hexTxs[i] = hexutil.Encode(tx)
	}
	params := map[string]interface{}{
		"txs":              hexTxs,
		"blockNumber":      hexutil.EncodeUint64(targetBlock),
		"stateBlockNumber": hexutil.EncodeUint64(simulationBlock(targetBlock)),
		"minTimestamp":     minTimestamp,
		"maxTimestamp":     maxTimestamp,
	}
	result, err := r.call(ctx, "eth_sendBundle", []interface{}{params})
	if err != nil {
		return common.Hash{}, err
	}
	var out struct {
		BundleHash string `json:"bundleHash"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(out.BundleHash), nil
}

// AwaitInclusion has no dedicated relay endpoint for "tell me when this
// lands" in the plain JSON-RPC protocol, so it polls eth_getBundleStatus
// (a common relay extension) every two seconds until the relay reports the
// bundle included or ctx is cancelled. It does not know the bundle's target
// block and does not stop on its own once that block has passed; a
// cancelled ctx is reported as not included.
func (r *FlashbotsRelay) AwaitInclusion(ctx context.Context, bundleHash common.Hash) (bool, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			result, err := r.call(ctx, "eth_getBundleStatus", []interface{}{bundleHash.Hex()})
			if err != nil {
				continue
			}
			var status struct {
				Included bool `json:"included"`
			}
			if err := json.Unmarshal(result, &status); err != nil {
				continue
			}
			if status.Included {
				return true, nil
			}
		}
	}
}

func (r *FlashbotsRelay) SimulateBundle(ctx context.Context, txs [][]byte, targetBlock uint64) error {
	hexTxs := make([]string, len(txs))
	for i, tx := range txs {
		hexTxs[i] = hexutil.Encode(tx)
	}
	params := map[string]interface{}{
		"txs":              hexTxs,
		"blockNumber":      hexutil.EncodeUint64(targetBlock),
		"stateBlockNumber": hexutil.EncodeUint64(simulationBlock(targetBlock)),
	}
	_, err := r.call(ctx, "eth_callBundle", []interface{}{params})
	return err
}
