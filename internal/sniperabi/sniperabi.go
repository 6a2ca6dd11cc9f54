// Package sniperabi holds the consumed-only ABI fragments spec §6 names:
// the on-chain sniper contract's two entry points, and the Uniswap-V2-style
// pair/ERC20 event and method signatures the simulation pipeline decodes.
// No sniper contract source is in scope (spec §1); only its ABI.
package sniperabi

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const sniperABIJSON = `[
	{"type":"function","name":"snipaaaaaa","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"input","type":"address"},
		{"name":"output","type":"address"},
		{"name":"pool","type":"address"},
		{"name":"amount_in","type":"uint256"},
		{"name":"minimum_out","type":"uint256"}
	 ],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"}
	 ],"outputs":[]}
]`

const pairABIJSON = `[
	{"type":"event","name":"PairCreated","anonymous":false,"inputs":[
		{"name":"token0","type":"address","indexed":true},
		{"name":"token1","type":"address","indexed":true},
		{"name":"pair","type":"address","indexed":false},
		{"name":"","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Mint","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0","type":"uint256","indexed":false},
		{"name":"amount1","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Sync","anonymous":false,"inputs":[
		{"name":"reserve0","type":"uint112","indexed":false},
		{"name":"reserve1","type":"uint112","indexed":false}
	]},
	{"type":"event","name":"Swap","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0In","type":"uint256","indexed":false},
		{"name":"amount1In","type":"uint256","indexed":false},
		{"name":"amount0Out","type":"uint256","indexed":false},
		{"name":"amount1Out","type":"uint256","indexed":false},
		{"name":"to","type":"address","indexed":true}
	]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]},
	{"type":"function","name":"token0","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token1","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
		{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]}
]`

// Sniper is the parsed sniper-contract ABI.
var Sniper abi.ABI

// Pair is the parsed pair/ERC20 ABI fragment set used throughout the
// simulation pipeline.
var Pair abi.ABI

// Selectors for the two ERC-20 calls PairOracle filters out of the
// mempool before simulating a pending tx (spec §4.5).
var (
	TransferSelector [4]byte
	ApproveSelector  [4]byte
)

func init() {
	var err error
	Sniper, err = abi.JSON(strings.NewReader(sniperABIJSON))
	if err != nil {
		panic("sniperabi: invalid sniper ABI: " + err.Error())
	}
	Pair, err = abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic("sniperabi: invalid pair ABI: " + err.Error())
	}

	copy(TransferSelector[:], crypto.Keccak256([]byte("transfer(address,uint256)"))[:4])
	copy(ApproveSelector[:], crypto.Keccak256([]byte("approve(address,uint256)"))[:4])

	PairCreatedTopic = Pair.Events["PairCreated"].ID
	MintTopic = Pair.Events["Mint"].ID
	SyncTopic = Pair.Events["Sync"].ID
	SwapTopic = Pair.Events["Swap"].ID
	TransferTopic = Pair.Events["Transfer"].ID
}

// Event topic hashes, precomputed for log filtering in the pair oracle.
var (
	PairCreatedTopic common.Hash
	MintTopic        common.Hash
	SyncTopic        common.Hash
	SwapTopic        common.Hash
	TransferTopic    common.Hash
)
