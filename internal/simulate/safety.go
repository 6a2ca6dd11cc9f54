package simulate

import (
	"bytes"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

// suspiciousSelectors are 4-byte function selectors commonly seen on
// tokens that disable trading or blacklist holders after launch. Matching
// one is not proof of a honeypot — it is a cheap pre-filter run before the
// expensive tax/transfer simulation (SPEC_FULL.md SUPPLEMENTED FEATURES,
// grounded on original_source/src/utils/simulate/is_safu.rs).
var suspiciousSelectors = [][4]byte{
	selector("blacklist(address)"),
	selector("setBlacklist(address,bool)"),
	selector("pause()"),
	selector("excludeFromTrading(address)"),
	selector("setMaxTx(uint256)"),
}

func selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

// StaticSafetyCheck is the is_safu pre-trade heuristic: it rejects
// contracts whose bytecode contains a SELFDESTRUCT opcode anywhere outside
// push data, or whose bytes contain a known blacklist/pause/max-tx selector
// anywhere. It walks the bytecode PUSH-immediate-aware, the same way the
// EVM's own jumpdest analysis does, so a 0xFF byte inside push data is
// never mistaken for the SELFDESTRUCT opcode; it does no control-flow
// analysis, so an unreachable SELFDESTRUCT rejects the contract too.
func StaticSafetyCheck(code []byte) bool {
	if containsOpcode(code, vm.SELFDESTRUCT) {
		return false
	}
	for _, sel := range suspiciousSelectors {
		if bytes.Contains(code, sel[:]) {
			return false
		}
	}
	return true
}

func containsOpcode(code []byte, target vm.OpCode) bool {
	for i := 0; i < len(code); {
		op := vm.OpCode(code[i])
		if op == target {
			return true
		}
		if op >= vm.PUSH1 && op <= vm.PUSH32 {
			i += int(op-vm.PUSH1) + 2
			continue
		}
		i++
	}
	return false
}
