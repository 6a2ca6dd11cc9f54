package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const minimalConfig = `
ws_endpoint: "ws://localhost:8546"
caller_wallet: "deadbeef"
caller_address: "0x0000000000000000000000000000000000000001"
admin_address: "0x0000000000000000000000000000000000000002"
contract_address: "0x0000000000000000000000000000000000000003"
flashbot_searcher: "0x0000000000000000000000000000000000000004"
relay_urls:
  - "https://relay.example.com"
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "ws://localhost:8546", cfg.WSEndpoint)
	require.Equal(t, int64(1), cfg.ChainID, "chain_id defaults to mainnet")
	require.Equal(t, uint64(9), cfg.BuyNumerator)
	require.Equal(t, uint64(10), cfg.BuyDenominator)
	require.Len(t, cfg.Ladder, 5)
	require.False(t, cfg.DryRun)
	require.False(t, cfg.PublicFallbackEnabled)
	require.True(t, cfg.MaxGasPriceWei.Sign() > 0)
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeConfigFile(t, `
caller_wallet: "deadbeef"
contract_address: "0x0000000000000000000000000000000000000003"
relay_urls: ["https://relay.example.com"]
`)
	_, err := Load(path)
	require.Error(t, err, "ws_endpoint is required")
}

func TestLoadMissingRelaysFails(t *testing.T) {
	path := writeConfigFile(t, `
ws_endpoint: "ws://localhost:8546"
caller_wallet: "deadbeef"
contract_address: "0x0000000000000000000000000000000000000003"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadInvalidAddressFails(t *testing.T) {
	path := writeConfigFile(t, `
ws_endpoint: "ws://localhost:8546"
caller_wallet: "deadbeef"
contract_address: "0x0000000000000000000000000000000000000003"
relay_urls: ["https://relay.example.com"]
caller_address: "not-an-address"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadInvalidUint256Fails(t *testing.T) {
	path := writeConfigFile(t, minimalConfig+"\nmin_buy_size: \"not-a-number\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultLadderMatchesSpecTable(t *testing.T) {
	ladder := defaultLadder()
	require.Equal(t, LadderRung{BlocksSinceBuy: 50, RequiredMultipleTenths: 13}, ladder[0])
	require.Equal(t, LadderRung{BlocksSinceBuy: 2400, RequiredMultipleTenths: 90}, ladder[len(ladder)-1])
}
