// Package config loads the process-wide constant surface described in
// spec §6 once at startup via viper, with environment variable overrides.
package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/spf13/viper"
)

// LadderRung is one row of the time-pressure ladder in spec §4.8.
// RequiredMultipleTenths expresses the required value as tenths of
// amount_in (13 means 1.3x) so the table stays integer-exact.
type LadderRung struct {
	BlocksSinceBuy         uint64
	RequiredMultipleTenths uint64
}

// Config is the fully-resolved, immutable settings surface for one process
// run. Values are loaded once; hot reload is not required (spec §6).
type Config struct {
	WSEndpoint string

	WETH            common.Address
	CallerAddress   common.Address
	AdminAddress    common.Address
	ContractAddress common.Address
	CallerWalletHex string // private key, hex-encoded, no 0x prefix required

	FlashbotIdentityHex string // private key used to sign relay auth headers
	FlashbotSearcher     common.Address

	RelayURLs []string

	ChainID int64

	BuyNumerator   uint64
	BuyDenominator uint64

	MinBuySize *uint256.Int
	MaxBuySize *uint256.Int

	TargetAmountToSell *uint256.Int
	InitialProfitTake  uint64

	MinerTipToSnipe *uint256.Int
	MinerTipToSell  *uint256.Int

	MaxSellAttempts  uint8
	MaxSnipeRetries  uint8

	MinWethReserve *uint256.Int
	MaxWethReserve *uint256.Int

	// supplemented: see SPEC_FULL.md
	DryRun               bool
	PublicFallbackEnabled bool
	MaxGasPriceWei        *big.Int
	Ladder                []LadderRung

	AntiRugDropBps       uint64 // exit_after < before * AntiRugDropBps / 10000 => rug
	AntiHoneypotDropBps  uint64

	LogDir string
}

func defaultLadder() []LadderRung {
	return []LadderRung{
		{BlocksSinceBuy: 50, RequiredMultipleTenths: 13},
		{BlocksSinceBuy: 100, RequiredMultipleTenths: 16},
		{BlocksSinceBuy: 200, RequiredMultipleTenths: 20},
		{BlocksSinceBuy: 300, RequiredMultipleTenths: 30},
		{BlocksSinceBuy: 2400, RequiredMultipleTenths: 90},
	}
}

// Load reads configuration from the file at path (if non-empty), overlays
// environment variables prefixed SNIPER_, and validates the required
// fields. A missing required key or malformed address is a fatal startup
// error (spec §7 KindConfig).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNIPER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, chainerr.New(chainerr.KindConfig, "reading config file", err)
		}
	}

	cfg := &Config{
		WSEndpoint:            v.GetString("ws_endpoint"),
		CallerWalletHex:       v.GetString("caller_wallet"),
		FlashbotIdentityHex:   v.GetString("flashbot_identity"),
		RelayURLs:             v.GetStringSlice("relay_urls"),
		ChainID:               v.GetInt64("chain_id"),
		BuyNumerator:          v.GetUint64("buy_numerator"),
		BuyDenominator:        v.GetUint64("buy_denominator"),
		InitialProfitTake:     v.GetUint64("initial_profit_take"),
		MaxSellAttempts:       uint8(v.GetUint("max_sell_attempts")),
		MaxSnipeRetries:       uint8(v.GetUint("max_snipe_retries")),
		DryRun:                v.GetBool("dry_run"),
		PublicFallbackEnabled: v.GetBool("public_fallback_enabled"),
		AntiRugDropBps:        v.GetUint64("anti_rug_drop_bps"),
		AntiHoneypotDropBps:   v.GetUint64("anti_honeypot_drop_bps"),
		LogDir:                v.GetString("log_dir"),
		Ladder:                defaultLadder(),
	}

	var err error
	if cfg.WETH, err = parseAddr(v, "weth"); err != nil {
		return nil, err
	}
	if cfg.CallerAddress, err = parseAddr(v, "caller_address"); err != nil {
		return nil, err
	}
	if cfg.AdminAddress, err = parseAddr(v, "admin_address"); err != nil {
		return nil, err
	}
	if cfg.ContractAddress, err = parseAddr(v, "contract_address"); err != nil {
		return nil, err
	}
	if cfg.FlashbotSearcher, err = parseAddr(v, "flashbot_searcher"); err != nil {
		return nil, err
	}

	if cfg.MinBuySize, err = parseUint256(v, "min_buy_size"); err != nil {
		return nil, err
	}
	if cfg.MaxBuySize, err = parseUint256(v, "max_buy_size"); err != nil {
		return nil, err
	}
	if cfg.TargetAmountToSell, err = parseUint256(v, "target_amount_to_sell"); err != nil {
		return nil, err
	}
	if cfg.MinerTipToSnipe, err = parseUint256(v, "miner_tip_to_snipe"); err != nil {
		return nil, err
	}
	if cfg.MinerTipToSell, err = parseUint256(v, "miner_tip_to_sell"); err != nil {
		return nil, err
	}
	if cfg.MinWethReserve, err = parseUint256(v, "min_weth_reserve"); err != nil {
		return nil, err
	}
	if cfg.MaxWethReserve, err = parseUint256(v, "max_weth_reserve"); err != nil {
		return nil, err
	}

	maxGasPrice := v.GetString("max_gas_price_wei")
	gp, ok := new(big.Int).SetString(maxGasPrice, 10)
	if !ok {
		return nil, chainerr.New(chainerr.KindConfig, "invalid max_gas_price_wei", nil)
	}
	cfg.MaxGasPriceWei = gp

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("weth", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	v.SetDefault("buy_numerator", 9)
	v.SetDefault("buy_denominator", 10)
	v.SetDefault("min_buy_size", "25000000000000000")  // 0.025 ETH
	v.SetDefault("max_buy_size", "50000000000000000")  // 0.05 ETH
	v.SetDefault("target_amount_to_sell", "500000000000000000") // 0.5 ETH
	v.SetDefault("initial_profit_take", 5)
	v.SetDefault("miner_tip_to_snipe", "100000000000") // 100 gwei
	v.SetDefault("miner_tip_to_sell", "10000000000")   // 10 gwei
	v.SetDefault("max_sell_attempts", 20)
	v.SetDefault("max_snipe_retries", 10)
	v.SetDefault("min_weth_reserve", "1000000000000000000") // 1 ETH
	v.SetDefault("max_weth_reserve", "4000000000000000000") // 4 ETH
	v.SetDefault("max_gas_price_wei", "500000000000") // 500 gwei
	v.SetDefault("anti_rug_drop_bps", 800)            // exit < 8% of before
	v.SetDefault("anti_honeypot_drop_bps", 8000)      // exit < 80% of before
	v.SetDefault("chain_id", 1)
	v.SetDefault("dry_run", false)
	v.SetDefault("public_fallback_enabled", false)
	v.SetDefault("log_dir", ".")
}

func (c *Config) validate() error {
	if c.WSEndpoint == "" {
		return chainerr.New(chainerr.KindConfig, "ws_endpoint is required", nil)
	}
	if c.CallerWalletHex == "" {
		return chainerr.New(chainerr.KindConfig, "caller_wallet is required", nil)
	}
	if c.ContractAddress == (common.Address{}) {
		return chainerr.New(chainerr.KindConfig, "contract_address is required", nil)
	}
	if len(c.RelayURLs) == 0 {
		return chainerr.New(chainerr.KindConfig, "at least one relay_url is required", nil)
	}
	if c.BuyDenominator == 0 {
		return chainerr.New(chainerr.KindConfig, "buy_denominator must be non-zero", nil)
	}
	return nil
}

func parseAddr(v *viper.Viper, key string) (common.Address, error) {
	s := v.GetString(key)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, chainerr.New(chainerr.KindConfig, fmt.Sprintf("%s is not a valid address: %q", key, s), nil)
	}
	return common.HexToAddress(s), nil
}

func parseUint256(v *viper.Viper, key string) (*uint256.Int, error) {
	s := v.GetString(key)
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, chainerr.New(chainerr.KindConfig, fmt.Sprintf("%s is not a valid integer: %q", key, s), err)
	}
	return n, nil
}
