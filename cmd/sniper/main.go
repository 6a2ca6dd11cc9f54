// Command sniper wires the oracle mesh, simulation pipeline, sniper,
// retry sniper, sell oracle, and anti-rug/anti-honeypot watchers into a
// single process, per spec §5 "process topology".
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/oraclemesh/sniper/internal/bundle"
	"github.com/oraclemesh/sniper/internal/chain"
	"github.com/oraclemesh/sniper/internal/chainerr"
	"github.com/oraclemesh/sniper/internal/config"
	"github.com/oraclemesh/sniper/internal/logging"
	"github.com/oraclemesh/sniper/internal/metrics"
	"github.com/oraclemesh/sniper/internal/oracle"
	"github.com/oraclemesh/sniper/internal/simulate"
	"github.com/oraclemesh/sniper/internal/sniper"
	"github.com/oraclemesh/sniper/internal/strategy"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sniper",
		Usage: "automated Uniswap-V2-style liquidity-pool sniper",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a config file (YAML/JSON/TOML, viper-compatible)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug-level console logging"},
			&cli.StringFlag{Name: "metrics-addr", Value: ":9090", Usage: "address to serve /metrics on"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sniper:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.LogDir, c.Bool("verbose")); err != nil {
		return err
	}

	metrics.Serve(c.String("metrics-addr"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("sniper: shutdown signal received")
		cancel()
	}()

	callerKey, err := crypto.HexToECDSA(cfg.CallerWalletHex)
	if err != nil {
		return chainerr.New(chainerr.KindConfig, "invalid caller_wallet", err)
	}
	identityKey := callerKey
	if cfg.FlashbotIdentityHex != "" {
		identityKey, err = crypto.HexToECDSA(cfg.FlashbotIdentityHex)
		if err != nil {
			return chainerr.New(chainerr.KindConfig, "invalid flashbot_identity", err)
		}
	}

	dial := func(ctx context.Context) (chain.Client, error) {
		return chain.Dial(ctx, cfg.WSEndpoint)
	}

	primaryClient, err := chain.Dial(ctx, cfg.WSEndpoint)
	if err != nil {
		return fmt.Errorf("dialing primary client: %w", err)
	}
	defer primaryClient.Close()

	bot := oracle.NewBot(primaryClient)
	chainID := big.NewInt(cfg.ChainID)
	oracle.SetChainID(chainID)

	chainConfig := params.MainnetChainConfig

	relays := make([]bundle.Relay, 0, len(cfg.RelayURLs))
	for _, url := range cfg.RelayURLs {
		relays = append(relays, bundle.NewFlashbotsRelay(url, identityKey))
	}

	dispatcher := bundle.New(bundle.Config{
		Signer:         types.LatestSignerForChainID(chainID),
		Key:            callerKey,
		Relays:         relays,
		MaxGasPriceWei: cfg.MaxGasPriceWei,
		PublicFallback: cfg.PublicFallbackEnabled,
		Client:         primaryClient,
		DryRun:         cfg.DryRun,
	})

	pipeline := &simulate.Pipeline{
		ChainConfig:    chainConfig,
		Contract:       cfg.ContractAddress,
		Caller:         cfg.CallerAddress,
		WETH:           cfg.WETH,
		BuyNumerator:   cfg.BuyNumerator,
		BuyDenominator: cfg.BuyDenominator,
		MinBuySize:     cfg.MinBuySize,
		MaxBuySize:     cfg.MaxBuySize,
	}

	sniperDeps := sniper.Deps{
		Pipeline:           pipeline,
		Dispatcher:         dispatcher,
		ChainID:            chainID,
		GasLimit:           500_000,
		MinerTipToSnipe:    cfg.MinerTipToSnipe.ToBig(),
		TargetAmountToSell: cfg.TargetAmountToSell,
	}
	strategyDeps := strategy.Deps{
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		ChainID:    chainID,
		GasLimit:   500_000,
		Cfg:        cfg,
	}

	go oracle.RunBlockOracle(ctx, bot, dial)
	go oracle.RunMempoolStream(ctx, bot, dial, cfg.CallerAddress, cfg.AdminAddress)
	go oracle.RunPairOracle(ctx, bot, oracle.PairOracleConfig{
		WETH:           cfg.WETH,
		ChainConfig:    chainConfig,
		MinWethReserve: cfg.MinWethReserve,
		MaxWethReserve: cfg.MaxWethReserve,
	})
	go oracle.RunNonceOracle(ctx, bot, cfg.CallerAddress)
	go oracle.RunForkDbOracle(ctx, bot)

	go sniper.New(bot, sniperDeps).Run(ctx)
	go sniper.NewRetrySniper(bot, sniper.RetryDeps{
		Deps:           sniperDeps,
		MaxConcurrent:  8,
		MinerTipToSell: cfg.MinerTipToSell.ToBig(),
	}, cfg.MaxSnipeRetries).Run(ctx)

	go strategy.NewSellOracle(bot, strategyDeps, 8).Run(ctx)
	go strategy.NewAntiRug(bot, strategyDeps).Run(ctx)
	go strategy.NewAntiHoneypot(bot, strategyDeps).Run(ctx)

	log.Info("sniper: running", "contract", cfg.ContractAddress, "chainID", cfg.ChainID)

	<-ctx.Done()
	bot.Shutdown()
	log.Info("sniper: shutdown complete")
	return nil
}

