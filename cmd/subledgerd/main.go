package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/attova/subledger/internal/api"
	"github.com/attova/subledger/internal/collector"
	"github.com/attova/subledger/internal/config"
	"github.com/attova/subledger/internal/logging"
	"github.com/attova/subledger/internal/pricing"
	"github.com/attova/subledger/internal/processor"
	"github.com/attova/subledger/internal/resolver"
	"github.com/attova/subledger/pkg/chainscan"
	"github.com/attova/subledger/pkg/pricefeed"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "subledgerd",
	Short:   "Subscription ledger reconciliation engine",
	Long:    `subledgerd reconstructs an account's premium entitlement from on-chain payments and processor subscriptions on every check, with no database of its own.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("subledgerd %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <account-key>",
	Short: "Run one subscription check and print the status as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "subledgerd",
	})
	log.Info().Str("version", Version).Msg("Starting subscription ledger engine")

	res := buildResolver(cfg)
	server := api.NewServer(cfg, res)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

func runCheck(accountKey string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "subledgerd",
	})

	res := buildResolver(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.NetworkTimeout+cfg.ProcessorTimeout)
	defer cancel()

	status, err := res.CheckSubscription(ctx, accountKey)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

// buildResolver wires the engine: one explorer client per enabled network,
// a shared price oracle, the Stripe adapter, and the combined resolver.
func buildResolver(cfg *config.Config) *resolver.Resolver {
	feed := pricefeed.NewClient(pricefeed.ClientConfig{
		BaseURL: cfg.PriceFeedURL,
		APIKey:  cfg.PriceFeedAPIKey,
	})
	oracle := pricing.NewOracle(feed, pricing.NewCache(0, 0))

	var networks []collector.Network
	for _, nc := range cfg.EnabledNetworks() {
		reader := chainscan.NewClient(chainscan.ClientConfig{
			BaseURL: cfg.ExplorerURL,
			ChainID: nc.ChainID,
			APIKey:  cfg.ExplorerAPIKey,
		})
		tokens := make([]collector.TokenContract, 0, len(nc.Tokens))
		for _, tc := range nc.Tokens {
			tokens = append(tokens, collector.TokenContract{
				Token:    tc.Token,
				Address:  tc.Address,
				Decimals: tc.Decimals,
			})
		}
		networks = append(networks, collector.Network{
			Name:   nc.Name,
			Tokens: tokens,
			Reader: reader,
		})
	}

	coll := collector.New(networks, oracle, collector.Settings{
		ReceivingAddress: cfg.ReceivingAddress,
		MonthlyPriceUSD:  cfg.MonthlyPriceUSD,
		DaysPerPeriod:    cfg.DaysPerPeriod,
		MinPaymentUSD:    cfg.MinPaymentUSD,
	})

	adapter := processor.NewAdapter(
		processor.NewStripeBilling(cfg.StripeAPIKey),
		cfg.MonthlyPriceUSD,
		cfg.DaysPerPeriod,
	)

	return resolver.New(coll, adapter, resolver.Timeouts{
		Network:   cfg.NetworkTimeout,
		Processor: cfg.ProcessorTimeout,
	})
}
