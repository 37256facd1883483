// cryptodash serves a live crypto market dashboard with a rule-based
// question assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"cryptodash/config"
	"cryptodash/internal/assistant"
	"cryptodash/internal/dashboard"
	"cryptodash/internal/format"
	"cryptodash/internal/market"
	"cryptodash/internal/market/derived"
	"cryptodash/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cryptodash",
	Short:         "Live crypto market dashboard and assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Log.Level = lvl
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(overviewCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cryptodash %s (%s)\n", version, commit)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh market data and serve the HTTP/WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := cfg.ResolveSecrets(ctx, nil); err != nil {
			return fmt.Errorf("failed to resolve secrets: %w", err)
		}

		d, err := dashboard.New(cfg, log)
		if err != nil {
			return err
		}

		log.Info("starting cryptodash",
			zap.String("version", version),
			zap.String("addr", cfg.Server.Addr),
			zap.Duration("listing_interval", cfg.Refresh.ListingInterval),
			zap.Duration("global_interval", cfg.Refresh.GlobalInterval),
		)
		return d.Run(ctx)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question with the built-in assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		if strings.TrimSpace(query) == "" {
			return assistant.ErrEmptyQuery
		}
		category, answer := assistant.NewDefaultResponder().Match(query)
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", category, answer)
		return nil
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Fetch the market once and print the overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer log.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.CoinGecko.Timeout)
		defer cancel()

		if err := cfg.ResolveSecrets(ctx, nil); err != nil {
			return fmt.Errorf("failed to resolve secrets: %w", err)
		}
		gw, err := dashboard.NewGateway(cfg, log)
		if err != nil {
			return err
		}
		params, err := dashboard.Params(cfg)
		if err != nil {
			return err
		}

		var (
			quotes []market.AssetQuote
			global *market.GlobalSnapshot
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			quotes, err = gw.FetchListing(gctx, cfg.Market.ListingLimit)
			return err
		})
		g.Go(func() error {
			var err error
			global, err = gw.FetchGlobal(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		printOverview(cmd, derived.Compute(*global, params), quotes, params.SourceCurrency)
		return nil
	},
}

func printOverview(cmd *cobra.Command, m derived.Metrics, quotes []market.AssetQuote, listingCurrency string) {
	f := format.German()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Marktkapitalisierung: %s (%s)\n", f.Compact(m.TotalMarketCap, m.Currency), f.Change(m.MarketCapChange24h))
	fmt.Fprintf(out, "24h Volumen:          %s\n", f.Compact(m.TotalVolume, m.Currency))
	fmt.Fprintf(out, "Dominanz:             BTC %s  ETH %s  Stablecoins %s  Andere %s\n\n",
		f.Percent(m.Bitcoin, 1), f.Percent(m.Ethereum, 1), f.Percent(m.Stablecoin, 1), f.Percent(m.Other, 1))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tName\tPreis\t24h\tMarktkap.")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%d\t%s (%s)\t%s\t%s\t%s\n",
			q.MarketCapRank, q.Name, strings.ToUpper(q.Symbol),
			f.Currency(q.CurrentPrice, listingCurrency),
			f.Change(q.PriceChangePercentage24h),
			f.Compact(q.MarketCap, listingCurrency))
	}
	tw.Flush()
}
