package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pairsight/statarb/internal/cache"
	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/engine"
	"github.com/pairsight/statarb/internal/fees"
	"github.com/pairsight/statarb/internal/marketdata"
	"github.com/pairsight/statarb/pkg/formatters"
)

var (
	// Global instances
	cfg           *config.Config
	dataCache     *cache.Cache
	dataClient    *marketdata.Client
	streamClient  *marketdata.StreamClient
	feeCalculator *fees.Calculator
	universe      *engine.Universe
	logger        *zap.Logger

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "statarb",
	Short: "Statistical arbitrage decision engine for NSE equity pairs",
	Long: `statarb screens sector pairs for cointegration, watches the spread
z-score and decides entries and exits net of the full Indian fee stack.
It is a decision engine: it tells you what to do and why, it does not
place orders.`,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogger)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./statarb.yaml)")
}

// initLogger configures logging: default INFO, DEBUG if DEBUG env is truthy
func initLogger() {
	verbose := false
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" || v == "yes" {
		verbose = true
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
}

// initializeApp sets up all dependencies
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataCache = cache.NewCache(cfg.CacheTTL)
	dataClient = marketdata.NewClient(cfg, dataCache)
	streamClient = marketdata.NewStreamClient(cfg, dataCache, logger)
	feeCalculator = fees.NewCalculator(cfg.Fees)
	universe = engine.NewUniverse(cfg, logEvents, logger)

	return nil
}

// logEvents is the default engine sink: decisions go to the structured
// log, notable ones also to stdout.
func logEvents(ev engine.Event) {
	switch ev.Type {
	case engine.EventSignal:
		logger.Info("signal",
			zap.String("pair", ev.PairKey),
			zap.String("kind", string(ev.Signal.Kind)),
			zap.Float64("z_score", ev.Signal.ZScore))
	case engine.EventPositionOpened:
		logger.Info("position opened",
			zap.String("pair", ev.PairKey),
			zap.String("side", string(ev.Position.Side)),
			zap.Float64("entry_z", ev.Position.EntryZScore))
		fmt.Printf("%s OPEN %s qtyA=%s qtyB=%s fees=%s\n",
			formatters.FormatTimestamp(ev.Timestamp),
			formatters.FormatSignalKind(ev.Position.Side),
			ev.Position.QuantityA.String(),
			ev.Position.QuantityB.String(),
			formatters.FormatRupees(ev.Position.EntryFees.Total))
	case engine.EventPositionClosed:
		logger.Info("position closed",
			zap.String("pair", ev.PairKey),
			zap.String("trigger", string(ev.Signal.Kind)),
			zap.Float64("exit_z", ev.Signal.ZScore))
		fmt.Printf("%s CLOSE %s via %s\n",
			formatters.FormatTimestamp(ev.Timestamp),
			ev.PairKey,
			formatters.FormatSignalKind(ev.Signal.Kind))
	case engine.EventEntryRejected:
		logger.Info("entry rejected",
			zap.String("pair", ev.PairKey),
			zap.String("reason", ev.Reason))
	case engine.EventWarning:
		logger.Warn(ev.Reason, zap.String("pair", ev.PairKey))
	case engine.EventPairScreened:
		logger.Debug("pair screened",
			zap.String("pair", ev.PairKey),
			zap.String("state", string(ev.State)))
	}
}
