package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairsight/statarb/pkg/formatters"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	monitorCmd.Flags().Bool("no-stream", false, "Poll REST for prices instead of the websocket stream")

	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Screen the universe, then watch live prices for signals",
	Long: `Runs the cointegration screen, subscribes to the bar stream for
every viable pair's legs and re-evaluates the universe on each refresh
interval. Entries and exits are printed as they are decided. Ctrl-C to
stop.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := universe.ScreenAll(ctx, dataClient); err != nil {
		return fmt.Errorf("screening failed: %w", err)
	}
	fmt.Println(formatters.FormatScreeningTable(universe.Ranked()))

	viable := universe.Viable()
	if len(viable) == 0 {
		fmt.Println("No viable pairs to monitor")
		return nil
	}

	symbols := make(map[string]bool)
	for _, m := range viable {
		symbols[m.Pair().SymbolA] = true
		symbols[m.Pair().SymbolB] = true
	}
	watched := make([]string, 0, len(symbols))
	for s := range symbols {
		watched = append(watched, s)
	}

	noStream, _ := cmd.Flags().GetBool("no-stream")
	if !noStream {
		if err := streamClient.Connect(); err != nil {
			return fmt.Errorf("stream connect: %w", err)
		}
		defer streamClient.Close()
		if err := streamClient.Subscribe(watched); err != nil {
			return fmt.Errorf("stream subscribe: %w", err)
		}
	}

	fmt.Printf("Monitoring %d pairs (%d symbols), refresh %s\n",
		len(viable), len(watched), cfg.RefreshInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down")
			fmt.Println(formatters.FormatPositionsTable(universe.Machines()))
			return nil

		case ts := <-ticker.C:
			prices := dataCache.Snapshot(watched)
			if noStream {
				prices = pollPrices(ctx, watched)
			}
			if len(prices) == 0 {
				logger.Warn("no fresh prices this interval")
				continue
			}
			if err := universe.OnTick(ctx, prices, ts); err != nil {
				logger.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// pollPrices fetches latest prices over REST, skipping failed symbols.
func pollPrices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		p, err := dataClient.LatestPrice(ctx, s)
		if err != nil {
			logger.Warn("price fetch failed", zap.String("symbol", s), zap.Error(err))
			continue
		}
		out[s] = p
	}
	return out
}
