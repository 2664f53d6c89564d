package cmd

import (
	"context"
	"fmt"

	"github.com/pairsight/statarb/internal/coint"
	"github.com/pairsight/statarb/internal/models"
	"github.com/pairsight/statarb/pkg/formatters"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbolA] [symbolB]",
	Short: "Run the cointegration test on a single pair",
	Long: `Fetches the lookback history for two symbols and prints the full
Engle-Granger result: hedge ratio, intercept, ADF statistic, p-value
and correlation. The pair does not need to be in the configured
universe.`,
	Args: cobra.ExactArgs(2),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	symbolA, symbolB := args[0], args[1]
	if symbolA == symbolB {
		return fmt.Errorf("pair %s/%s is degenerate", symbolA, symbolB)
	}
	ctx := context.Background()

	key := models.PairKey(symbolA, symbolB)
	if m, ok := universe.Machine(key); ok {
		// Configured pair: screen through its machine so state advances.
		seriesA, err := dataClient.History(ctx, m.Pair().SymbolA, cfg.LookbackDays)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", m.Pair().SymbolA, err)
		}
		seriesB, err := dataClient.History(ctx, m.Pair().SymbolB, cfg.LookbackDays)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", m.Pair().SymbolB, err)
		}
		if err := m.Screen(seriesA, seriesB, cfg.LookbackDays); err != nil {
			return err
		}
		fmt.Println(formatters.FormatAnalysis(m.Pair()))
		return nil
	}

	seriesA, err := dataClient.History(ctx, symbolA, cfg.LookbackDays)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbolA, err)
	}
	seriesB, err := dataClient.History(ctx, symbolB, cfg.LookbackDays)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbolB, err)
	}

	analyzer := coint.NewAnalyzer(cfg.PValueThreshold, 1, logger)
	result, err := analyzer.Analyze(seriesA, seriesB, cfg.LookbackDays)
	if err != nil {
		return fmt.Errorf("analyze %s/%s: %w", symbolA, symbolB, err)
	}

	pair := &models.Pair{SymbolA: symbolA, SymbolB: symbolB, Result: result}
	if result.IsCointegrated {
		pair.State = models.PairScreenedViable
	} else {
		pair.State = models.PairScreenedRejected
	}
	fmt.Println(formatters.FormatAnalysis(pair))
	return nil
}
