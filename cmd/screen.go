package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pairsight/statarb/pkg/formatters"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(screenCmd)
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen the configured universe for cointegrated pairs",
	Long: `Fetches the lookback history for every configured pair, runs the
Engle-Granger two-step test and prints the universe ranked by p-value.`,
	RunE: runScreen,
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	if err := universe.ScreenAll(ctx, dataClient); err != nil {
		return fmt.Errorf("screening failed: %w", err)
	}

	fmt.Println(formatters.FormatScreeningTable(universe.Ranked()))
	fmt.Printf("\nScreened %d pairs in %dms\n",
		len(universe.Machines()), time.Since(start).Milliseconds())

	return nil
}
