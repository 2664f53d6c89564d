package cmd

import (
	"fmt"
	"strings"

	"github.com/pairsight/statarb/internal/models"
	"github.com/pairsight/statarb/pkg/formatters"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func init() {
	feesCmd.Flags().String("side", "sell", "Order side (buy, sell)")
	feesCmd.Flags().String("product", "intraday", "Product type (intraday, delivery)")
	feesCmd.Flags().Bool("roundtrip", false, "Show the round-trip total for the notional on both legs")

	rootCmd.AddCommand(feesCmd)
}

var feesCmd = &cobra.Command{
	Use:   "fees [notional]",
	Short: "Itemize transaction costs for an order notional",
	Long: `Prints the full fee breakdown (brokerage, STT, exchange charges,
SEBI charges, stamp duty, GST) for a single order of the given rupee
notional under the configured rate card.`,
	Args: cobra.ExactArgs(1),
	RunE: runFees,
}

func runFees(cmd *cobra.Command, args []string) error {
	notional, err := decimal.NewFromString(args[0])
	if err != nil || !notional.IsPositive() {
		return fmt.Errorf("notional must be a positive amount, got %q", args[0])
	}

	sideStr, _ := cmd.Flags().GetString("side")
	side := models.OrderSide(strings.ToLower(sideStr))
	if side != models.Buy && side != models.Sell {
		return fmt.Errorf("side must be buy or sell, got %q", sideStr)
	}

	productStr, _ := cmd.Flags().GetString("product")
	product := models.ProductType(strings.ToLower(productStr))
	if product != models.Intraday && product != models.Delivery {
		return fmt.Errorf("product must be intraday or delivery, got %q", productStr)
	}

	breakdown := feeCalculator.Compute(notional, side, product)
	fmt.Println(formatters.FormatFeeTable(notional, side, product, breakdown))

	if roundtrip, _ := cmd.Flags().GetBool("roundtrip"); roundtrip {
		rt := feeCalculator.Compute(notional, side, product).
			Add(feeCalculator.Compute(notional, side.Opposite(), product))
		fmt.Printf("\nRound trip (entry + exit): %s\n", formatters.FormatRupees(rt.Total))
	}

	return nil
}
