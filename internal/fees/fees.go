// Package fees computes itemized transaction costs for equity orders.
// The calculation is pure arithmetic over configured rates; formatting
// and display belong to the presentation layer.
package fees

import (
	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/models"
	"github.com/shopspring/decimal"
)

// crore is the notional base for per-crore exchange and regulator rates.
var crore = decimal.NewFromInt(10000000)

// Calculator computes fee breakdowns from a rate card. Pure and
// deterministic; safe for concurrent use.
type Calculator struct {
	intradayBrokeragePct decimal.Decimal
	brokerageCap         decimal.Decimal
	sttIntradaySellPct   decimal.Decimal
	sttDeliveryPct       decimal.Decimal
	exchangePerCrore     decimal.Decimal
	sebiPerCrore         decimal.Decimal
	stampIntradayCrore   decimal.Decimal
	stampDeliveryCrore   decimal.Decimal
	gstPct               decimal.Decimal
}

// NewCalculator builds a calculator from the configured rate card.
func NewCalculator(rates config.FeeRates) *Calculator {
	return &Calculator{
		intradayBrokeragePct: decimal.NewFromFloat(rates.IntradayBrokeragePct),
		brokerageCap:         decimal.NewFromFloat(rates.BrokerageCapPerOrder),
		sttIntradaySellPct:   decimal.NewFromFloat(rates.STTIntradaySellPct),
		sttDeliveryPct:       decimal.NewFromFloat(rates.STTDeliveryPct),
		exchangePerCrore:     decimal.NewFromFloat(rates.ExchangePerCrore),
		sebiPerCrore:         decimal.NewFromFloat(rates.SEBIPerCrore),
		stampIntradayCrore:   decimal.NewFromFloat(rates.StampDutyIntradayPerCrore),
		stampDeliveryCrore:   decimal.NewFromFloat(rates.StampDutyDeliveryPerCrore),
		gstPct:               decimal.NewFromFloat(rates.GSTPct),
	}
}

// Compute itemizes all charges for one order leg. Each component is
// rounded half-up to the paise; GST applies to brokerage and exchange
// charges only (STT, SEBI charges and stamp duty are outside the GST
// base) and Total is the sum of the rounded components.
func (c *Calculator) Compute(notional decimal.Decimal, side models.OrderSide, product models.ProductType) models.FeeBreakdown {
	brokerage := c.brokerage(notional, product)
	stt := c.stt(notional, side, product)
	exchange := notional.Mul(c.exchangePerCrore).Div(crore).Round(2)
	sebi := notional.Mul(c.sebiPerCrore).Div(crore).Round(2)
	stamp := c.stampDuty(notional, side, product)
	gst := brokerage.Add(exchange).Mul(c.gstPct).Round(2)

	total := brokerage.Add(stt).Add(exchange).Add(sebi).Add(stamp).Add(gst)

	return models.FeeBreakdown{
		Brokerage:       brokerage,
		STT:             stt,
		ExchangeCharges: exchange,
		SEBICharges:     sebi,
		StampDuty:       stamp,
		GST:             gst,
		Total:           total,
	}
}

// RoundTrip sums the fees of an entry leg pair and the estimated reverse
// legs on exit, all at the same notionals.
func (c *Calculator) RoundTrip(notionalA, notionalB decimal.Decimal, sideA, sideB models.OrderSide, product models.ProductType) models.FeeBreakdown {
	entry := c.Compute(notionalA, sideA, product).Add(c.Compute(notionalB, sideB, product))
	exit := c.Compute(notionalA, sideA.Opposite(), product).Add(c.Compute(notionalB, sideB.Opposite(), product))
	return entry.Add(exit)
}

func (c *Calculator) brokerage(notional decimal.Decimal, product models.ProductType) decimal.Decimal {
	if product == models.Delivery {
		return decimal.Zero
	}
	pct := notional.Mul(c.intradayBrokeragePct)
	if pct.GreaterThan(c.brokerageCap) {
		pct = c.brokerageCap
	}
	return pct.Round(2)
}

func (c *Calculator) stt(notional decimal.Decimal, side models.OrderSide, product models.ProductType) decimal.Decimal {
	switch {
	case product == models.Delivery:
		// Delivery STT hits both legs.
		return notional.Mul(c.sttDeliveryPct).Round(2)
	case side == models.Sell:
		return notional.Mul(c.sttIntradaySellPct).Round(2)
	default:
		return decimal.Zero
	}
}

func (c *Calculator) stampDuty(notional decimal.Decimal, side models.OrderSide, product models.ProductType) decimal.Decimal {
	if side != models.Buy {
		return decimal.Zero
	}
	rate := c.stampIntradayCrore
	if product == models.Delivery {
		rate = c.stampDeliveryCrore
	}
	return notional.Mul(rate).Div(crore).Round(2)
}
