package fees

import (
	"testing"

	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/models"
	"github.com/shopspring/decimal"
)

func testRates() config.FeeRates {
	return config.FeeRates{
		IntradayBrokeragePct:      0.0003,
		BrokerageCapPerOrder:      20.0,
		STTIntradaySellPct:        0.00025,
		STTDeliveryPct:            0.001,
		ExchangePerCrore:          297.0,
		SEBIPerCrore:              10.0,
		StampDutyIntradayPerCrore: 300.0,
		StampDutyDeliveryPerCrore: 1500.0,
		GSTPct:                    0.18,
	}
}

func TestIntradaySellBreakdown(t *testing.T) {
	calc := NewCalculator(testRates())

	f := calc.Compute(decimal.NewFromInt(150000), models.Sell, models.Intraday)

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"brokerage", f.Brokerage, "20"},
		{"stt", f.STT, "37.5"},
		{"exchange", f.ExchangeCharges, "4.46"},
		{"sebi", f.SEBICharges, "0.15"},
		{"stamp", f.StampDuty, "0"},
		{"gst", f.GST, "4.4"},
		{"total", f.Total, "66.51"},
	}
	for _, c := range checks {
		want, _ := decimal.NewFromString(c.want)
		if !c.got.Equal(want) {
			t.Errorf("Expected %s=%s, got %s", c.name, c.want, c.got.String())
		}
	}
}

func TestIntradayBuyBreakdown(t *testing.T) {
	calc := NewCalculator(testRates())

	f := calc.Compute(decimal.NewFromInt(150000), models.Buy, models.Intraday)

	if !f.STT.IsZero() {
		t.Errorf("Expected zero STT on intraday buy, got %s", f.STT.String())
	}
	// 150000 * 300 / 1e7 = 4.50
	if !f.StampDuty.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("Expected stamp duty=4.50, got %s", f.StampDuty.String())
	}
	if !f.Total.Equal(decimal.RequireFromString("33.51")) {
		t.Errorf("Expected total=33.51, got %s", f.Total.String())
	}
}

func TestBrokerageCap(t *testing.T) {
	calc := NewCalculator(testRates())

	// 0.03% of 10000 is 3, below the 20 cap.
	small := calc.Compute(decimal.NewFromInt(10000), models.Buy, models.Intraday)
	if !small.Brokerage.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected brokerage=3, got %s", small.Brokerage.String())
	}

	// 0.03% of 1000000 is 300, capped at 20.
	large := calc.Compute(decimal.NewFromInt(1000000), models.Buy, models.Intraday)
	if !large.Brokerage.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected capped brokerage=20, got %s", large.Brokerage.String())
	}
}

func TestDeliverySTTBothSides(t *testing.T) {
	calc := NewCalculator(testRates())
	notional := decimal.NewFromInt(150000)

	buy := calc.Compute(notional, models.Buy, models.Delivery)
	sell := calc.Compute(notional, models.Sell, models.Delivery)

	want := decimal.NewFromInt(150) // 0.1% of 150000
	if !buy.STT.Equal(want) {
		t.Errorf("Expected delivery buy STT=150, got %s", buy.STT.String())
	}
	if !sell.STT.Equal(want) {
		t.Errorf("Expected delivery sell STT=150, got %s", sell.STT.String())
	}

	if !buy.Brokerage.IsZero() || !sell.Brokerage.IsZero() {
		t.Error("Expected zero delivery brokerage")
	}

	// Delivery stamp duty on the buy leg only, at the higher rate.
	if !buy.StampDuty.Equal(decimal.RequireFromString("22.5")) {
		t.Errorf("Expected delivery stamp duty=22.50, got %s", buy.StampDuty.String())
	}
	if !sell.StampDuty.IsZero() {
		t.Errorf("Expected zero stamp duty on sell, got %s", sell.StampDuty.String())
	}
}

func TestGSTBaseExcludesTaxes(t *testing.T) {
	calc := NewCalculator(testRates())

	f := calc.Compute(decimal.NewFromInt(150000), models.Sell, models.Intraday)

	// GST applies to brokerage + exchange charges only: (20 + 4.46) * 0.18.
	want := f.Brokerage.Add(f.ExchangeCharges).Mul(decimal.NewFromFloat(0.18)).Round(2)
	if !f.GST.Equal(want) {
		t.Errorf("Expected GST=%s, got %s", want.String(), f.GST.String())
	}
}

func TestTotalIsSumOfComponents(t *testing.T) {
	calc := NewCalculator(testRates())

	for _, side := range []models.OrderSide{models.Buy, models.Sell} {
		for _, product := range []models.ProductType{models.Intraday, models.Delivery} {
			f := calc.Compute(decimal.NewFromInt(237500), side, product)
			sum := f.Brokerage.Add(f.STT).Add(f.ExchangeCharges).
				Add(f.SEBICharges).Add(f.StampDuty).Add(f.GST)
			if !f.Total.Equal(sum) {
				t.Errorf("%s/%s: total %s != component sum %s",
					side, product, f.Total.String(), sum.String())
			}
		}
	}
}

func TestTotalMonotonicInNotional(t *testing.T) {
	calc := NewCalculator(testRates())

	prev := decimal.Zero
	for _, notional := range []int64{1000, 10000, 50000, 150000, 500000, 2000000} {
		f := calc.Compute(decimal.NewFromInt(notional), models.Sell, models.Intraday)
		if f.Total.LessThan(prev) {
			t.Errorf("Total decreased at notional %d: %s < %s",
				notional, f.Total.String(), prev.String())
		}
		prev = f.Total
	}
}

func TestRoundTripCoversFourLegs(t *testing.T) {
	calc := NewCalculator(testRates())
	notionalA := decimal.NewFromInt(49700)
	notionalB := decimal.NewFromInt(50197)

	rt := calc.RoundTrip(notionalA, notionalB, models.Buy, models.Sell, models.Intraday)

	want := calc.Compute(notionalA, models.Buy, models.Intraday).
		Add(calc.Compute(notionalB, models.Sell, models.Intraday)).
		Add(calc.Compute(notionalA, models.Sell, models.Intraday)).
		Add(calc.Compute(notionalB, models.Buy, models.Intraday))

	if !rt.Total.Equal(want.Total) {
		t.Errorf("Expected round trip total=%s, got %s", want.Total.String(), rt.Total.String())
	}
}
