// Package sizing turns an entry signal into a concrete hedge-ratio-
// weighted position and gates it on post-fee profitability. Rejections
// here are routine outcomes, not faults: the caller surfaces them as
// events and carries on with the rest of the universe.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"github.com/pairsight/statarb/internal/fees"
	"github.com/pairsight/statarb/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrZeroQuantity means rounding down to whole shares left a leg empty.
	ErrZeroQuantity = errors.New("position rounds to zero quantity")
	// ErrUnprofitableTrade means the expected reversion move does not clear
	// round-trip fees plus the minimum profit margin.
	ErrUnprofitableTrade = errors.New("expected move does not cover fees")
)

// Request carries everything needed to size and validate one entry.
// Configuration values are snapshot into the request; mutating config
// mid-evaluation cannot affect a sizing already in flight.
type Request struct {
	Signal        models.Signal
	Capital       decimal.Decimal
	PriceA        float64
	PriceB        float64
	HedgeRatio    float64
	RollingStdDev float64
	ExitZ         float64
}

// Report describes the profitability arithmetic behind a decision, for
// the event log and dashboard.
type Report struct {
	ExpectedGross decimal.Decimal
	RoundTripFees decimal.Decimal
	ExpectedNet   decimal.Decimal
	NetPct        decimal.Decimal
	Invested      decimal.Decimal
}

// Sizer sizes positions and validates them against the fee model
type Sizer struct {
	calc           *fees.Calculator
	maxPositionPct decimal.Decimal
	minProfitPct   decimal.Decimal
	logger         *zap.Logger
}

// NewSizer creates a sizer. maxPositionPct caps the share of pair capital
// deployed per entry; minProfitPct is the net-of-fees profit floor as a
// fraction of invested capital.
func NewSizer(calc *fees.Calculator, maxPositionPct, minProfitPct float64, logger *zap.Logger) *Sizer {
	return &Sizer{
		calc:           calc,
		maxPositionPct: decimal.NewFromFloat(maxPositionPct),
		minProfitPct:   decimal.NewFromFloat(minProfitPct),
		logger:         logger.With(zap.String("component", "sizer")),
	}
}

// Size proposes a position for an entry signal, or rejects it. The caller
// (the pair's state machine) commits the capital; Size has no side
// effects beyond the returned proposal.
func (s *Sizer) Size(req Request) (*models.Position, Report, error) {
	var report Report

	if !req.Signal.Kind.IsEntry() {
		return nil, report, fmt.Errorf("signal %s is not an entry", req.Signal.Kind)
	}
	if req.PriceA <= 0 || req.PriceB <= 0 {
		return nil, report, fmt.Errorf("%w: non-positive prices %.2f/%.2f",
			ErrZeroQuantity, req.PriceA, req.PriceB)
	}

	priceA := decimal.NewFromFloat(req.PriceA)
	priceB := decimal.NewFromFloat(req.PriceB)
	hedge := decimal.NewFromFloat(math.Abs(req.HedgeRatio))

	// One spread unit is one share of B hedged with |hedgeRatio| shares
	// of A. Fit as many whole units as the target exposure allows, then
	// floor each leg to whole shares.
	target := req.Capital.Mul(s.maxPositionPct)
	unitCost := hedge.Mul(priceA).Add(priceB)
	qtyB := target.Div(unitCost).Floor()
	qtyA := hedge.Mul(qtyB).Floor()

	one := decimal.NewFromInt(1)
	if qtyA.LessThan(one) || qtyB.LessThan(one) {
		return nil, report, fmt.Errorf("%w: qtyA=%s qtyB=%s",
			ErrZeroQuantity, qtyA.String(), qtyB.String())
	}

	notionalA := qtyA.Mul(priceA)
	notionalB := qtyB.Mul(priceB)
	report.Invested = notionalA.Add(notionalB)

	sideA, sideB := entryLegs(req.Signal.Kind)
	entryFees := s.calc.Compute(notionalA, sideA, models.Intraday).
		Add(s.calc.Compute(notionalB, sideB, models.Intraday))
	roundTrip := s.calc.RoundTrip(notionalA, notionalB, sideA, sideB, models.Intraday)
	report.RoundTripFees = roundTrip.Total

	// Expected reversion: the distance from the entry z-score back to the
	// exit threshold, converted to price terms. Pre-trade estimate only.
	moveZ := math.Abs(req.Signal.ZScore) - req.ExitZ
	if moveZ < 0 {
		moveZ = 0
	}
	report.ExpectedGross = decimal.NewFromFloat(moveZ * req.RollingStdDev).Mul(qtyB)
	report.ExpectedNet = report.ExpectedGross.Sub(roundTrip.Total)
	if report.Invested.IsPositive() {
		report.NetPct = report.ExpectedNet.Div(report.Invested)
	}

	if !report.ExpectedGross.GreaterThan(roundTrip.Total) {
		return nil, report, fmt.Errorf("%w: expected gross %s vs fees %s",
			ErrUnprofitableTrade, report.ExpectedGross.StringFixed(2), roundTrip.Total.StringFixed(2))
	}
	if report.NetPct.LessThan(s.minProfitPct) {
		return nil, report, fmt.Errorf("%w: expected net %s%% below floor %s%%",
			ErrUnprofitableTrade,
			report.NetPct.Mul(decimal.NewFromInt(100)).StringFixed(3),
			s.minProfitPct.Mul(decimal.NewFromInt(100)).StringFixed(3))
	}

	s.logger.Debug("position sized",
		zap.String("pair", req.Signal.PairKey),
		zap.String("side", string(req.Signal.Kind)),
		zap.String("qty_a", qtyA.String()),
		zap.String("qty_b", qtyB.String()),
		zap.String("expected_net", report.ExpectedNet.StringFixed(2)),
	)

	return &models.Position{
		PairKey:          req.Signal.PairKey,
		Side:             req.Signal.Kind,
		QuantityA:        qtyA,
		QuantityB:        qtyB,
		EntryPriceA:      priceA,
		EntryPriceB:      priceB,
		EntryZScore:      req.Signal.ZScore,
		EntryFees:        entryFees,
		CapitalAllocated: report.Invested,
		State:            models.PositionOpen,
	}, report, nil
}

// entryLegs maps a spread direction to order sides: long spread buys B
// against a short A leg, short spread sells B against a long A leg.
func entryLegs(kind models.SignalKind) (sideA, sideB models.OrderSide) {
	if kind == models.SignalLongSpread {
		return models.Sell, models.Buy
	}
	return models.Buy, models.Sell
}
