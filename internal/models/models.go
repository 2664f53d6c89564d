package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Opposite returns the reverse side, used when estimating exit legs.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ProductType distinguishes intraday from delivery trades for fee purposes
type ProductType string

const (
	Intraday ProductType = "intraday"
	Delivery ProductType = "delivery"
)

// SignalKind classifies what the z-score is telling us to do
type SignalKind string

const (
	SignalLongSpread        SignalKind = "LONG_SPREAD"
	SignalShortSpread       SignalKind = "SHORT_SPREAD"
	SignalExitMeanReversion SignalKind = "EXIT_MEAN_REVERSION"
	SignalExitStopLoss      SignalKind = "EXIT_STOP_LOSS"
	SignalHold              SignalKind = "HOLD"
)

// IsEntry reports whether the signal opens a new spread position.
func (k SignalKind) IsEntry() bool {
	return k == SignalLongSpread || k == SignalShortSpread
}

// IsExit reports whether the signal closes an open spread position.
func (k SignalKind) IsExit() bool {
	return k == SignalExitMeanReversion || k == SignalExitStopLoss
}

// PairState is the lifecycle state of a monitored pair
type PairState string

const (
	PairUnscreened       PairState = "UNSCREENED"
	PairScreenedViable   PairState = "SCREENED_VIABLE"
	PairScreenedRejected PairState = "SCREENED_REJECTED"
	PairFlat             PairState = "FLAT"
	PairInPosition       PairState = "IN_POSITION"
	PairClosed           PairState = "CLOSED"
)

// PositionState tracks whether a position is live
type PositionState string

const (
	PositionOpen   PositionState = "OPEN"
	PositionClosed PositionState = "CLOSED"
)

// PricePoint is a single observation in a price series
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// PriceSeries is an ordered, timestamp-aligned sequence of prices for one
// instrument. It is treated as immutable once handed to the analyzer.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of observations.
func (s *PriceSeries) Len() int {
	return len(s.Points)
}

// Tail returns the last n points as a new series sharing the backing array.
func (s *PriceSeries) Tail(n int) *PriceSeries {
	if n >= len(s.Points) {
		return s
	}
	return &PriceSeries{Symbol: s.Symbol, Points: s.Points[len(s.Points)-n:]}
}

// Prices extracts the raw price values.
func (s *PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// CointegrationResult holds the outcome of an Engle-Granger test over one
// lookback window. Results are recomputed when the window rolls forward,
// never mutated in place.
type CointegrationResult struct {
	HedgeRatio     float64 `json:"hedge_ratio"`
	Intercept      float64 `json:"intercept"`
	ADFStatistic   float64 `json:"adf_statistic"`
	PValue         float64 `json:"p_value"`
	IsCointegrated bool    `json:"is_cointegrated"`
	Correlation    float64 `json:"correlation"`
	SampleSize     int     `json:"sample_size"`
}

// Pair is one monitored instrument pair. Identity is the unordered symbol
// combination; PairKey normalizes ordering so a pair is never duplicated
// with the legs swapped.
type Pair struct {
	SymbolA string    `json:"symbol_a"`
	SymbolB string    `json:"symbol_b"`
	Sector  string    `json:"sector"`
	Window  int       `json:"window"`
	State   PairState `json:"state"`

	// Result is nil until the pair has been screened.
	Result        *CointegrationResult `json:"result,omitempty"`
	CurrentZScore float64              `json:"current_z_score"`
}

// PairKey builds the canonical identity for an unordered symbol pair.
func PairKey(symbolA, symbolB string) string {
	if strings.Compare(symbolA, symbolB) > 0 {
		symbolA, symbolB = symbolB, symbolA
	}
	return symbolA + "/" + symbolB
}

// Key returns the pair's canonical identity.
func (p *Pair) Key() string {
	return PairKey(p.SymbolA, p.SymbolB)
}

// Name returns the display name in configured leg order.
func (p *Pair) Name() string {
	return fmt.Sprintf("%s/%s", p.SymbolA, p.SymbolB)
}

// Signal is an immutable classification of a pair at one tick
type Signal struct {
	PairKey   string     `json:"pair_key"`
	Kind      SignalKind `json:"kind"`
	ZScore    float64    `json:"z_score"`
	Timestamp time.Time  `json:"timestamp"`
}

// FeeBreakdown itemizes the transaction costs of a single order leg.
// All amounts are non-negative and Total is the sum of the components.
type FeeBreakdown struct {
	Brokerage       decimal.Decimal `json:"brokerage"`
	STT             decimal.Decimal `json:"stt"`
	ExchangeCharges decimal.Decimal `json:"exchange_charges"`
	SEBICharges     decimal.Decimal `json:"sebi_charges"`
	StampDuty       decimal.Decimal `json:"stamp_duty"`
	GST             decimal.Decimal `json:"gst"`
	Total           decimal.Decimal `json:"total"`
}

// Add combines two breakdowns component-wise, e.g. the two legs of a pair
// entry or the entry and estimated exit of a round trip.
func (f FeeBreakdown) Add(other FeeBreakdown) FeeBreakdown {
	return FeeBreakdown{
		Brokerage:       f.Brokerage.Add(other.Brokerage),
		STT:             f.STT.Add(other.STT),
		ExchangeCharges: f.ExchangeCharges.Add(other.ExchangeCharges),
		SEBICharges:     f.SEBICharges.Add(other.SEBICharges),
		StampDuty:       f.StampDuty.Add(other.StampDuty),
		GST:             f.GST.Add(other.GST),
		Total:           f.Total.Add(other.Total),
	}
}

// Position is an open (or closed) pair trade. Owned exclusively by the
// pair's state machine; at most one open position exists per pair.
type Position struct {
	PairKey          string          `json:"pair_key"`
	Side             SignalKind      `json:"side"` // LONG_SPREAD or SHORT_SPREAD
	QuantityA        decimal.Decimal `json:"quantity_a"`
	QuantityB        decimal.Decimal `json:"quantity_b"`
	EntryPriceA      decimal.Decimal `json:"entry_price_a"`
	EntryPriceB      decimal.Decimal `json:"entry_price_b"`
	EntryZScore      float64         `json:"entry_z_score"`
	EntryFees        FeeBreakdown    `json:"entry_fees"`
	CapitalAllocated decimal.Decimal `json:"capital_allocated"`
	OpenedAt         time.Time       `json:"opened_at"`
	State            PositionState   `json:"state"`
}
