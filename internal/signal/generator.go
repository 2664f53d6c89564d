// Package signal converts spread observations into z-scores and trading
// signals. Rolling statistics use the sample (N-1) standard deviation;
// the same convention applies everywhere z-scores are produced so that
// backtest and live evaluation classify identically at the boundaries.
package signal

import (
	"math"
	"time"

	"github.com/pairsight/statarb/internal/models"
	"go.uber.org/zap"
)

// stdDevEpsilon guards the z-score division. A spread flatter than this
// yields HOLD rather than a divide-by-zero outcome.
const stdDevEpsilon = 1e-9

// Thresholds are the z-score boundaries for classification. Bounds are
// inclusive: a z-score exactly at a threshold satisfies it.
type Thresholds struct {
	Entry float64
	Exit  float64
	Stop  float64
}

// RollingSpread is a fixed-size trailing window of spread values. Each
// pair's state machine owns exactly one instance; it is not safe for
// concurrent use.
type RollingSpread struct {
	window int
	values []float64
}

// NewRollingSpread creates an empty window of the given length.
func NewRollingSpread(window int) *RollingSpread {
	return &RollingSpread{
		window: window,
		values: make([]float64, 0, window),
	}
}

// Push appends a spread value, evicting the oldest once the window is full.
func (r *RollingSpread) Push(v float64) {
	r.values = append(r.values, v)
	if len(r.values) > r.window {
		r.values = r.values[1:]
	}
}

// Full reports whether the window holds enough values for statistics.
func (r *RollingSpread) Full() bool {
	return len(r.values) >= r.window
}

// Len returns the current number of values held.
func (r *RollingSpread) Len() int {
	return len(r.values)
}

// Stats returns the rolling mean and sample standard deviation.
func (r *RollingSpread) Stats() (mean, stdDev float64) {
	n := len(r.values)
	if n == 0 {
		return 0, 0
	}
	for _, v := range r.values {
		mean += v
	}
	mean /= float64(n)

	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range r.values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// Generator scores spreads and classifies them into signals
type Generator struct {
	thresholds Thresholds
	logger     *zap.Logger
}

// NewGenerator creates a signal generator with the given thresholds.
// Thresholds are validated at config load; the generator trusts them.
func NewGenerator(thresholds Thresholds, logger *zap.Logger) *Generator {
	return &Generator{
		thresholds: thresholds,
		logger:     logger.With(zap.String("component", "signal_generator")),
	}
}

// Score computes the spread for the current tick, folds it into the
// rolling history, and classifies the resulting z-score. positionOpen
// selects between entry and exit rules.
func (g *Generator) Score(pairKey string, priceA, priceB float64, res *models.CointegrationResult, history *RollingSpread, positionOpen bool, now time.Time) (float64, models.Signal) {
	spread := priceB - (res.HedgeRatio*priceA + res.Intercept)
	history.Push(spread)

	hold := models.Signal{PairKey: pairKey, Kind: models.SignalHold, Timestamp: now}

	if !history.Full() {
		return 0, hold
	}

	mean, stdDev := history.Stats()
	if stdDev < stdDevEpsilon {
		g.logger.Debug("flat spread window, holding",
			zap.String("pair", pairKey),
			zap.Float64("spread", spread))
		return 0, hold
	}

	z := (spread - mean) / stdDev
	kind := g.classify(z, positionOpen)

	return z, models.Signal{
		PairKey:   pairKey,
		Kind:      kind,
		ZScore:    z,
		Timestamp: now,
	}
}

// classify applies the threshold policy. With a position open the
// stop-loss rule is checked before mean reversion so it can never be
// starved, whatever the configured thresholds.
func (g *Generator) classify(z float64, positionOpen bool) models.SignalKind {
	abs := math.Abs(z)

	if positionOpen {
		if abs >= g.thresholds.Stop {
			return models.SignalExitStopLoss
		}
		if abs <= g.thresholds.Exit {
			return models.SignalExitMeanReversion
		}
		return models.SignalHold
	}

	if z >= g.thresholds.Entry {
		// Spread rich: short B, long A.
		return models.SignalShortSpread
	}
	if z <= -g.thresholds.Entry {
		// Spread cheap: long B, short A.
		return models.SignalLongSpread
	}
	return models.SignalHold
}
