// Package coint implements Engle-Granger two-step cointegration testing
// for instrument pairs: an OLS regression of one leg on the other followed
// by an augmented Dickey-Fuller unit-root test on the residual spread.
package coint

import (
	"errors"
	"fmt"
	"math"

	"github.com/pairsight/statarb/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientData means a series has fewer aligned points than the window.
	ErrInsufficientData = errors.New("insufficient aligned data for analysis")
	// ErrAlignment means the two series' timestamps do not match one-to-one.
	ErrAlignment = errors.New("price series timestamps are not aligned")
	// ErrDegenerateSeries means the regressor has no variance over the window,
	// so the hedge ratio is undefined.
	ErrDegenerateSeries = errors.New("series has zero variance over the window")
)

// varianceEpsilon is the floor below which a series is considered constant.
const varianceEpsilon = 1e-12

// Analyzer runs cointegration tests. It is stateless and safe for
// concurrent use across pairs.
type Analyzer struct {
	pThreshold float64
	adfLags    int
	logger     *zap.Logger
}

// NewAnalyzer creates an analyzer with the given cointegration p-value
// threshold. adfLags is the fixed augmentation order of the unit-root
// regression; 1 is the usual choice for daily closes.
func NewAnalyzer(pThreshold float64, adfLags int, logger *zap.Logger) *Analyzer {
	if adfLags < 0 {
		adfLags = 0
	}
	return &Analyzer{
		pThreshold: pThreshold,
		adfLags:    adfLags,
		logger:     logger.With(zap.String("component", "coint_analyzer")),
	}
}

// Analyze estimates the long-run relationship B = hedgeRatio*A + intercept
// over the trailing window and tests the residual spread for stationarity.
// Deterministic: identical inputs produce identical results.
func (a *Analyzer) Analyze(seriesA, seriesB *models.PriceSeries, window int) (*models.CointegrationResult, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: window %d is too small", ErrInsufficientData, window)
	}
	if seriesA.Len() < window || seriesB.Len() < window {
		return nil, fmt.Errorf("%w: need %d points, have %d/%d",
			ErrInsufficientData, window, seriesA.Len(), seriesB.Len())
	}

	tailA := seriesA.Tail(window)
	tailB := seriesB.Tail(window)
	for i := range tailA.Points {
		if !tailA.Points[i].Timestamp.Equal(tailB.Points[i].Timestamp) {
			return nil, fmt.Errorf("%w: %s vs %s at index %d",
				ErrAlignment,
				tailA.Points[i].Timestamp.Format("2006-01-02"),
				tailB.Points[i].Timestamp.Format("2006-01-02"), i)
		}
	}

	x := tailA.Prices()
	y := tailB.Prices()

	hedge, intercept, corr, err := regress(x, y)
	if err != nil {
		return nil, err
	}

	spread := make([]float64, window)
	for i := range x {
		spread[i] = y[i] - (hedge*x[i] + intercept)
	}

	stat, pValue := adfTest(spread, a.adfLags)

	result := &models.CointegrationResult{
		HedgeRatio:     hedge,
		Intercept:      intercept,
		ADFStatistic:   stat,
		PValue:         pValue,
		IsCointegrated: pValue < a.pThreshold,
		Correlation:    corr,
		SampleSize:     window,
	}

	a.logger.Debug("pair analyzed",
		zap.String("symbol_a", seriesA.Symbol),
		zap.String("symbol_b", seriesB.Symbol),
		zap.Float64("hedge_ratio", hedge),
		zap.Float64("p_value", pValue),
		zap.Bool("cointegrated", result.IsCointegrated),
	)

	return result, nil
}

// regress fits y = slope*x + intercept by ordinary least squares and also
// reports the Pearson correlation of the two series.
func regress(x, y []float64) (slope, intercept, corr float64, err error) {
	n := float64(len(x))

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var sxx, syy, sxy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	if sxx < varianceEpsilon {
		return 0, 0, 0, fmt.Errorf("%w: regressor is constant", ErrDegenerateSeries)
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX

	if syy < varianceEpsilon {
		corr = 0
	} else {
		corr = sxy / math.Sqrt(sxx*syy)
	}

	return slope, intercept, corr, nil
}
