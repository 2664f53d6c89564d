package coint

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/pairsight/statarb/internal/models"
	"go.uber.org/zap"
)

func makeSeries(symbol string, prices []float64) *models.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &models.PriceSeries{Symbol: symbol}
	for i, p := range prices {
		s.Points = append(s.Points, models.PricePoint{
			Timestamp: base.AddDate(0, 0, i),
			Price:     p,
		})
	}
	return s
}

func TestIdenticalSeriesAreCointegrated(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.5
	}
	a := makeSeries("A", prices)
	b := makeSeries("B", prices)

	res, err := analyzer.Analyze(a, b, 60)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if math.Abs(res.HedgeRatio-1.0) > 1e-9 {
		t.Errorf("Expected hedge ratio=1.0, got %v", res.HedgeRatio)
	}
	if math.Abs(res.Intercept) > 1e-6 {
		t.Errorf("Expected intercept~0, got %v", res.Intercept)
	}
	if res.PValue != 0 {
		t.Errorf("Expected p-value=0 for a zero-variance spread, got %v", res.PValue)
	}
	if !res.IsCointegrated {
		t.Error("Expected identical series to be cointegrated")
	}
	if res.SampleSize != 60 {
		t.Errorf("Expected sample size=60, got %d", res.SampleSize)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	rng := rand.New(rand.NewSource(7))
	x := make([]float64, 80)
	y := make([]float64, 80)
	level := 100.0
	for i := range x {
		level += rng.NormFloat64()
		x[i] = level
		y[i] = 2*level + 5 + 0.5*rng.NormFloat64()
	}
	a := makeSeries("A", x)
	b := makeSeries("B", y)

	first, err := analyzer.Analyze(a, b, 80)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	second, err := analyzer.Analyze(a, b, 80)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if *first != *second {
		t.Errorf("Expected identical results, got %+v vs %+v", first, second)
	}
}

func TestSyntheticCointegratedPair(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	// B tracks 2*A + 5 with stationary noise around the relationship.
	rng := rand.New(rand.NewSource(42))
	x := make([]float64, 120)
	y := make([]float64, 120)
	level := 100.0
	for i := range x {
		level += rng.NormFloat64()
		x[i] = level
		y[i] = 2*level + 5 + 0.3*rng.NormFloat64()
	}

	res, err := analyzer.Analyze(makeSeries("A", x), makeSeries("B", y), 120)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if math.Abs(res.HedgeRatio-2.0) > 0.1 {
		t.Errorf("Expected hedge ratio~2.0, got %v", res.HedgeRatio)
	}
	if math.Abs(res.Intercept-5.0) > 5.0 {
		t.Errorf("Expected intercept near 5, got %v", res.Intercept)
	}
	if !res.IsCointegrated {
		t.Errorf("Expected cointegration, got p-value %v (ADF %v)", res.PValue, res.ADFStatistic)
	}
	if res.ADFStatistic >= 0 {
		t.Errorf("Expected negative ADF statistic, got %v", res.ADFStatistic)
	}
	if res.Correlation < 0.9 {
		t.Errorf("Expected strong correlation, got %v", res.Correlation)
	}
}

func TestIndependentWalksProduceValidPValue(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	rng := rand.New(rand.NewSource(11))
	x := make([]float64, 100)
	y := make([]float64, 100)
	lx, ly := 100.0, 200.0
	for i := range x {
		lx += rng.NormFloat64()
		ly += rng.NormFloat64()
		x[i] = lx
		y[i] = ly
	}

	res, err := analyzer.Analyze(makeSeries("A", x), makeSeries("B", y), 100)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if res.PValue < 0 || res.PValue > 1 {
		t.Errorf("P-value out of range: %v", res.PValue)
	}
}

func TestInsufficientData(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	short := makeSeries("A", []float64{1, 2, 3, 4, 5})
	long := makeSeries("B", make([]float64, 60))

	_, err := analyzer.Analyze(short, long, 60)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}

	_, err = analyzer.Analyze(long, long, 1)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for window 1, got %v", err)
	}
}

func TestMisalignedTimestamps(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	a := makeSeries("A", prices)
	b := makeSeries("B", prices)
	b.Points[30].Timestamp = b.Points[30].Timestamp.Add(time.Hour)

	_, err := analyzer.Analyze(a, b, 60)
	if !errors.Is(err, ErrAlignment) {
		t.Errorf("Expected ErrAlignment, got %v", err)
	}
}

func TestConstantRegressorIsDegenerate(t *testing.T) {
	analyzer := NewAnalyzer(0.05, 1, zap.NewNop())

	flat := make([]float64, 60)
	moving := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
		moving[i] = 100 + float64(i)
	}

	_, err := analyzer.Analyze(makeSeries("A", flat), makeSeries("B", moving), 60)
	if !errors.Is(err, ErrDegenerateSeries) {
		t.Errorf("Expected ErrDegenerateSeries, got %v", err)
	}
}

func TestMacKinnonPValue(t *testing.T) {
	// tau = -2.86 sits at the classic 5% critical value.
	p := mackinnonP(-2.86)
	if p < 0.04 || p > 0.06 {
		t.Errorf("Expected p~0.05 at tau=-2.86, got %v", p)
	}

	if p := mackinnonP(-19); p != 0 {
		t.Errorf("Expected p=0 below tauMin, got %v", p)
	}
	if p := mackinnonP(3); p != 1 {
		t.Errorf("Expected p=1 above tauMax, got %v", p)
	}

	// Monotone non-decreasing in tau.
	taus := []float64{-8, -5, -3, -2, -1, 0, 1}
	prev := -1.0
	for _, tau := range taus {
		p := mackinnonP(tau)
		if p < prev {
			t.Errorf("p-value decreased at tau=%v: %v < %v", tau, p, prev)
		}
		prev = p
	}
}
