package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/models"
	"go.uber.org/zap"
)

// stubProvider serves canned series and fails for unknown symbols.
type stubProvider struct {
	series map[string]*models.PriceSeries
}

func (p *stubProvider) History(ctx context.Context, symbol string, days int) (*models.PriceSeries, error) {
	s, ok := p.series[symbol]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return s, nil
}

func trendSeries(symbol string, n int) *models.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &models.PriceSeries{Symbol: symbol}
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, models.PricePoint{
			Timestamp: base.AddDate(0, 0, i),
			Price:     100 + float64(i)*0.5,
		})
	}
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		ZScoreEntry:        2.0,
		ZScoreExit:         0.5,
		ZScoreStop:         2.5,
		RollingWindow:      20,
		LookbackDays:       60,
		PValueThreshold:    0.05,
		MinCorrelation:     0.1,
		CapitalPerPair:     100000,
		MaxPositionSizePct: 1.0,
		MaxActivePairs:     1,
		MinProfitPct:       0.001,
		Fees: config.FeeRates{
			IntradayBrokeragePct:      0.0003,
			BrokerageCapPerOrder:      20.0,
			STTIntradaySellPct:        0.00025,
			STTDeliveryPct:            0.001,
			ExchangePerCrore:          297.0,
			SEBIPerCrore:              10.0,
			StampDutyIntradayPerCrore: 300.0,
			StampDutyDeliveryPerCrore: 1500.0,
			GSTPct:                    0.18,
		},
		Pairs: []config.PairConfig{
			{SymbolA: "AAA", SymbolB: "BBB", Sector: "one"},
			{SymbolA: "CCC", SymbolB: "DDD", Sector: "two"},
		},
	}
}

func TestScreenAllIsolatesFailures(t *testing.T) {
	u := NewUniverse(testConfig(), nil, zap.NewNop())

	// Only the first pair has data; the second must fail without
	// aborting the run.
	provider := &stubProvider{series: map[string]*models.PriceSeries{
		"AAA": trendSeries("AAA", 60),
		"BBB": trendSeries("BBB", 60),
	}}

	if err := u.ScreenAll(context.Background(), provider); err != nil {
		t.Fatalf("ScreenAll() error: %v", err)
	}

	good, ok := u.Machine(models.PairKey("AAA", "BBB"))
	if !ok {
		t.Fatal("Expected machine for AAA/BBB")
	}
	if good.Pair().State != models.PairScreenedViable {
		t.Errorf("Expected AAA/BBB viable, got %s", good.Pair().State)
	}

	bad, ok := u.Machine(models.PairKey("CCC", "DDD"))
	if !ok {
		t.Fatal("Expected machine for CCC/DDD")
	}
	if bad.Pair().State != models.PairUnscreened {
		t.Errorf("Expected CCC/DDD untouched after fetch failure, got %s", bad.Pair().State)
	}
}

func TestOnTickSkipsPairsWithoutPrices(t *testing.T) {
	u := NewUniverse(testConfig(), nil, zap.NewNop())

	provider := &stubProvider{series: map[string]*models.PriceSeries{
		"AAA": trendSeries("AAA", 60),
		"BBB": trendSeries("BBB", 60),
		"CCC": trendSeries("CCC", 60),
		"DDD": trendSeries("DDD", 60),
	}}
	if err := u.ScreenAll(context.Background(), provider); err != nil {
		t.Fatalf("ScreenAll() error: %v", err)
	}

	// Price for only one leg of CCC/DDD: it must be skipped, AAA/BBB
	// still advances to FLAT on its first tick.
	prices := map[string]float64{"AAA": 100, "BBB": 100.2, "CCC": 100}
	if err := u.OnTick(context.Background(), prices, time.Now()); err != nil {
		t.Fatalf("OnTick() error: %v", err)
	}

	first, _ := u.Machine(models.PairKey("AAA", "BBB"))
	if first.Pair().State != models.PairFlat {
		t.Errorf("Expected AAA/BBB FLAT after tick, got %s", first.Pair().State)
	}
	second, _ := u.Machine(models.PairKey("CCC", "DDD"))
	if second.Pair().State != models.PairScreenedViable {
		t.Errorf("Expected CCC/DDD unchanged without both prices, got %s", second.Pair().State)
	}
}

func TestScreenAllSkipsClosedPairs(t *testing.T) {
	u := NewUniverse(testConfig(), nil, zap.NewNop())

	provider := &stubProvider{series: map[string]*models.PriceSeries{
		"AAA": trendSeries("AAA", 60),
		"BBB": trendSeries("BBB", 60),
		"CCC": trendSeries("CCC", 60),
		"DDD": trendSeries("DDD", 60),
	}}

	closed, _ := u.Machine(models.PairKey("CCC", "DDD"))
	closed.Deactivate(time.Now())

	if err := u.ScreenAll(context.Background(), provider); err != nil {
		t.Fatalf("ScreenAll() error: %v", err)
	}

	if closed.Pair().State != models.PairClosed {
		t.Errorf("Expected deactivated pair to stay CLOSED, got %s", closed.Pair().State)
	}
	if closed.Pair().Result != nil {
		t.Error("Expected no screening result for a deactivated pair")
	}
	open, _ := u.Machine(models.PairKey("AAA", "BBB"))
	if open.Pair().State != models.PairScreenedViable {
		t.Errorf("Expected AAA/BBB viable, got %s", open.Pair().State)
	}
}

func TestRankedOrdersByPValue(t *testing.T) {
	u := NewUniverse(testConfig(), nil, zap.NewNop())

	keys := u.Machines()
	keys[0].Pair().Result = &models.CointegrationResult{PValue: 0.04, IsCointegrated: true}
	keys[0].Pair().State = models.PairScreenedViable
	keys[1].Pair().Result = &models.CointegrationResult{PValue: 0.01, IsCointegrated: true}
	keys[1].Pair().State = models.PairScreenedViable

	ranked := u.Ranked()
	if ranked[0].Pair().Result.PValue != 0.01 {
		t.Errorf("Expected lowest p-value first, got %v", ranked[0].Pair().Result.PValue)
	}

	viable := u.Viable()
	if len(viable) != 2 {
		t.Fatalf("Expected 2 viable machines, got %d", len(viable))
	}
	if viable[0].Pair().Result.PValue > viable[1].Pair().Result.PValue {
		t.Error("Viable machines not sorted by ascending p-value")
	}
}

func TestSymbolsAreDistinctAndSorted(t *testing.T) {
	u := NewUniverse(testConfig(), nil, zap.NewNop())

	symbols := u.Symbols()
	want := []string{"AAA", "BBB", "CCC", "DDD"}
	if len(symbols) != len(want) {
		t.Fatalf("Expected %d symbols, got %d", len(want), len(symbols))
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("Expected symbols[%d]=%s, got %s", i, want[i], symbols[i])
		}
	}
}

func TestSlotCounter(t *testing.T) {
	s := &slotCounter{max: 2}

	if !s.Acquire() || !s.Acquire() {
		t.Fatal("Expected two acquisitions to succeed")
	}
	if s.Acquire() {
		t.Error("Expected third acquisition to fail")
	}
	if s.Used() != 2 {
		t.Errorf("Expected 2 used, got %d", s.Used())
	}

	s.Release()
	if !s.Acquire() {
		t.Error("Expected acquisition after release to succeed")
	}

	s.Release()
	s.Release()
	s.Release() // extra release must not underflow
	if s.Used() != 0 {
		t.Errorf("Expected 0 used, got %d", s.Used())
	}
}
