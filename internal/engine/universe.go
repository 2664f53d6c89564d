package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pairsight/statarb/internal/coint"
	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/fees"
	"github.com/pairsight/statarb/internal/models"
	"github.com/pairsight/statarb/internal/signal"
	"github.com/pairsight/statarb/internal/sizing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// adfLags is the augmentation order of the unit-root regression.
const adfLags = 1

// HistoryProvider supplies aligned historical price series. Implemented
// by the market data collaborator; the engine never fetches data itself.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, days int) (*models.PriceSeries, error)
}

// Universe manages the state machines of every monitored pair and
// evaluates them in parallel on each refresh. Pairs are independent:
// no machine observes another machine's in-flight state.
type Universe struct {
	machines map[string]*Machine
	keys     []string
	lookback int
	slots    *slotCounter
	logger   *zap.Logger
}

// NewUniverse wires analyzer, signal generator, fee model and sizer from
// a configuration snapshot and builds one machine per configured pair.
// The sink may be called from multiple goroutines; Universe serializes
// emission so sinks need no locking of their own.
func NewUniverse(cfg *config.Config, sink Sink, logger *zap.Logger) *Universe {
	analyzer := coint.NewAnalyzer(cfg.PValueThreshold, adfLags, logger)
	generator := signal.NewGenerator(signal.Thresholds{
		Entry: cfg.ZScoreEntry,
		Exit:  cfg.ZScoreExit,
		Stop:  cfg.ZScoreStop,
	}, logger)
	calc := fees.NewCalculator(cfg.Fees)
	sizer := sizing.NewSizer(calc, cfg.MaxPositionSizePct, cfg.MinProfitPct, logger)

	var mu sync.Mutex
	serialized := func(ev Event) {
		if sink == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		sink(ev)
	}

	slots := &slotCounter{max: cfg.MaxActivePairs}

	u := &Universe{
		machines: make(map[string]*Machine, len(cfg.Pairs)),
		lookback: cfg.LookbackDays,
		slots:    slots,
		logger:   logger.With(zap.String("component", "universe")),
	}

	for _, pc := range cfg.Pairs {
		pair := &models.Pair{
			SymbolA: pc.SymbolA,
			SymbolB: pc.SymbolB,
			Sector:  pc.Sector,
			Window:  cfg.RollingWindow,
		}
		m := NewMachine(pair, analyzer, generator, sizer,
			cfg.CapitalPerPair, cfg.MinCorrelation, cfg.ZScoreExit,
			slots, serialized, logger)
		u.machines[pair.Key()] = m
		u.keys = append(u.keys, pair.Key())
	}
	sort.Strings(u.keys)

	return u
}

// ScreenAll fetches history for every pair and runs cointegration
// screening, one worker per pair. A failing pair is logged and skipped;
// it never aborts the rest of the universe. Deactivated pairs are left
// alone until an explicit Reset.
func (u *Universe) ScreenAll(ctx context.Context, provider HistoryProvider) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, key := range u.keys {
		m := u.machines[key]
		if m.pair.State == models.PairClosed {
			continue
		}
		g.Go(func() error {
			seriesA, err := provider.History(gctx, m.pair.SymbolA, u.lookback)
			if err != nil {
				u.logger.Error("history fetch failed",
					zap.String("symbol", m.pair.SymbolA), zap.Error(err))
				return nil
			}
			seriesB, err := provider.History(gctx, m.pair.SymbolB, u.lookback)
			if err != nil {
				u.logger.Error("history fetch failed",
					zap.String("symbol", m.pair.SymbolB), zap.Error(err))
				return nil
			}
			if err := m.Screen(seriesA, seriesB, u.lookback); err != nil {
				u.logger.Error("screening failed",
					zap.String("pair", m.pair.Key()), zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// OnTick evaluates every machine whose two legs have a fresh price, in
// parallel. Per-pair errors are isolated.
func (u *Universe) OnTick(ctx context.Context, prices map[string]float64, ts time.Time) error {
	g, _ := errgroup.WithContext(ctx)

	for _, key := range u.keys {
		m := u.machines[key]
		priceA, okA := prices[m.pair.SymbolA]
		priceB, okB := prices[m.pair.SymbolB]
		if !okA || !okB {
			continue
		}
		g.Go(func() error {
			if err := m.OnTick(priceA, priceB, ts); err != nil {
				u.logger.Error("tick evaluation failed",
					zap.String("pair", m.pair.Key()), zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// Machine returns the machine for a pair key.
func (u *Universe) Machine(key string) (*Machine, bool) {
	m, ok := u.machines[key]
	return m, ok
}

// Machines returns all machines in deterministic key order.
func (u *Universe) Machines() []*Machine {
	out := make([]*Machine, 0, len(u.keys))
	for _, key := range u.keys {
		out = append(out, u.machines[key])
	}
	return out
}

// Ranked returns all machines sorted by ascending cointegration p-value,
// unscreened pairs last.
func (u *Universe) Ranked() []*Machine {
	out := u.Machines()
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].pair.Result, out[j].pair.Result
		switch {
		case ri == nil:
			return false
		case rj == nil:
			return true
		default:
			return ri.PValue < rj.PValue
		}
	})
	return out
}

// Viable returns the screened-viable and actively trading machines,
// sorted by ascending cointegration p-value.
func (u *Universe) Viable() []*Machine {
	out := make([]*Machine, 0, len(u.keys))
	for _, key := range u.keys {
		m := u.machines[key]
		switch m.pair.State {
		case models.PairScreenedViable, models.PairFlat, models.PairInPosition:
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].pair.Result.PValue < out[j].pair.Result.PValue
	})
	return out
}

// Symbols returns every distinct instrument in the universe, sorted.
func (u *Universe) Symbols() []string {
	set := make(map[string]bool)
	for _, m := range u.machines {
		set[m.pair.SymbolA] = true
		set[m.pair.SymbolB] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OpenPositions reports how many pairs currently hold a position.
func (u *Universe) OpenPositions() int {
	return u.slots.Used()
}

// slotCounter is the SlotGate shared by the universe's machines.
type slotCounter struct {
	mu   sync.Mutex
	used int
	max  int
}

func (s *slotCounter) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used >= s.max {
		return false
	}
	s.used++
	return true
}

func (s *slotCounter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used > 0 {
		s.used--
	}
}

func (s *slotCounter) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
