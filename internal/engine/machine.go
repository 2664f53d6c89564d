// Package engine owns the per-pair trading lifecycle: screening, signal
// evaluation, sizing and state transitions. Each Machine is private to
// its pair; machines share nothing mutable, which is what allows the
// universe to evaluate pairs in parallel.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/pairsight/statarb/internal/coint"
	"github.com/pairsight/statarb/internal/models"
	"github.com/pairsight/statarb/internal/signal"
	"github.com/pairsight/statarb/internal/sizing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SlotGate limits how many pairs may hold open positions at once.
// Acquire reserves a slot before an entry commits; Release frees it when
// the position closes. A nil gate means unlimited.
type SlotGate interface {
	Acquire() bool
	Release()
}

// Machine drives one pair through its lifecycle. Not safe for concurrent
// use; the universe guarantees a machine is only ever touched by one
// goroutine at a time.
type Machine struct {
	pair      *models.Pair
	analyzer  *coint.Analyzer
	generator *signal.Generator
	sizer     *sizing.Sizer
	history   *signal.RollingSpread

	capital        decimal.Decimal
	minCorrelation float64
	exitZ          float64

	position     *models.Position
	entryBlocked bool

	gate   SlotGate
	sink   Sink
	logger *zap.Logger
}

// NewMachine creates a state machine for one pair in UNSCREENED state.
func NewMachine(pair *models.Pair, analyzer *coint.Analyzer, generator *signal.Generator, sizer *sizing.Sizer,
	capital float64, minCorrelation, exitZ float64, gate SlotGate, sink Sink, logger *zap.Logger) *Machine {
	pair.State = models.PairUnscreened
	return &Machine{
		pair:           pair,
		analyzer:       analyzer,
		generator:      generator,
		sizer:          sizer,
		history:        signal.NewRollingSpread(pair.Window),
		capital:        decimal.NewFromFloat(capital),
		minCorrelation: minCorrelation,
		exitZ:          exitZ,
		gate:           gate,
		sink:           sink,
		logger: logger.With(
			zap.String("component", "pair_machine"),
			zap.String("pair", pair.Key()),
		),
	}
}

// Screen runs the cointegration analyzer over the lookback window and
// moves the pair to SCREENED_VIABLE or SCREENED_REJECTED. Re-screening a
// pair that is IN_POSITION never force-closes the position: a failed
// re-test only blocks new entries and raises a warning. A CLOSED pair is
// not screened; it stays out of the universe until Reset.
func (m *Machine) Screen(seriesA, seriesB *models.PriceSeries, lookback int) error {
	if m.pair.State == models.PairClosed {
		return nil
	}

	result, err := m.analyzer.Analyze(seriesA, seriesB, lookback)
	if err != nil {
		return fmt.Errorf("screen %s: %w", m.pair.Key(), err)
	}

	m.pair.Result = result
	viable := result.IsCointegrated && result.Correlation >= m.minCorrelation
	if viable {
		// A passing re-test lifts any block left by an earlier failure.
		m.entryBlocked = false
	}

	switch m.pair.State {
	case models.PairInPosition:
		if !viable {
			m.entryBlocked = true
			m.emit(Event{
				Type:    EventWarning,
				PairKey: m.pair.Key(),
				State:   m.pair.State,
				Result:  result,
				Reason:  "cointegration re-test failed with open position; new entries blocked",
			})
			m.logger.Warn("re-test failed while in position",
				zap.Float64("p_value", result.PValue))
		}
	case models.PairFlat:
		if !viable {
			m.pair.State = models.PairScreenedRejected
		}
	default:
		if viable {
			m.pair.State = models.PairScreenedViable
		} else {
			m.pair.State = models.PairScreenedRejected
		}
	}

	m.emit(Event{
		Type:    EventPairScreened,
		PairKey: m.pair.Key(),
		State:   m.pair.State,
		Result:  result,
	})
	return nil
}

// OnTick evaluates one aligned price observation. Within the pair the
// steps are strictly sequential: score, classify, size, commit.
func (m *Machine) OnTick(priceA, priceB float64, ts time.Time) error {
	switch m.pair.State {
	case models.PairScreenedViable:
		// First tick after screening starts the trading lifecycle.
		m.pair.State = models.PairFlat
	case models.PairFlat, models.PairInPosition:
	default:
		return nil
	}

	z, sig := m.generator.Score(m.pair.Key(), priceA, priceB, m.pair.Result,
		m.history, m.position != nil, ts)
	m.pair.CurrentZScore = z

	if sig.Kind == models.SignalHold {
		return nil
	}
	m.emit(Event{
		Type:      EventSignal,
		PairKey:   m.pair.Key(),
		State:     m.pair.State,
		Signal:    &sig,
		Timestamp: ts,
	})

	switch {
	case sig.Kind.IsEntry() && m.pair.State == models.PairFlat:
		return m.tryEnter(sig, priceA, priceB, ts)
	case sig.Kind.IsExit() && m.pair.State == models.PairInPosition:
		m.closePosition(sig, ts)
	}
	return nil
}

func (m *Machine) tryEnter(sig models.Signal, priceA, priceB float64, ts time.Time) error {
	if m.entryBlocked {
		m.reject(sig, "entries blocked by failed cointegration re-test", nil, ts)
		return nil
	}

	_, stdDev := m.history.Stats()
	pos, report, err := m.sizer.Size(sizing.Request{
		Signal:        sig,
		Capital:       m.capital,
		PriceA:        priceA,
		PriceB:        priceB,
		HedgeRatio:    m.pair.Result.HedgeRatio,
		RollingStdDev: stdDev,
		ExitZ:         m.exitZ,
	})
	if err != nil {
		if errors.Is(err, sizing.ErrZeroQuantity) || errors.Is(err, sizing.ErrUnprofitableTrade) {
			m.reject(sig, err.Error(), &report, ts)
			return nil
		}
		return fmt.Errorf("size %s: %w", m.pair.Key(), err)
	}

	if m.gate != nil && !m.gate.Acquire() {
		m.reject(sig, "max active pairs reached", &report, ts)
		return nil
	}

	pos.OpenedAt = ts
	m.position = pos
	m.pair.State = models.PairInPosition

	m.emit(Event{
		Type:      EventPositionOpened,
		PairKey:   m.pair.Key(),
		State:     m.pair.State,
		Signal:    &sig,
		Position:  pos,
		Report:    &report,
		Timestamp: ts,
	})
	m.logger.Info("position opened",
		zap.String("side", string(pos.Side)),
		zap.Float64("entry_z", pos.EntryZScore),
		zap.String("quantity_a", pos.QuantityA.String()),
		zap.String("quantity_b", pos.QuantityB.String()),
	)
	return nil
}

func (m *Machine) closePosition(sig models.Signal, ts time.Time) {
	closed := *m.position
	closed.State = models.PositionClosed

	m.position = nil
	m.pair.State = models.PairFlat
	if m.gate != nil {
		m.gate.Release()
	}

	m.emit(Event{
		Type:      EventPositionClosed,
		PairKey:   m.pair.Key(),
		State:     m.pair.State,
		Signal:    &sig,
		Position:  &closed,
		Timestamp: ts,
	})
	m.logger.Info("position closed",
		zap.String("trigger", string(sig.Kind)),
		zap.Float64("exit_z", sig.ZScore),
	)
}

func (m *Machine) reject(sig models.Signal, reason string, report *sizing.Report, ts time.Time) {
	m.emit(Event{
		Type:      EventEntryRejected,
		PairKey:   m.pair.Key(),
		State:     m.pair.State,
		Signal:    &sig,
		Report:    report,
		Reason:    reason,
		Timestamp: ts,
	})
	m.logger.Info("entry rejected", zap.String("reason", reason))
}

// Deactivate removes the pair from the monitored universe. An open
// position is closed as a manual override. A later full re-run may
// re-screen the pair from UNSCREENED again.
func (m *Machine) Deactivate(ts time.Time) {
	if m.position != nil {
		m.closePosition(models.Signal{
			PairKey:   m.pair.Key(),
			Kind:      models.SignalExitMeanReversion,
			ZScore:    m.pair.CurrentZScore,
			Timestamp: ts,
		}, ts)
	}
	m.pair.State = models.PairClosed
	m.logger.Info("pair deactivated")
}

// Reset returns a CLOSED pair to UNSCREENED for a full re-run.
func (m *Machine) Reset() {
	if m.pair.State != models.PairClosed {
		return
	}
	m.pair.State = models.PairUnscreened
	m.pair.Result = nil
	m.entryBlocked = false
	m.history = signal.NewRollingSpread(m.pair.Window)
}

// Pair returns the pair being managed.
func (m *Machine) Pair() *models.Pair { return m.pair }

// Position returns the open position, or nil when flat.
func (m *Machine) Position() *models.Position { return m.position }

// EntryBlocked reports whether a failed re-test is blocking entries.
func (m *Machine) EntryBlocked() bool { return m.entryBlocked }

func (m *Machine) emit(ev Event) {
	if m.sink == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.sink(ev)
}
