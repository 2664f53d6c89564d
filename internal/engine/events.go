package engine

import (
	"time"

	"github.com/pairsight/statarb/internal/models"
	"github.com/pairsight/statarb/internal/sizing"
)

// EventType enumerates the structured events the engine emits for the
// dashboard and persistence collaborators.
type EventType string

const (
	EventPairScreened   EventType = "pair_screened"
	EventSignal         EventType = "signal"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventEntryRejected  EventType = "entry_rejected"
	EventWarning        EventType = "warning"
)

// Event is a read-only record of something the engine decided. Consumers
// must not mutate the referenced values.
type Event struct {
	Type      EventType                   `json:"type"`
	PairKey   string                      `json:"pair_key"`
	State     models.PairState            `json:"state"`
	Signal    *models.Signal              `json:"signal,omitempty"`
	Position  *models.Position            `json:"position,omitempty"`
	Result    *models.CointegrationResult `json:"result,omitempty"`
	Report    *sizing.Report              `json:"report,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
}

// Sink receives engine events. A nil sink is valid and discards them.
type Sink func(Event)
