// Package notify fans debate lifecycle events out to subscribers. The
// orchestrator emits through the Gateway interface and never blocks on a
// slow consumer; delivery is best-effort.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types emitted by the orchestrator.
const (
	EventDebateStarted   = "debate_started"
	EventTurnAdded       = "turn_added"
	EventDebateCompleted = "debate_completed"
)

// Event is one lifecycle notification.
type Event struct {
	Type     string         `json:"type"`
	DebateID string         `json:"debate_id"`
	OrgID    string         `json:"org_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// Gateway delivers lifecycle events to whoever is listening. Implementations
// must not block the caller and must tolerate having no subscribers.
type Gateway interface {
	Emit(ctx context.Context, ev Event)
}

// LogGateway is the default Gateway: it writes events to the structured log
// and nothing else. Useful in tests and in deployments without a websocket
// surface.
type LogGateway struct{}

// Emit logs the event.
func (LogGateway) Emit(_ context.Context, ev Event) {
	log.Info().
		Str("event", ev.Type).
		Str("debate_id", ev.DebateID).
		Str("org_id", ev.OrgID).
		Msg("debate event")
}
