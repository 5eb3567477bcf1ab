// Package observability carries structured events out of the exchange core.
// Subsystems describe what happened as an Event; observers decide where it
// goes (slog, zap, several at once, or nowhere). Levels use the
// OpenTelemetry severity scale.
package observability

import (
	"context"
	"time"
)

// EventType names an event. Subsystems declare their own constants with a
// dotted prefix, such as "exchange.start".
type EventType string

// Event is one observation. Data holds flat key/value attributes, e.g. the
// session id and content lengths of an exchange.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events. Implementations must be safe for concurrent use
// because exchanges on different sessions emit in parallel.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
