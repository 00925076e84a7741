package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one auditable action. Outcome holds the internal result
// ("success", "unknown_identifier", "locked", ...) — operators see the
// distinction end users never do. Passwords and token values are never
// part of an event.
type Event struct {
	ID         string
	Action     string
	Identifier string
	Outcome    string
	ClientIP   string
	At         time.Time
}

// Log records audit events. Handlers and stores depend on this interface,
// not on a concrete sink.
type Log interface {
	Record(ctx context.Context, event Event)
}

// ZapLog writes audit events as structured log entries.
type ZapLog struct {
	logger *zap.Logger
}

func NewZapLog(logger *zap.Logger) *ZapLog {
	return &ZapLog{logger: logger}
}

func (z *ZapLog) Record(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	z.logger.Info("audit",
		zap.String("event_id", event.ID),
		zap.String("action", event.Action),
		zap.String("identifier", event.Identifier),
		zap.String("outcome", event.Outcome),
		zap.String("client_ip", event.ClientIP),
		zap.Time("at", event.At),
	)
}

// Nop discards events, for tests.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
