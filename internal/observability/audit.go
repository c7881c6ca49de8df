package observability

import (
	"github.com/rs/zerolog"
)

// AuditLogger records security-relevant rejections: bad oracle signatures,
// unity violations, rate-limit trips. Fire-and-forget; the hot path never
// blocks on it.
type AuditLogger struct {
	log    zerolog.Logger
	events incrementer
}

// incrementer matches prometheus.Counter without importing it here.
type incrementer interface {
	Inc()
}

type noopCounter struct{}

func (noopCounter) Inc() {}

// NewAuditLogger wires the audit sink to a logger and an optional counter.
func NewAuditLogger(log zerolog.Logger, counter incrementer) *AuditLogger {
	if counter == nil {
		counter = noopCounter{}
	}
	return &AuditLogger{
		log:    log.With().Str("channel", "audit").Logger(),
		events: counter,
	}
}

// SecurityEvent implements the oracle audit sink.
func (a *AuditLogger) SecurityEvent(kind string, detail map[string]string) {
	a.events.Inc()
	ev := a.log.Warn().Str("kind", kind)
	for k, v := range detail {
		ev = ev.Str(k, v)
	}
	ev.Msg("security event")
}
