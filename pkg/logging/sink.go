package logging

import "log/slog"

// Sink consumes structured events.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write persists or forwards a single event.
	// Implementations should not modify the event.
	Write(event *Event) error

	// Close flushes any buffered data and releases resources.
	Close() error
}

// SlogSink mirrors events onto a slog.Logger at debug level. Useful for
// surfacing the audit stream in an application's existing logs without a
// separate file.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink backed by logger; nil uses slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Write logs the event's metadata; the typed payload is attached raw.
func (s *SlogSink) Write(event *Event) error {
	s.logger.Debug(event.Summary,
		"run_id", event.RunID,
		"agent_system", event.AgentSystem,
		"event_type", event.EventType,
		"plugin", event.Plugin,
		"data", string(event.Data),
	)
	return nil
}

// Close is a no-op; the logger is owned by the caller.
func (s *SlogSink) Close() error { return nil }
