package logging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// EmitterConfig holds the static metadata configured at client startup.
// All fields are stamped onto every event automatically.
type EmitterConfig struct {
	RunID       string // defaults to a fresh uuid; re-seeded with the VM id on create
	AgentSystem string // set by the consumer (e.g., "openclaw", "aider")
}

// Emitter provides convenience methods for emitting typed events.
// It holds static metadata and dispatches to one or more sinks.
//
// A nil *Emitter is safe to hold; callers guard emission with:
//
//	if emitter != nil {
//	    _ = emitter.Emit(...)
//	}
type Emitter struct {
	mu        sync.Mutex
	config    EmitterConfig
	defaulted bool // RunID was generated, not caller-supplied
	sinks     []Sink
}

// NewEmitter creates an emitter with the given configuration and sinks.
// An empty RunID is replaced with a random uuid so events stay correlated
// even before a VM exists; once the client creates a VM it re-seeds the
// run id with the VM id via SeedRunID.
func NewEmitter(cfg EmitterConfig, sinks ...Sink) *Emitter {
	defaulted := cfg.RunID == ""
	if defaulted {
		cfg.RunID = uuid.NewString()
	}
	return &Emitter{
		config:    cfg,
		defaulted: defaulted,
		sinks:     sinks,
	}
}

// RunID returns the emitter's run identifier.
func (e *Emitter) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.RunID
}

// SeedRunID replaces a generated run id with runID. A caller-supplied
// RunID is never overwritten, so explicit configuration wins over the
// VM id.
func (e *Emitter) SeedRunID(runID string) {
	if runID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.defaulted {
		return
	}
	e.config.RunID = runID
	e.defaulted = false
}

// Emit constructs an event with the emitter's static metadata and writes
// it to all registered sinks.
//
// Parameters:
//   - eventType: one of the Event* constants (e.g., EventExecResult)
//   - summary: human-readable one-line summary
//   - plugin: the emitting component name (empty string is fine)
//   - tags: optional tags for filtering (nil is fine)
//   - data: the typed data struct (e.g., *ExecResultData); nil for no payload
//
// Returns the first error encountered. Callers should discard errors
// with _ = (best-effort semantics).
func (e *Emitter) Emit(eventType, summary, plugin string, tags []string, data interface{}) error {
	var rawData json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return errx.Wrap(ErrMarshalData, err)
		}
		rawData = b
	}

	e.mu.Lock()
	runID := e.config.RunID
	agentSystem := e.config.AgentSystem
	e.mu.Unlock()

	event := &Event{
		Timestamp:   time.Now().UTC(),
		RunID:       runID,
		AgentSystem: agentSystem,
		EventType:   eventType,
		Summary:     summary,
		Plugin:      plugin,
		Tags:        tags,
		Data:        rawData,
	}

	for _, sink := range e.sinks {
		if err := sink.Write(event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks. Returns the first error encountered.
func (e *Emitter) Close() error {
	var firstErr error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
