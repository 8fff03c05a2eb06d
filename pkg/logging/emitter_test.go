package logging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []*Event
	closed bool
	err    error
}

func (s *memorySink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestEmitterStampsStaticMetadata(t *testing.T) {
	sink := &memorySink{}
	emitter := NewEmitter(EmitterConfig{RunID: "vm-123", AgentSystem: "openclaw"}, sink)

	err := emitter.Emit(EventExecResult, "exec echo hello", "", []string{"exec"}, &ExecResultData{
		Command:    "echo hello",
		ExitCode:   0,
		DurationMS: 42,
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, "vm-123", event.RunID)
	assert.Equal(t, "openclaw", event.AgentSystem)
	assert.Equal(t, EventExecResult, event.EventType)
	assert.Equal(t, "exec echo hello", event.Summary)
	assert.Equal(t, []string{"exec"}, event.Tags)
	assert.False(t, event.Timestamp.IsZero())

	var data ExecResultData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "echo hello", data.Command)
	assert.Equal(t, int64(42), data.DurationMS)
}

func TestEmitterDefaultsRunID(t *testing.T) {
	emitter := NewEmitter(EmitterConfig{AgentSystem: "test"})
	assert.NotEmpty(t, emitter.RunID())

	other := NewEmitter(EmitterConfig{AgentSystem: "test"})
	assert.NotEqual(t, emitter.RunID(), other.RunID())
}

func TestSeedRunIDReplacesGeneratedID(t *testing.T) {
	sink := &memorySink{}
	emitter := NewEmitter(EmitterConfig{AgentSystem: "test"}, sink)

	emitter.SeedRunID("vm-777")
	assert.Equal(t, "vm-777", emitter.RunID())

	// A later seed does not overwrite the VM id again.
	emitter.SeedRunID("vm-888")
	assert.Equal(t, "vm-777", emitter.RunID())

	require.NoError(t, emitter.Emit(EventVFSEvent, "s", "", nil, nil))
	require.Len(t, sink.events, 1)
	assert.Equal(t, "vm-777", sink.events[0].RunID)
}

func TestSeedRunIDNeverOverridesCallerSupplied(t *testing.T) {
	emitter := NewEmitter(EmitterConfig{RunID: "caller-chosen"})

	emitter.SeedRunID("vm-777")
	assert.Equal(t, "caller-chosen", emitter.RunID())

	emitter.SeedRunID("")
	assert.Equal(t, "caller-chosen", emitter.RunID())
}

func TestSlogSinkWritesWithoutError(t *testing.T) {
	sink := NewSlogSink(nil)
	require.NoError(t, sink.Write(&Event{RunID: "r", EventType: EventExecResult, Summary: "s"}))
	require.NoError(t, sink.Close())
}

func TestEmitterNilDataOmitsPayload(t *testing.T) {
	sink := &memorySink{}
	emitter := NewEmitter(EmitterConfig{RunID: "r"}, sink)

	require.NoError(t, emitter.Emit(EventVFSEvent, "write /workspace/x", "", nil, nil))
	require.Len(t, sink.events, 1)
	assert.Nil(t, sink.events[0].Data)
}

func TestEmitterPropagatesSinkError(t *testing.T) {
	boom := errors.New("sink down")
	emitter := NewEmitter(EmitterConfig{RunID: "r"}, &memorySink{err: boom})

	err := emitter.Emit(EventVFSEvent, "s", "", nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestEmitterFansOutToAllSinks(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	emitter := NewEmitter(EmitterConfig{RunID: "r"}, first, second)

	require.NoError(t, emitter.Emit(EventHookDecision, "blocked", "", nil, &HookDecisionData{
		Op: "write", Path: "/workspace/x", Decision: "block",
	}))
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)

	require.NoError(t, emitter.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
