package logging

import (
	"encoding/json"
	"time"
)

// Event is the canonical structured event emitted by the SDK.
// Required fields: Timestamp, RunID, AgentSystem, EventType, Summary.
// Optional fields use omitempty tags.
type Event struct {
	Timestamp   time.Time       `json:"ts"`
	RunID       string          `json:"run_id"`
	AgentSystem string          `json:"agent_system"`
	EventType   string          `json:"event_type"`
	Summary     string          `json:"summary"`
	Plugin      string          `json:"plugin,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Event type constants.
const (
	EventRPCRequest    = "rpc_request"
	EventVFSEvent      = "vfs_event"
	EventHookDecision  = "hook_decision"
	EventWriteMutation = "write_mutation"
	EventExecResult    = "exec_result"
)

// VFSEventData is the data payload for vfs_event events.
type VFSEventData struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// HookDecisionData is the data payload for hook_decision events.
type HookDecisionData struct {
	Hook     string `json:"hook,omitempty"`
	Op       string `json:"op"`
	Path     string `json:"path"`
	Decision string `json:"decision"`
}

// WriteMutationData is the data payload for write_mutation events.
type WriteMutationData struct {
	Hook string `json:"hook,omitempty"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

// ExecResultData is the data payload for exec_result events.
type ExecResultData struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// RPCRequestData is the data payload for rpc_request events.
type RPCRequestData struct {
	Method     string `json:"method"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	ErrorCode  int    `json:"error_code,omitempty"`
}
