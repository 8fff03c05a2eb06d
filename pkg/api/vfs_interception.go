package api

// VFSInterceptionConfig configures host-side VFS interception rules.
type VFSInterceptionConfig struct {
	// EmitEvents enables file-operation event notifications.
	EmitEvents bool `json:"emit_events,omitempty"`

	Rules []VFSHookRule `json:"rules,omitempty"`
}

// VFSHookRule describes a single interception rule.
type VFSHookRule struct {
	Name string `json:"name,omitempty"`

	// Phase is either "before" or "after".
	// Empty defaults to "before".
	Phase string `json:"phase,omitempty"`

	// Ops filters operations (for example: read, write, create, open).
	// Empty matches all operations.
	Ops []string `json:"ops,omitempty"`

	// Path is a filepath-style glob pattern (for example: /workspace/*).
	// Empty matches all paths.
	Path string `json:"path,omitempty"`

	// Action is one of: allow, block, or a supervisor-defined action such
	// as exec_after (passed through unchanged).
	Action string `json:"action"`

	// TimeoutMS applies to supervisor-side hook actions.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}
