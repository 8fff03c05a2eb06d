package sdk

import (
	"context"
	"time"

	"github.com/jingkaihe/matchlock-go/pkg/api"
)

// CreateOptions holds options for creating a sandbox.
type CreateOptions struct {
	// Image is the container image reference (required, e.g., alpine:latest)
	Image string
	// CPUs is the number of vCPUs
	CPUs int
	// MemoryMB is the memory in megabytes
	MemoryMB int
	// DiskSizeMB is the disk size in megabytes (default: 5120)
	DiskSizeMB int
	// TimeoutSeconds is the maximum execution time
	TimeoutSeconds int
	// AllowedHosts is a list of allowed network hosts (supports wildcards)
	AllowedHosts []string
	// AddHosts injects static host-to-IP mappings into guest /etc/hosts.
	AddHosts []api.HostIPMapping
	// BlockPrivateIPs controls access to private IP ranges.
	// Use together with BlockPrivateIPsSet to express explicit true/false.
	BlockPrivateIPs bool
	// BlockPrivateIPsSet marks whether BlockPrivateIPs was explicitly set.
	// When false, the SDK preserves supervisor defaults for private IP blocking.
	BlockPrivateIPsSet bool
	// NoNetwork disables guest network egress entirely (no guest NIC).
	NoNetwork bool
	// NetworkInterception configures supervisor-side HTTP interception rules.
	NetworkInterception *api.NetworkInterceptionConfig
	// Mounts defines VFS mount configurations keyed by guest path
	Mounts map[string]MountConfig
	// Env defines non-secret environment variables for command execution.
	// These are visible in VM state and inspect/get outputs.
	Env map[string]string
	// Secrets defines secrets to inject (replaced in HTTP requests to allowed hosts)
	Secrets []Secret
	// Workspace is the mount point for VFS in the guest.
	// This must be set when Mounts is non-empty.
	Workspace string
	// VFSInterception configures host-side VFS interception hooks/rules.
	VFSInterception *VFSInterceptionConfig
	// DNSServers overrides the default DNS servers (8.8.8.8, 8.8.4.4)
	DNSServers []string
	// Hostname overrides the default guest hostname (sandbox's ID)
	Hostname string
	// NetworkMTU overrides the guest interface/network stack MTU (default: 1500).
	NetworkMTU int
	// PortForwards maps local host ports to remote sandbox ports.
	// These are applied after VM creation via the port_forward RPC.
	PortForwards []api.PortForward
	// PortForwardAddresses controls host bind addresses used when applying
	// PortForwards (default: 127.0.0.1).
	PortForwardAddresses []string
	// ImageConfig holds OCI image metadata (USER, ENTRYPOINT, CMD, WORKDIR, ENV)
	ImageConfig *ImageConfig
	// LaunchEntrypoint starts image ENTRYPOINT/CMD in detached mode during create.
	// Set by Client.Launch; low-level Create keeps this false unless requested.
	LaunchEntrypoint bool
}

// ImageConfig holds OCI image metadata for user/entrypoint/cmd/workdir/env.
type ImageConfig struct {
	User       string            `json:"user,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Entrypoint []string          `json:"entrypoint,omitempty"`
	Cmd        []string          `json:"cmd,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// Secret defines a secret that will be injected as a placeholder env var
// and replaced with the real value in HTTP requests to allowed hosts
type Secret struct {
	// Name is the environment variable name (e.g., "ANTHROPIC_API_KEY")
	Name string
	// Value is the actual secret value
	Value string
	// Hosts is a list of hosts where this secret can be used (supports wildcards)
	Hosts []string
}

// MountConfig defines a VFS mount
type MountConfig struct {
	Type     string `json:"type"` // memory, real_fs, overlay
	HostPath string `json:"host_path,omitempty"`
	Readonly bool   `json:"readonly,omitempty"`
}

// VFSInterceptionConfig configures host-side VFS interception rules.
type VFSInterceptionConfig struct {
	EmitEvents bool          `json:"emit_events,omitempty"`
	Rules      []VFSHookRule `json:"rules,omitempty"`
}

// VFS hook phases.
type VFSHookPhase = string

const (
	VFSHookPhaseBefore VFSHookPhase = "before"
	VFSHookPhaseAfter  VFSHookPhase = "after"
)

// VFS hook actions.
type VFSHookAction = string

const (
	VFSHookActionAllow VFSHookAction = "allow"
	VFSHookActionBlock VFSHookAction = "block"
	// VFSHookActionMutateWrite rewrites write payloads via a MutateHook.
	VFSHookActionMutateWrite VFSHookAction = "mutate_write"
	// VFSHookActionExecAfter is supervisor-defined; the SDK passes it
	// through to the wire unchanged.
	VFSHookActionExecAfter VFSHookAction = "exec_after"
)

// VFS hook operations.
type VFSHookOp = string

const (
	VFSHookOpStat      VFSHookOp = "stat"
	VFSHookOpReadDir   VFSHookOp = "readdir"
	VFSHookOpOpen      VFSHookOp = "open"
	VFSHookOpCreate    VFSHookOp = "create"
	VFSHookOpMkdir     VFSHookOp = "mkdir"
	VFSHookOpChmod     VFSHookOp = "chmod"
	VFSHookOpRemove    VFSHookOp = "remove"
	VFSHookOpRemoveAll VFSHookOp = "remove_all"
	VFSHookOpRename    VFSHookOp = "rename"
	VFSHookOpSymlink   VFSHookOp = "symlink"
	VFSHookOpReadlink  VFSHookOp = "readlink"
	VFSHookOpRead      VFSHookOp = "read"
	VFSHookOpWrite     VFSHookOp = "write"
	VFSHookOpClose     VFSHookOp = "close"
	VFSHookOpSync      VFSHookOp = "sync"
	VFSHookOpTruncate  VFSHookOp = "truncate"
)

// VFSHookRule describes a single interception rule.
type VFSHookRule struct {
	Name      string        `json:"name,omitempty"`
	Phase     VFSHookPhase  `json:"phase,omitempty"`  // before, after
	Ops       []VFSHookOp   `json:"ops,omitempty"`    // read, write, create, ...
	Path      string        `json:"path,omitempty"`   // filepath-style glob
	Action    VFSHookAction `json:"action,omitempty"` // allow, block, mutate_write, exec_after
	TimeoutMS int           `json:"timeout_ms,omitempty"`
	// Hook is safe-by-default and does not expose client methods.
	Hook VFSHookFunc `json:"-"`
	// DangerousHook disables recursion suppression and may retrigger itself.
	// Use only when you intentionally want re-entrant callbacks.
	DangerousHook VFSDangerousHookFunc `json:"-"`
	// MutateHook rewrites WriteFile payloads before they hit the wire.
	MutateHook VFSMutateHookFunc `json:"-"`
	// ActionHook decides allow/block for SDK-side VFS calls.
	ActionHook VFSActionHookFunc `json:"-"`
}

// VFSHookEvent contains metadata about an intercepted file event.
type VFSHookEvent struct {
	Op   VFSHookOp
	Path string
	Size int64
	Mode uint32
	UID  int
	GID  int
}

// VFSHookFunc runs in the SDK process when a matching after-file-event is observed.
// Returning an error does not fail the triggering VFS operation.
type VFSHookFunc func(ctx context.Context, event VFSHookEvent) error

// VFSDangerousHookFunc runs with a client handle and can trigger re-entrant hook execution.
// Use this only when you intentionally need side effects that call back into the sandbox.
type VFSDangerousHookFunc func(ctx context.Context, client *Client, event VFSHookEvent) error

// VFSMutateRequest is passed to SDK-local mutate hooks before WriteFile.
type VFSMutateRequest struct {
	Path string
	Size int
	Mode uint32
	UID  int
	GID  int
}

// VFSMutateHookFunc computes replacement bytes for SDK WriteFile calls.
// Returning nil bytes leaves the payload unchanged.
type VFSMutateHookFunc func(ctx context.Context, req VFSMutateRequest) ([]byte, error)

// VFSActionRequest is passed to SDK-local allow/block action hooks.
type VFSActionRequest struct {
	Op   VFSHookOp
	Path string
	Size int
	Mode uint32
	UID  int
	GID  int
}

// VFSActionHookFunc decides whether an operation should be allowed or blocked.
type VFSActionHookFunc func(ctx context.Context, req VFSActionRequest) VFSHookAction

type compiledVFSHook struct {
	name      string
	ops       map[string]struct{}
	path      string
	timeout   time.Duration
	dangerous bool
	callback  func(ctx context.Context, client *Client, event VFSHookEvent) error
}

type compiledVFSMutateHook struct {
	name     string
	ops      map[string]struct{}
	path     string
	callback VFSMutateHookFunc
}

type compiledVFSActionHook struct {
	name     string
	ops      map[string]struct{}
	path     string
	callback VFSActionHookFunc
}
