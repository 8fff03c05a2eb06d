package sdk

import (
	"errors"
	"fmt"
)

// JSON-RPC error codes reported by the supervisor.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeVMFailed       = -32000
	ErrCodeExecFailed     = -32001
	ErrCodeFileFailed     = -32002
	ErrCodeCancelled      = -32003
)

// RPCError is a failure reported by the supervisor for one request.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsVMError reports whether the supervisor failed to create or drive the VM.
func (e *RPCError) IsVMError() bool { return e.Code == ErrCodeVMFailed }

// IsExecError reports whether a command execution failed supervisor-side.
func (e *RPCError) IsExecError() bool { return e.Code == ErrCodeExecFailed }

// IsFileError reports whether a VFS file operation failed supervisor-side.
func (e *RPCError) IsFileError() bool { return e.Code == ErrCodeFileFailed }

// Process lifecycle errors
var (
	ErrStdinPipe          = errors.New("create stdin pipe")
	ErrStdoutPipe         = errors.New("create stdout pipe")
	ErrStderrPipe         = errors.New("create stderr pipe")
	ErrStartProc          = errors.New("start matchlock process")
	ErrCloseTimeout       = errors.New("matchlock process did not exit")
	ErrRemoveVM           = errors.New("remove VM")
	ErrBinaryPathRequired = errors.New("binary path is required")
)

// Transport errors
var (
	ErrNotRunning     = errors.New("matchlock process not running")
	ErrProcessClosed  = errors.New("matchlock process closed unexpectedly")
	ErrRequestTimeout = errors.New("request timed out")
	ErrMarshalRequest = errors.New("marshal request")
	ErrWriteRequest   = errors.New("write request")
)

// Create errors
var (
	ErrImageRequired     = errors.New("image is required")
	ErrInvalidCPUCount   = errors.New("invalid cpu count")
	ErrInvalidNetworkMTU = errors.New("invalid network mtu")
	ErrNoNetworkConflict = errors.New("no_network conflicts with allowed hosts, secrets, or interception")
	ErrInvalidAddHost    = errors.New("invalid add-host mapping")
	ErrParseCreateResult = errors.New("parse create result")
)

// Exec and file errors
var (
	ErrParseExecResult       = errors.New("parse exec result")
	ErrParseExecStreamResult = errors.New("parse exec_stream result")
	ErrParseExecPipeResult   = errors.New("parse exec_pipe result")
	ErrParseExecTTYResult    = errors.New("parse exec_tty result")
	ErrParseReadResult       = errors.New("parse read_file result")
	ErrParseListResult       = errors.New("parse list_files result")
)

// VFS hook errors
var (
	ErrInvalidVFSHook = errors.New("invalid VFS hook rule")
	ErrVFSHookBlocked = errors.New("blocked operation")
	ErrVFSHookReturn  = errors.New("invalid VFS hook return")
)

// Allow-list, port-forward, and volume errors
var (
	ErrAllowListHosts          = errors.New("no allow-list hosts provided")
	ErrParseAllowList          = errors.New("parse allow-list result")
	ErrParsePortForwards       = errors.New("parse port forwards")
	ErrParsePortBindings       = errors.New("parse port forward bindings")
	ErrVolumeNameRequired      = errors.New("volume name is required")
	ErrInvalidVolumeName       = errors.New("invalid volume name")
	ErrInvalidVolumeSize       = errors.New("volume size must be > 0 MB")
	ErrVolumeCommand           = errors.New("volume command")
	ErrParseVolumeCreateResult = errors.New("parse volume create output")
	ErrParseVolumeListResult   = errors.New("parse volume list output")
)

// Config and image resolution errors
var (
	ErrLoadConfig      = errors.New("load SDK config")
	ErrParseImageRef   = errors.New("parse image reference")
	ErrFetchImage      = errors.New("fetch image metadata")
	ErrImageConfigFile = errors.New("read image config file")
)
