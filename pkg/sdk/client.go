// Package sdk provides a client for interacting with Matchlock sandboxes via JSON-RPC.
//
// Use the builder API for a fluent experience:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(0)
//
//	sandbox := sdk.New("python:3.12-alpine").
//	    WithCPUs(2).
//	    WithMemory(1024).
//	    AllowHost("dl-cdn.alpinelinux.org", "api.openai.com").
//	    AddSecret("API_KEY", os.Getenv("API_KEY"), "api.openai.com")
//
//	vmID, err := client.Launch(sandbox)
//
//	result, err := client.Exec(ctx, "echo hello")
//	fmt.Println(result.Stdout)
package sdk

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/logging"
	"github.com/jingkaihe/matchlock-go/pkg/state"
)

// Client is a Matchlock JSON-RPC client.
// All methods are safe for concurrent use.
type Client struct {
	cmd        *exec.Cmd
	binaryPath string
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	requestID  atomic.Uint64
	vmID       string
	lastVMID   string
	mu         sync.Mutex // guards closed, vmID, lastVMID, emitter
	closed     bool

	// Concurrent request handling
	writeMu    sync.Mutex                 // serializes writes to stdin
	pendingMu  sync.Mutex                 // protects pending map
	pending    map[uint64]*pendingRequest // in-flight requests by ID
	readerOnce sync.Once                  // ensures reader goroutine starts once

	vfsHookMu      sync.RWMutex
	vfsHooks       []compiledVFSHook
	vfsMutateHooks []compiledVFSMutateHook
	vfsActionHooks []compiledVFSActionHook
	vfsHookActive  atomic.Bool

	emitter  *logging.Emitter
	sessions *state.Store
}

// Config holds client configuration
type Config struct {
	// BinaryPath is the path to the matchlock binary
	BinaryPath string
	// UseSudo runs matchlock with sudo (required for TAP devices)
	UseSudo bool
	// StateDir enables the session journal under the given directory.
	// Empty disables journaling.
	StateDir string
}

// DefaultConfig returns the default client configuration.
// MATCHLOCK_BIN is consulted here and nowhere else.
func DefaultConfig() Config {
	path := os.Getenv("MATCHLOCK_BIN")
	if path == "" {
		path = "matchlock"
	}
	return Config{
		BinaryPath: path,
	}
}

// NewClient creates a new Matchlock client and starts the RPC process
func NewClient(cfg Config) (*Client, error) {
	var cmd *exec.Cmd
	if cfg.UseSudo {
		cmd = exec.Command("sudo", cfg.BinaryPath, "rpc")
	} else {
		cmd = exec.Command(cfg.BinaryPath, "rpc")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errx.Wrap(ErrStdinPipe, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errx.Wrap(ErrStdoutPipe, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errx.Wrap(ErrStderrPipe, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errx.Wrap(ErrStartProc, err)
	}

	// Drain stderr in background to prevent blocking
	go io.Copy(io.Discard, stderr)

	c := &Client{
		cmd:        cmd,
		binaryPath: cfg.BinaryPath,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdout),
		pending:    make(map[uint64]*pendingRequest),
	}

	if cfg.StateDir != "" {
		sessions, err := state.Open(cfg.StateDir)
		if err != nil {
			_ = stdin.Close()
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, err
		}
		c.sessions = sessions
	}

	return c, nil
}

// VMID returns the ID of the current VM, or empty string if none created
func (c *Client) VMID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vmID
}

// LastVMID returns the current VM ID, or, when none is live, the one that
// was live before the last Close, so a caller can still Remove after closing.
func (c *Client) LastVMID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vmID != "" {
		return c.vmID
	}
	return c.lastVMID
}

// SetAuditEmitter attaches a structured event emitter. All emission is
// best-effort; a nil emitter disables it. When a VM already exists its id
// becomes the emitter's run id (unless the caller chose one explicitly).
func (c *Client) SetAuditEmitter(emitter *logging.Emitter) {
	c.mu.Lock()
	c.emitter = emitter
	vmID := c.vmID
	c.mu.Unlock()

	if emitter != nil && vmID != "" {
		emitter.SeedRunID(vmID)
	}
}

func (c *Client) auditEmitter() *logging.Emitter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitter
}

// emitAudit writes one best-effort event to the attached emitter, if any.
func (c *Client) emitAudit(eventType, summary string, data interface{}) {
	if emitter := c.auditEmitter(); emitter != nil {
		_ = emitter.Emit(eventType, summary, "", nil, data)
	}
}

func (c *Client) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdin != nil && !c.closed
}

func (c *Client) setVMID(id string) {
	c.mu.Lock()
	c.vmID = id
	c.mu.Unlock()
}

// Close closes the sandbox and cleans up resources.
// The VM state directory is preserved so it appears in "matchlock list".
// Call Remove after Close to delete the state entirely.
//
// timeout controls how long to wait for the process to exit after sending the
// close request. A zero value uses a short grace period and then force-kills
// if needed. When a non-zero timeout expires, the process is forcefully killed.
//
// Close is idempotent and swallows RPC failures because it runs in cleanup paths.
func (c *Client) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.vmID != "" {
		c.lastVMID = c.vmID
		c.vmID = ""
	}
	lastVMID := c.lastVMID
	c.mu.Unlock()

	c.setVFSHooks(nil, nil, nil)

	if c.sessions != nil && lastVMID != "" {
		_ = c.sessions.MarkClosed(lastVMID)
	}

	effectiveTimeout := timeout
	if effectiveTimeout <= 0 {
		effectiveTimeout = 2 * time.Second
	}

	if c.cmd == nil {
		// Scripted or pre-closed transport; nothing to shut down.
		if c.stdin != nil {
			_ = c.stdin.Close()
		}
		return nil
	}

	params := map[string]interface{}{
		"timeout_seconds": effectiveTimeout.Seconds(),
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	// Send close RPC with a bounded context so it doesn't block forever
	// (e.g. if the handler is draining in-flight cancelled requests).
	closeCtx, closeCancel := context.WithTimeout(context.Background(), effectiveTimeout+5*time.Second)
	c.closeRPC(closeCtx, params)
	closeCancel()
	c.stdin.Close()

	select {
	case err := <-done:
		return err
	case <-time.After(effectiveTimeout):
		c.cmd.Process.Kill()
		<-done
		return errx.With(ErrCloseTimeout, " after %s", effectiveTimeout)
	}
}

// closeRPC issues the close request past the closed flag that Close has
// already set.
func (c *Client) closeRPC(ctx context.Context, params interface{}) {
	c.readerOnce.Do(c.startReader)

	id := c.requestID.Add(1)
	pending := &pendingRequest{id: id, done: make(chan struct{})}

	c.pendingMu.Lock()
	c.pending[id] = pending
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeMessage(request{JSONRPC: "2.0", Method: "close", Params: params, ID: id}); err != nil {
		return
	}
	select {
	case <-pending.done:
	case <-ctx.Done():
	}
}

// Remove deletes the stopped VM state directory.
// Must be called after Close. Uses the matchlock CLI binary
// that was configured in Config.BinaryPath.
func (c *Client) Remove() error {
	vmID := c.LastVMID()
	if vmID == "" {
		return nil
	}
	out, err := c.runCLICommand("rm", vmID)
	if err != nil {
		return errx.With(ErrRemoveVM, " %s: %s: %w", vmID, strings.TrimSpace(string(out)), err)
	}
	if c.sessions != nil {
		_ = c.sessions.MarkRemoved(vmID)
	}
	return nil
}

func (c *Client) runCLICommand(args ...string) ([]byte, error) {
	bin := strings.TrimSpace(c.binaryPath)
	if bin == "" {
		return nil, ErrBinaryPathRequired
	}
	return exec.Command(bin, args...).CombinedOutput()
}
