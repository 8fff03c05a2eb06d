package sdk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileVFSHooksSplitsLocalCallbacks(t *testing.T) {
	cfg := &VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Phase:  "before",
				Ops:    []VFSHookOp{VFSHookOpCreate},
				Path:   "/workspace/blocked.txt",
				Action: VFSHookActionBlock,
			},
			{
				Name:  "after-callback",
				Phase: "after",
				Ops:   []VFSHookOp{VFSHookOpWrite},
				Path:  "/workspace/*",
				Hook: func(ctx context.Context, event VFSHookEvent) error {
					return nil
				},
			},
			{
				Name:  "mutate-callback",
				Phase: "before",
				Ops:   []VFSHookOp{VFSHookOpWrite},
				Path:  "/workspace/*",
				MutateHook: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
					return nil, nil
				},
			},
			{
				Name: "action-callback",
				Ops:  []VFSHookOp{VFSHookOpRead},
				ActionHook: func(ctx context.Context, req VFSActionRequest) VFSHookAction {
					return VFSHookActionAllow
				},
			},
		},
	}

	wire, local, localMutate, localAction, err := compileVFSHooks(cfg)
	require.NoError(t, err)
	require.NotNil(t, wire)
	assert.True(t, wire.EmitEvents, "event callbacks force emit_events")
	require.Len(t, wire.Rules, 1, "callback rules never reach the wire")
	assert.Equal(t, "block", wire.Rules[0].Action)
	require.Len(t, local, 1)
	assert.Equal(t, "after-callback", local[0].name)
	require.Len(t, localMutate, 1)
	assert.Equal(t, "mutate-callback", localMutate[0].name)
	require.Len(t, localAction, 1)
	assert.Equal(t, "action-callback", localAction[0].name)
}

func TestCompileVFSHooksNilConfig(t *testing.T) {
	wire, local, localMutate, localAction, err := compileVFSHooks(nil)
	require.NoError(t, err)
	assert.Nil(t, wire)
	assert.Nil(t, local)
	assert.Nil(t, localMutate)
	assert.Nil(t, localAction)
}

func TestCompileVFSHooksEmptyWireConfigDropped(t *testing.T) {
	wire, _, localMutate, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name: "mutate-only",
				MutateHook: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
					return nil, nil
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, wire, "mutate hooks alone need neither wire rules nor events")
	require.Len(t, localMutate, 1)
}

func TestCompileVFSHooksLowercasesWireOps(t *testing.T) {
	wire, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{Ops: []VFSHookOp{"WRITE", "Create"}, Action: "BLOCK"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, wire)
	require.Len(t, wire.Rules, 1)
	assert.Equal(t, []string{"write", "create"}, wire.Rules[0].Ops)
	assert.Equal(t, "block", wire.Rules[0].Action)
}

func TestCompileVFSHooksPassesExecAfterThrough(t *testing.T) {
	wire, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:      "exec-after",
				Phase:     "after",
				Ops:       []VFSHookOp{VFSHookOpWrite},
				Action:    VFSHookActionExecAfter,
				TimeoutMS: 1500,
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, wire)
	require.Len(t, wire.Rules, 1)
	assert.Equal(t, "exec_after", wire.Rules[0].Action)
	assert.Equal(t, 1500, wire.Rules[0].TimeoutMS)
}

func TestCompileVFSHooksRejectsMultipleCallbacks(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:  "two-callbacks",
				Phase: "after",
				Hook: func(ctx context.Context, event VFSHookEvent) error {
					return nil
				},
				MutateHook: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
					return nil, nil
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
	assert.ErrorContains(t, err, "more than one callback")
}

func TestCompileVFSHooksRejectsBeforeEventCallback(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:  "before-callback",
				Phase: "before",
				Hook: func(ctx context.Context, event VFSHookEvent) error {
					return nil
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
	assert.ErrorContains(t, err, "phase=after")
}

func TestCompileVFSHooksRejectsDangerousBeforePhase(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:  "dangerous-before",
				Phase: "before",
				DangerousHook: func(ctx context.Context, client *Client, event VFSHookEvent) error {
					return nil
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
}

func TestCompileVFSHooksRejectsCallbackWithBlockAction(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:   "block-callback",
				Phase:  "after",
				Action: VFSHookActionBlock,
				Hook: func(ctx context.Context, event VFSHookEvent) error {
					return nil
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
	assert.ErrorContains(t, err, "cannot set action")
}

func TestCompileVFSHooksRejectsMutateAfterPhase(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:  "mutate-after",
				Phase: "after",
				MutateHook: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
					return nil, nil
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
}

func TestCompileVFSHooksRejectsActionHookAfterPhase(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:  "action-after",
				Phase: "after",
				ActionHook: func(ctx context.Context, req VFSActionRequest) VFSHookAction {
					return VFSHookActionAllow
				},
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
}

func TestCompileVFSHooksRejectsMutateWriteWithoutCallback(t *testing.T) {
	_, _, _, _, err := compileVFSHooks(&VFSInterceptionConfig{
		Rules: []VFSHookRule{
			{
				Name:   "wire-mutate",
				Phase:  "before",
				Ops:    []VFSHookOp{VFSHookOpWrite},
				Action: VFSHookActionMutateWrite,
			},
		},
	})
	require.ErrorIs(t, err, ErrInvalidVFSHook)
	assert.ErrorContains(t, err, "mutate_write")
}

func TestVFSHookEventMatching(t *testing.T) {
	c := &Client{}
	var runs atomic.Int32

	c.setVFSHooks([]compiledVFSHook{
		{
			name: "write-only",
			ops:  map[string]struct{}{"write": {}},
			path: "/workspace/*",
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				runs.Add(1)
				return nil
			},
		},
	}, nil, nil)

	// Op mismatch.
	c.handleVFSFileEvent("read", "/workspace/a.txt", 0, 0, 0, 0)
	// Path mismatch.
	c.handleVFSFileEvent("write", "/etc/passwd", 0, 0, 0, 0)
	// Match; op comparison is case-insensitive.
	c.handleVFSFileEvent("WRITE", "/workspace/a.txt", 0, 0, 0, 0)

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestVFSSafeHookRecursionSuppressed(t *testing.T) {
	c := &Client{}
	var runs atomic.Int32

	c.setVFSHooks([]compiledVFSHook{
		{
			path: "/workspace/*",
			callback: func(ctx context.Context, client *Client, event VFSHookEvent) error {
				runs.Add(1)
				// Re-emit a matching event while inside the callback.
				client.handleVFSFileEvent("write", "/workspace/nested.txt", 0, 0, 0, 0)
				return nil
			},
		},
	}, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/trigger.txt", 0, 0, 0, 0)

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 20*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "safe hooks run exactly once per original event")
}

func TestVFSDangerousHookReenters(t *testing.T) {
	c := &Client{}
	var runs atomic.Int32

	c.setVFSHooks([]compiledVFSHook{
		{
			name:      "recursive",
			path:      "/workspace/*",
			dangerous: true,
			callback: func(ctx context.Context, client *Client, event VFSHookEvent) error {
				if runs.Add(1) < 3 {
					client.handleVFSFileEvent("write", "/workspace/again.txt", 0, 0, 0, 0)
				}
				return nil
			},
		},
	}, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/trigger.txt", 0, 0, 0, 0)

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestVFSSafeHooksRunInOrder(t *testing.T) {
	c := &Client{}
	order := make(chan string, 2)

	c.setVFSHooks([]compiledVFSHook{
		{
			name: "first",
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				order <- "first"
				return nil
			},
		},
		{
			name: "second",
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				order <- "second"
				return nil
			},
		},
	}, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/a.txt", 0, 0, 0, 0)

	require.Equal(t, "first", <-order)
	require.Equal(t, "second", <-order)
}

func TestVFSHookErrorsAreSwallowed(t *testing.T) {
	c := &Client{}
	var runs atomic.Int32

	c.setVFSHooks([]compiledVFSHook{
		{
			name: "failing",
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				runs.Add(1)
				return errors.New("hook exploded")
			},
		},
		{
			name: "next",
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				runs.Add(1)
				return nil
			},
		},
	}, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/a.txt", 0, 0, 0, 0)

	require.Eventually(t, func() bool {
		return runs.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClearedHookTablesStopDispatch(t *testing.T) {
	c := &Client{}
	var runs atomic.Int32

	c.setVFSHooks([]compiledVFSHook{
		{
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				runs.Add(1)
				return nil
			},
		},
	}, nil, nil)
	c.setVFSHooks(nil, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/late.txt", 0, 0, 0, 0)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load(), "no callbacks fire after tables are cleared")
}

func TestVFSHookTimeoutContext(t *testing.T) {
	c := &Client{}
	expired := make(chan bool, 1)

	c.setVFSHooks([]compiledVFSHook{
		{
			name:    "timed",
			timeout: 10 * time.Millisecond,
			callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
				select {
				case <-ctx.Done():
					expired <- true
				case <-time.After(2 * time.Second):
					expired <- false
				}
				return nil
			},
		},
	}, nil, nil)

	c.handleVFSFileEvent("write", "/workspace/slow.txt", 0, 0, 0, 0)

	select {
	case wasExpired := <-expired:
		assert.True(t, wasExpired, "hook context honors timeout_ms")
	case <-time.After(3 * time.Second):
		t.Fatal("hook never observed its context")
	}
}
