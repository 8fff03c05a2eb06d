package sdk

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/api"
	"github.com/jingkaihe/matchlock-go/pkg/logging"
)

// compileVFSHooks partitions user rules into the wire config sent to the
// supervisor and three local dispatch tables. Rules carrying a callback
// never reach the wire; rules without one pass through unchanged (including
// supervisor-defined actions such as exec_after).
func compileVFSHooks(cfg *VFSInterceptionConfig) (*api.VFSInterceptionConfig, []compiledVFSHook, []compiledVFSMutateHook, []compiledVFSActionHook, error) {
	if cfg == nil {
		return nil, nil, nil, nil, nil
	}

	wire := &api.VFSInterceptionConfig{
		EmitEvents: cfg.EmitEvents,
	}
	local := make([]compiledVFSHook, 0, len(cfg.Rules))
	localMutate := make([]compiledVFSMutateHook, 0, len(cfg.Rules))
	localAction := make([]compiledVFSActionHook, 0, len(cfg.Rules))
	wire.Rules = make([]api.VFSHookRule, 0, len(cfg.Rules))

	for _, rule := range cfg.Rules {
		callbackCount := 0
		if rule.Hook != nil {
			callbackCount++
		}
		if rule.DangerousHook != nil {
			callbackCount++
		}
		if rule.MutateHook != nil {
			callbackCount++
		}
		if rule.ActionHook != nil {
			callbackCount++
		}
		if callbackCount > 1 {
			return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q cannot set more than one callback hook", rule.Name)
		}

		action := strings.ToLower(strings.TrimSpace(rule.Action))

		if callbackCount == 0 {
			if action == VFSHookActionMutateWrite {
				return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q mutate_write requires MutateHook callback", rule.Name)
			}
			wire.Rules = append(wire.Rules, api.VFSHookRule{
				Name:      rule.Name,
				Phase:     strings.ToLower(strings.TrimSpace(rule.Phase)),
				Ops:       lowerOps(rule.Ops),
				Path:      rule.Path,
				Action:    action,
				TimeoutMS: rule.TimeoutMS,
			})
			continue
		}

		if action != "" && action != VFSHookActionAllow {
			return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q callback hooks cannot set action=%q", rule.Name, rule.Action)
		}

		switch {
		case rule.Hook != nil:
			if !strings.EqualFold(rule.Phase, VFSHookPhaseAfter) {
				return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q must use phase=after", rule.Name)
			}
			hook := rule.Hook
			local = append(local, compiledVFSHook{
				name:    rule.Name,
				ops:     opSet(rule.Ops),
				path:    rule.Path,
				timeout: hookTimeout(rule.TimeoutMS),
				callback: func(ctx context.Context, _ *Client, event VFSHookEvent) error {
					return hook(ctx, event)
				},
			})

		case rule.DangerousHook != nil:
			if !strings.EqualFold(rule.Phase, VFSHookPhaseAfter) {
				return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q dangerous hooks must use phase=after", rule.Name)
			}
			hook := rule.DangerousHook
			local = append(local, compiledVFSHook{
				name:      rule.Name,
				ops:       opSet(rule.Ops),
				path:      rule.Path,
				timeout:   hookTimeout(rule.TimeoutMS),
				dangerous: true,
				callback: func(ctx context.Context, client *Client, event VFSHookEvent) error {
					return hook(ctx, client, event)
				},
			})

		case rule.ActionHook != nil:
			if rule.Phase != "" && !strings.EqualFold(rule.Phase, VFSHookPhaseBefore) {
				return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q action hook must use phase=before", rule.Name)
			}
			localAction = append(localAction, compiledVFSActionHook{
				name:     rule.Name,
				ops:      opSet(rule.Ops),
				path:     rule.Path,
				callback: rule.ActionHook,
			})

		default: // MutateHook
			if rule.Phase != "" && !strings.EqualFold(rule.Phase, VFSHookPhaseBefore) {
				return nil, nil, nil, nil, errx.With(ErrInvalidVFSHook, " %q mutate hook must use phase=before", rule.Name)
			}
			localMutate = append(localMutate, compiledVFSMutateHook{
				name:     rule.Name,
				ops:      opSet(rule.Ops),
				path:     rule.Path,
				callback: rule.MutateHook,
			})
		}
	}

	// Event callbacks are exercised only when the supervisor emits events.
	if len(local) > 0 {
		wire.EmitEvents = true
	}

	if len(wire.Rules) == 0 && !wire.EmitEvents {
		wire = nil
	}

	return wire, local, localMutate, localAction, nil
}

func opSet(ops []VFSHookOp) map[string]struct{} {
	if len(ops) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if op == "" {
			continue
		}
		set[strings.ToLower(op)] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func lowerOps(ops []VFSHookOp) []string {
	if len(ops) == 0 {
		return nil
	}
	lowered := make([]string, 0, len(ops))
	for _, op := range ops {
		if op == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(op))
	}
	return lowered
}

func hookTimeout(timeoutMS int) time.Duration {
	if timeoutMS <= 0 {
		return 0
	}
	return time.Duration(timeoutMS) * time.Millisecond
}

// setVFSHooks replaces all local hook tables atomically and resets the
// re-entrancy guard.
func (c *Client) setVFSHooks(hooks []compiledVFSHook, mutateHooks []compiledVFSMutateHook, actionHooks []compiledVFSActionHook) {
	c.vfsHookMu.Lock()
	c.vfsHooks = hooks
	c.vfsMutateHooks = mutateHooks
	c.vfsActionHooks = actionHooks
	c.vfsHookActive.Store(false)
	c.vfsHookMu.Unlock()
}

// handleVFSFileEvent dispatches one supervisor event to matching local hooks.
// Dangerous hooks each get their own goroutine and may re-enter the client.
// Safe hooks run as one ordered batch under the re-entrancy guard; when the
// guard is already held the batch is dropped to stop recursive event storms.
func (c *Client) handleVFSFileEvent(op, path string, size int64, mode uint32, uid, gid int) {
	c.vfsHookMu.RLock()
	hooks := append([]compiledVFSHook(nil), c.vfsHooks...)
	c.vfsHookMu.RUnlock()

	if len(hooks) == 0 {
		return
	}
	event := VFSHookEvent{
		Op:   op,
		Path: path,
		Size: size,
		Mode: mode,
		UID:  uid,
		GID:  gid,
	}

	c.emitAudit(logging.EventVFSEvent, "vfs "+op+" "+path, &logging.VFSEventData{
		Op:   op,
		Path: path,
		Size: size,
	})

	opLower := strings.ToLower(op)
	safeHooks := make([]compiledVFSHook, 0, len(hooks))
	for _, hook := range hooks {
		if !matchesHook(hook.ops, hook.path, opLower, path) {
			continue
		}
		if hook.dangerous {
			go c.runSingleVFSHook(hook, event)
			continue
		}
		safeHooks = append(safeHooks, hook)
	}

	if len(safeHooks) == 0 {
		return
	}
	if c.vfsHookActive.Load() {
		return
	}

	go c.runVFSSafeHooksForEvent(safeHooks, event)
}

func (c *Client) runVFSSafeHooksForEvent(hooks []compiledVFSHook, event VFSHookEvent) {
	if !c.vfsHookActive.CompareAndSwap(false, true) {
		return
	}
	defer c.vfsHookActive.Store(false)

	for _, hook := range hooks {
		c.runSingleVFSHook(hook, event)
	}
}

// runSingleVFSHook invokes one callback, swallowing its error; event hook
// failures never propagate to the reader or to unrelated waiters.
func (c *Client) runSingleVFSHook(hook compiledVFSHook, event VFSHookEvent) {
	ctx := context.Background()
	cancel := func() {}
	if hook.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, hook.timeout)
	}
	defer cancel()
	if err := hook.callback(ctx, c, event); err != nil {
		slog.Debug("matchlock sdk: vfs hook failed", "hook", hook.name, "op", event.Op, "path", event.Path, "error", err)
	}
}

func matchesHook(ops map[string]struct{}, pattern, op, path string) bool {
	if len(ops) > 0 {
		if _, ok := ops[op]; !ok {
			return false
		}
	}
	if pattern == "" {
		return true
	}
	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	return matched
}

// applyLocalActionHooks runs matching before-op decision hooks for an
// SDK-side VFS call. A block decision aborts the call before any bytes are
// written to the supervisor.
func (c *Client) applyLocalActionHooks(ctx context.Context, op VFSHookOp, path string, size int, mode uint32) error {
	c.vfsHookMu.RLock()
	hooks := append([]compiledVFSActionHook(nil), c.vfsActionHooks...)
	c.vfsHookMu.RUnlock()

	if len(hooks) == 0 {
		return nil
	}

	req := VFSActionRequest{
		Op:   op,
		Path: path,
		Size: size,
		Mode: mode,
		UID:  os.Geteuid(),
		GID:  os.Getegid(),
	}

	opLower := strings.ToLower(op)
	for _, hook := range hooks {
		if !matchesHook(hook.ops, hook.path, opLower, path) {
			continue
		}

		decision := strings.ToLower(strings.TrimSpace(hook.callback(ctx, req)))
		switch decision {
		case "", VFSHookActionAllow:
			continue
		case VFSHookActionBlock:
			c.emitAudit(logging.EventHookDecision, "blocked "+op+" "+path, &logging.HookDecisionData{
				Hook:     hook.name,
				Op:       op,
				Path:     path,
				Decision: VFSHookActionBlock,
			})
			return errx.With(ErrVFSHookBlocked, ": op=%s path=%s hook=%q", op, path, hook.name)
		default:
			return errx.With(ErrVFSHookReturn, ": action hook %q returned %q", hook.name, decision)
		}
	}

	return nil
}

// applyLocalWriteMutations threads the write payload through matching mutate
// hooks in declaration order; each hook sees the previous hook's output.
func (c *Client) applyLocalWriteMutations(ctx context.Context, path string, content []byte, mode uint32) ([]byte, error) {
	c.vfsHookMu.RLock()
	hooks := append([]compiledVFSMutateHook(nil), c.vfsMutateHooks...)
	c.vfsHookMu.RUnlock()

	if len(hooks) == 0 {
		return content, nil
	}

	current := content
	for _, hook := range hooks {
		if !matchesHook(hook.ops, hook.path, VFSHookOpWrite, path) {
			continue
		}
		req := VFSMutateRequest{
			Path: path,
			Size: len(current),
			Mode: mode,
			UID:  os.Geteuid(),
			GID:  os.Getegid(),
		}
		mutated, err := hook.callback(ctx, req)
		if err != nil {
			return nil, err
		}
		if mutated != nil {
			current = mutated
			c.emitAudit(logging.EventWriteMutation, "mutated write "+path, &logging.WriteMutationData{
				Hook: hook.name,
				Path: path,
				Size: len(current),
			})
		}
	}

	return current, nil
}
