package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/logging"
)

// request is one outbound JSON-RPC message. Notifications leave ID at zero
// so omitempty drops the field.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id,omitempty"`
}

// response is one inbound JSON-RPC message. A nil ID marks a notification.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// notificationFunc receives streaming notifications addressed to one
// in-flight request. It is invoked from the reader goroutine in wire
// arrival order and must not block on further RPCs.
type notificationFunc func(method string, params json.RawMessage)

// pendingRequest represents an in-flight RPC awaiting its response.
type pendingRequest struct {
	id             uint64
	result         json.RawMessage
	err            error
	done           chan struct{}
	onNotification notificationFunc
}

func (p *pendingRequest) complete(result json.RawMessage, err error) {
	select {
	case <-p.done:
		// already completed
	default:
		p.result = result
		p.err = err
		close(p.done)
	}
}

// sendRequest sends a request and blocks until the matching response arrives.
func (c *Client) sendRequest(method string, params interface{}) (json.RawMessage, error) {
	return c.sendRequestCtx(context.Background(), method, params, nil)
}

// sendRequestCtx sends a request and waits for its response. When ctx expires
// a best-effort cancel request is dispatched for the in-flight id and the
// context error is returned; a late response for the id is dropped by the
// reader because the waiter has already unregistered.
func (c *Client) sendRequestCtx(ctx context.Context, method string, params interface{}, onNotification notificationFunc) (json.RawMessage, error) {
	return c.sendRequestWithIDCtx(ctx, c.requestID.Add(1), method, params, onNotification)
}

func (c *Client) sendRequestWithIDCtx(ctx context.Context, id uint64, method string, params interface{}, onNotification notificationFunc) (json.RawMessage, error) {
	if !c.running() {
		return nil, ErrNotRunning
	}
	c.readerOnce.Do(c.startReader)

	pending := &pendingRequest{
		id:             id,
		done:           make(chan struct{}),
		onNotification: onNotification,
	}

	c.pendingMu.Lock()
	c.pending[id] = pending
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	start := time.Now()
	if err := c.writeMessage(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}); err != nil {
		return nil, err
	}

	select {
	case <-pending.done:
		c.emitRPCAudit(method, start, pending.err)
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.result, nil
	case <-ctx.Done():
		c.sendCancel(id)
		err := errx.Wrap(ErrRequestTimeout, ctx.Err())
		c.emitRPCAudit(method, start, err)
		return nil, err
	}
}

// emitRPCAudit records one completed (or failed) request on the audit
// stream, tagging peer-reported failures with their RPC error code.
func (c *Client) emitRPCAudit(method string, start time.Time, err error) {
	emitter := c.auditEmitter()
	if emitter == nil {
		return
	}
	data := &logging.RPCRequestData{
		Method:     method,
		DurationMS: time.Since(start).Milliseconds(),
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		data.ErrorCode = rpcErr.Code
	}
	_ = emitter.Emit(logging.EventRPCRequest, "rpc "+method, "", nil, data)
}

// sendNotification writes a request without an id; no response is expected.
func (c *Client) sendNotification(method string, params interface{}) error {
	if !c.running() {
		return ErrNotRunning
	}
	return c.writeMessage(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// sendCancel emits a fire-and-forget cancel for the given request id.
// The cancel gets its own id but no waiter; failures are ignored because
// the subprocess may already be unresponsive.
func (c *Client) sendCancel(target uint64) {
	_ = c.writeMessage(request{
		JSONRPC: "2.0",
		Method:  "cancel",
		Params:  map[string]interface{}{"id": target},
		ID:      c.requestID.Add(1),
	})
}

// writeMessage serializes one message as a single JSON line. The write lock
// covers composition and flush so concurrent callers never interleave bytes;
// it is never held across a wait.
func (c *Client) writeMessage(msg request) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errx.Wrap(ErrMarshalRequest, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(data); err != nil {
		return errx.Wrap(ErrWriteRequest, err)
	}
	return nil
}

func (c *Client) startReader() {
	go c.readLoop()
}

// readLoop is the only consumer of the subprocess stdout. It demultiplexes
// responses into the pending table and notifications into per-request sinks
// or the VFS event dispatcher, then fails all remaining waiters on EOF.
func (c *Client) readLoop() {
	for {
		line, err := c.stdout.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatchLine(line)
		}
		if err != nil {
			break
		}
	}
	c.failPending(ErrProcessClosed)
}

func (c *Client) dispatchLine(line []byte) {
	var msg response
	if err := json.Unmarshal(line, &msg); err != nil {
		slog.Debug("matchlock sdk: dropping unparseable line", "error", err)
		return
	}

	if msg.ID == nil {
		c.handleNotification(msg.Method, msg.Params)
		return
	}

	c.pendingMu.Lock()
	pending := c.pending[*msg.ID]
	c.pendingMu.Unlock()
	if pending == nil {
		// Late reply for a cancelled or unknown request.
		slog.Debug("matchlock sdk: dropping response for unknown id", "id", *msg.ID)
		return
	}

	if msg.Error != nil {
		pending.complete(nil, &RPCError{Code: msg.Error.Code, Message: msg.Error.Message})
		return
	}
	pending.complete(msg.Result, nil)
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	if method == "event" {
		c.handleEventNotification(params)
		return
	}

	var target struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(params, &target); err != nil {
		return
	}

	c.pendingMu.Lock()
	pending := c.pending[target.ID]
	c.pendingMu.Unlock()
	if pending == nil || pending.onNotification == nil {
		return
	}
	pending.onNotification(method, params)
}

func (c *Client) handleEventNotification(params json.RawMessage) {
	var event struct {
		File struct {
			Op   string `json:"op"`
			Path string `json:"path"`
			Size int64  `json:"size"`
			Mode uint32 `json:"mode"`
			UID  int    `json:"uid"`
			GID  int    `json:"gid"`
		} `json:"file"`
	}
	if err := json.Unmarshal(params, &event); err != nil {
		slog.Debug("matchlock sdk: dropping malformed event", "error", err)
		return
	}
	c.handleVFSFileEvent(event.File.Op, event.File.Path, event.File.Size, event.File.Mode, event.File.UID, event.File.GID)
}

// failPending fails every in-flight request with err and clears the table.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, pending := range c.pending {
		pending.complete(nil, err)
		delete(c.pending, id)
	}
}
