package sdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/matchlock-go/pkg/logging"
)

// newFileServerClient scripts a supervisor holding files in a map.
func newFileServerClient(t *testing.T) (*Client, *sync.Map, func()) {
	t.Helper()

	var files sync.Map

	client, cleanup := newScriptedClient(t, func(req request) response {
		params, _ := req.Params.(map[string]interface{})
		switch req.Method {
		case "write_file":
			path, _ := params["path"].(string)
			content, _ := params["content"].(string)
			files.Store(path, content)
			return response{JSONRPC: "2.0", Result: json.RawMessage(`{}`), ID: &req.ID}
		case "read_file":
			path, _ := params["path"].(string)
			content, ok := files.Load(path)
			if !ok {
				return response{
					JSONRPC: "2.0",
					Error:   &rpcError{Code: ErrCodeFileFailed, Message: "no such file"},
					ID:      &req.ID,
				}
			}
			result, _ := json.Marshal(map[string]string{"content": content.(string)})
			return response{JSONRPC: "2.0", Result: result, ID: &req.ID}
		case "list_files":
			return response{
				JSONRPC: "2.0",
				Result: json.RawMessage(`{"files":[
					{"name":"a.txt","size":4,"mode":420,"is_dir":false},
					{"name":"sub","size":0,"mode":493,"is_dir":true}
				]}`),
				ID: &req.ID,
			}
		default:
			return methodNotFound(req.ID)
		}
	})
	return client, &files, cleanup
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	payload := []byte("hello sandbox\x00\x01\x02")
	require.NoError(t, client.WriteFile(context.Background(), "/workspace/data.bin", payload))

	got, err := client.ReadFile(context.Background(), "/workspace/data.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, got, "write_file then read_file yields the original bytes when no mutate hook is registered")
}

func TestWriteFileEncodesBase64AndMode(t *testing.T) {
	client, files, cleanup := newFileServerClient(t)
	defer cleanup()

	require.NoError(t, client.WriteFileMode(context.Background(), "/workspace/s.py", []byte("print(1)"), 0755))

	stored, ok := files.Load("/workspace/s.py")
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(stored.(string))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(decoded))
}

func TestReadFileMissingIsFileError(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	_, err := client.ReadFile(context.Background(), "/workspace/missing")
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.True(t, rpcErr.IsFileError())
}

func TestListFilesDecodesEntries(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	infos, err := client.ListFiles(context.Background(), "/workspace")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, FileInfo{Name: "a.txt", Size: 4, Mode: 420, IsDir: false}, infos[0])
	assert.Equal(t, FileInfo{Name: "sub", Size: 0, Mode: 493, IsDir: true}, infos[1])
}

func TestActionHookBlocksWriteBeforeAnyIO(t *testing.T) {
	var wireWrites int
	client, cleanup := newScriptedClient(t, func(req request) response {
		if req.Method == "write_file" {
			wireWrites++
		}
		return response{JSONRPC: "2.0", Result: json.RawMessage(`{}`), ID: &req.ID}
	})
	defer cleanup()

	client.setVFSHooks(nil, nil, []compiledVFSActionHook{
		{
			name: "deny-workspace",
			ops:  map[string]struct{}{"write": {}},
			path: "/workspace/*",
			callback: func(ctx context.Context, req VFSActionRequest) VFSHookAction {
				return VFSHookActionBlock
			},
		},
	})

	err := client.WriteFile(context.Background(), "/workspace/x", []byte("abcd"))
	require.ErrorIs(t, err, ErrVFSHookBlocked)
	assert.ErrorContains(t, err, "op=write")
	assert.ErrorContains(t, err, "path=/workspace/x")
	assert.ErrorContains(t, err, `hook="deny-workspace"`)
	assert.Equal(t, 0, wireWrites, "no bytes reach the wire for a blocked write")
}

func TestActionHookAllowAndEmptyContinue(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, nil, []compiledVFSActionHook{
		{
			name:     "explicit-allow",
			callback: func(ctx context.Context, req VFSActionRequest) VFSHookAction { return "Allow" },
		},
		{
			name:     "empty-decision",
			callback: func(ctx context.Context, req VFSActionRequest) VFSHookAction { return "" },
		},
	})

	require.NoError(t, client.WriteFile(context.Background(), "/workspace/ok", []byte("fine")))
}

func TestActionHookInvalidDecision(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, nil, []compiledVFSActionHook{
		{
			name:     "confused",
			callback: func(ctx context.Context, req VFSActionRequest) VFSHookAction { return "maybe" },
		},
	})

	err := client.WriteFile(context.Background(), "/workspace/x", []byte("abcd"))
	require.ErrorIs(t, err, ErrVFSHookReturn)
	assert.ErrorContains(t, err, `"maybe"`)
}

func TestActionHookGuardsReadAndList(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, nil, []compiledVFSActionHook{
		{
			name: "deny-reads",
			ops:  map[string]struct{}{"read": {}, "readdir": {}},
			callback: func(ctx context.Context, req VFSActionRequest) VFSHookAction {
				return VFSHookActionBlock
			},
		},
	})

	_, err := client.ReadFile(context.Background(), "/workspace/a.txt")
	assert.ErrorIs(t, err, ErrVFSHookBlocked)

	_, err = client.ListFiles(context.Background(), "/workspace")
	assert.ErrorIs(t, err, ErrVFSHookBlocked)

	// Writes are not covered by the op filter.
	require.NoError(t, client.WriteFile(context.Background(), "/workspace/w", []byte("ok")))
}

func TestMutateHookRewritesPayload(t *testing.T) {
	client, files, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, []compiledVFSMutateHook{
		{
			name: "stamp",
			ops:  map[string]struct{}{"write": {}},
			path: "/workspace/*",
			callback: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
				return []byte(fmt.Sprintf("size=%d;mode=0o%o", req.Size, req.Mode)), nil
			},
		},
	}, nil)

	require.NoError(t, client.WriteFileMode(context.Background(), "/workspace/t", []byte("abcd"), 0644))

	stored, ok := files.Load("/workspace/t")
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(stored.(string))
	require.NoError(t, err)
	assert.Equal(t, "size=4;mode=0o644", string(decoded))
}

func TestMutateHooksThreadInDeclarationOrder(t *testing.T) {
	client, files, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, []compiledVFSMutateHook{
		{
			name: "first",
			callback: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
				return []byte(fmt.Sprintf("len:%d", req.Size)), nil
			},
		},
		{
			name: "second",
			callback: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
				// Sees the first hook's output, not the original payload.
				if req.Size != len("len:4") {
					return nil, fmt.Errorf("unexpected threaded size %d", req.Size)
				}
				return nil, nil // leave unchanged
			},
		},
	}, nil)

	require.NoError(t, client.WriteFile(context.Background(), "/workspace/chain", []byte("abcd")))

	stored, ok := files.Load("/workspace/chain")
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(stored.(string))
	require.NoError(t, err)
	assert.Equal(t, "len:4", string(decoded))
}

func TestMutateHookErrorAbortsWrite(t *testing.T) {
	var wireWrites int
	client, cleanup := newScriptedClient(t, func(req request) response {
		if req.Method == "write_file" {
			wireWrites++
		}
		return response{JSONRPC: "2.0", Result: json.RawMessage(`{}`), ID: &req.ID}
	})
	defer cleanup()

	client.setVFSHooks(nil, []compiledVFSMutateHook{
		{
			name: "failing",
			callback: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
				return nil, fmt.Errorf("refusing payload")
			},
		},
	}, nil)

	err := client.WriteFile(context.Background(), "/workspace/x", []byte("abcd"))
	require.ErrorContains(t, err, "refusing payload")
	assert.Equal(t, 0, wireWrites)
}

func TestFileOperationsEmitAuditEvents(t *testing.T) {
	client, _, cleanup := newFileServerClient(t)
	defer cleanup()

	sink := &captureSink{}
	client.SetAuditEmitter(logging.NewEmitter(logging.EmitterConfig{AgentSystem: "test"}, sink))

	require.NoError(t, client.WriteFile(context.Background(), "/workspace/audited", []byte("abcd")))
	_, err := client.ReadFile(context.Background(), "/workspace/audited")
	require.NoError(t, err)
	_, err = client.ListFiles(context.Background(), "/workspace")
	require.NoError(t, err)

	events := sink.byType(logging.EventVFSEvent)
	require.Len(t, events, 3)

	var data logging.VFSEventData
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, "write", data.Op)
	assert.Equal(t, "/workspace/audited", data.Path)
	assert.Equal(t, int64(4), data.Size)

	require.NoError(t, json.Unmarshal(events[1].Data, &data))
	assert.Equal(t, "read", data.Op)

	require.NoError(t, json.Unmarshal(events[2].Data, &data))
	assert.Equal(t, "readdir", data.Op)
	assert.Equal(t, int64(2), data.Size, "readdir size counts entries")
}

func TestMutateHookSkipsNonMatchingPaths(t *testing.T) {
	client, files, cleanup := newFileServerClient(t)
	defer cleanup()

	client.setVFSHooks(nil, []compiledVFSMutateHook{
		{
			name: "scoped",
			path: "/workspace/*",
			callback: func(ctx context.Context, req VFSMutateRequest) ([]byte, error) {
				return []byte("mutated"), nil
			},
		},
	}, nil)

	require.NoError(t, client.WriteFile(context.Background(), "/tmp/outside", []byte("original")))

	stored, ok := files.Load("/tmp/outside")
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(stored.(string))
	require.NoError(t, err)
	assert.Equal(t, "original", string(decoded))
}
