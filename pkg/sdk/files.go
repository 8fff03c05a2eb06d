package sdk

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/logging"
)

// WriteFile writes content to a file in the sandbox with mode 0644.
func (c *Client) WriteFile(ctx context.Context, path string, content []byte) error {
	return c.WriteFileMode(ctx, path, content, 0644)
}

// WriteFileMode writes content to a file with specific permissions.
// Local action hooks run first (op=write); matching mutate hooks may then
// rewrite the payload before it is sent.
func (c *Client) WriteFileMode(ctx context.Context, path string, content []byte, mode uint32) error {
	if err := c.applyLocalActionHooks(ctx, VFSHookOpWrite, path, len(content), mode); err != nil {
		return err
	}

	mutated, err := c.applyLocalWriteMutations(ctx, path, content, mode)
	if err != nil {
		return err
	}

	_, err = c.sendRequestCtx(ctx, "write_file", map[string]interface{}{
		"path":    path,
		"content": base64.StdEncoding.EncodeToString(mutated),
		"mode":    mode,
	}, nil)
	if err != nil {
		return err
	}

	c.emitAudit(logging.EventVFSEvent, "sdk write "+path, &logging.VFSEventData{
		Op:   VFSHookOpWrite,
		Path: path,
		Size: int64(len(mutated)),
	})
	return nil
}

// ReadFile reads a file from the sandbox.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := c.applyLocalActionHooks(ctx, VFSHookOpRead, path, 0, 0); err != nil {
		return nil, err
	}

	result, err := c.sendRequestCtx(ctx, "read_file", map[string]string{"path": path}, nil)
	if err != nil {
		return nil, err
	}

	var readResult struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, errx.Wrap(ErrParseReadResult, err)
	}

	content, err := base64.StdEncoding.DecodeString(readResult.Content)
	if err != nil {
		return nil, errx.Wrap(ErrParseReadResult, err)
	}

	c.emitAudit(logging.EventVFSEvent, "sdk read "+path, &logging.VFSEventData{
		Op:   VFSHookOpRead,
		Path: path,
		Size: int64(len(content)),
	})
	return content, nil
}

// FileInfo holds file metadata
type FileInfo struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Mode  uint32 `json:"mode"`
	IsDir bool   `json:"is_dir"`
}

// ListFiles lists files in a directory.
func (c *Client) ListFiles(ctx context.Context, path string) ([]FileInfo, error) {
	if err := c.applyLocalActionHooks(ctx, VFSHookOpReadDir, path, 0, 0); err != nil {
		return nil, err
	}

	result, err := c.sendRequestCtx(ctx, "list_files", map[string]string{"path": path}, nil)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		Files []FileInfo `json:"files"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, errx.Wrap(ErrParseListResult, err)
	}

	c.emitAudit(logging.EventVFSEvent, "sdk readdir "+path, &logging.VFSEventData{
		Op:   VFSHookOpReadDir,
		Path: path,
		Size: int64(len(listResult.Files)),
	})
	return listResult.Files, nil
}
