package sdk

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

var validVolumeName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// VolumeInfo describes a named volume returned by volume CRUD operations.
type VolumeInfo struct {
	Name string `json:"name"`
	Size string `json:"size"`
	Path string `json:"path"`
}

// VolumeCreate creates a named raw ext4 volume and returns its metadata.
func (c *Client) VolumeCreate(name string, sizeMB int) (*VolumeInfo, error) {
	name, err := normalizeVolumeName(name)
	if err != nil {
		return nil, err
	}
	if sizeMB <= 0 {
		return nil, ErrInvalidVolumeSize
	}

	out, err := c.runCLICommand("volume", "create", name, "--size", strconv.Itoa(sizeMB), "--json")
	if err != nil {
		return nil, errx.With(ErrVolumeCommand, " create %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}

	info, err := parseVolumeCreateOutput(string(out))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(info.Name) == "" {
		info.Name = name
	}
	if strings.TrimSpace(info.Size) == "" {
		info.Size = fmt.Sprintf("%.1f MB", float64(sizeMB))
	}
	return &info, nil
}

// VolumeList returns all named raw ext4 volumes.
func (c *Client) VolumeList() ([]VolumeInfo, error) {
	out, err := c.runCLICommand("volume", "ls", "--json")
	if err != nil {
		return nil, errx.With(ErrVolumeCommand, " ls: %s: %w", strings.TrimSpace(string(out)), err)
	}

	return parseVolumeListOutput(string(out))
}

// VolumeRemove removes a named raw ext4 volume.
func (c *Client) VolumeRemove(name string) error {
	name, err := normalizeVolumeName(name)
	if err != nil {
		return err
	}

	out, err := c.runCLICommand("volume", "rm", name)
	if err != nil {
		return errx.With(ErrVolumeCommand, " rm %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// normalizeVolumeName rejects names the supervisor's volume store would
// refuse, so typos fail before a subprocess is spawned.
func normalizeVolumeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrVolumeNameRequired
	}
	if !validVolumeName.MatchString(name) {
		return "", errx.With(ErrInvalidVolumeName, ": %q (allowed: alphanumeric, '_', '.', '-', must start with alphanumeric)", name)
	}
	return name, nil
}

func parseVolumeCreateOutput(stdout string) (VolumeInfo, error) {
	var info VolumeInfo
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &info); err != nil {
		return VolumeInfo{}, errx.Wrap(ErrParseVolumeCreateResult, err)
	}
	if strings.TrimSpace(info.Path) == "" {
		return VolumeInfo{}, ErrParseVolumeCreateResult
	}
	return info, nil
}

func parseVolumeListOutput(stdout string) ([]VolumeInfo, error) {
	var volumes []VolumeInfo
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &volumes); err != nil {
		return nil, errx.Wrap(ErrParseVolumeListResult, err)
	}
	for _, v := range volumes {
		if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.Path) == "" {
			return nil, ErrParseVolumeListResult
		}
	}
	return volumes, nil
}
