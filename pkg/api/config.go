// Package api holds the wire-level types and helpers shared with the
// matchlock supervisor's JSON-RPC surface.
package api

import (
	"fmt"
	"regexp"
)

// DefaultWorkspace is the conventional mount point for the VFS in the guest.
// VFS is opt-in and this path is used only when explicitly configured.
const DefaultWorkspace = "/workspace"

const (
	DefaultCPUs           = 1
	DefaultMemoryMB       = 512
	DefaultDiskSizeMB     = 5120
	DefaultTimeoutSeconds = 300
	DefaultNetworkMTU     = 1500
)

// DefaultDNSServers are used by the supervisor when no custom DNS servers
// are configured.
var DefaultDNSServers = []string{"8.8.8.8", "8.8.4.4"}

// Mount types accepted by the supervisor's vfs.mounts config.
const (
	MountTypeMemory  = "memory"
	MountTypeRealFS  = "real_fs"
	MountTypeOverlay = "overlay"
)

// HostIPMapping injects a static host-to-IP entry into the guest /etc/hosts.
type HostIPMapping struct {
	Host string `json:"host"`
	IP   string `json:"ip"`
}

// Secret is the wire shape of one injected secret.
type Secret struct {
	Value string   `json:"value"`
	Hosts []string `json:"hosts,omitempty"`
}

var validGuestMountPath = regexp.MustCompile(`^/[a-zA-Z0-9/_.-]+$`)

// ValidateGuestMount checks that a guest mount path is safe for use in
// kernel cmdline args and shell scripts.
func ValidateGuestMount(path string) error {
	if !validGuestMountPath.MatchString(path) {
		return fmt.Errorf("invalid guest mount path %q: must be absolute and contain only alphanumeric, '/', '_', '.', '-'", path)
	}
	return nil
}
