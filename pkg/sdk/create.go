package sdk

import (
	"context"
	"encoding/json"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/api"
)

// Create creates and starts a new sandbox VM and returns its ID.
// Configuration is validated and hooks are compiled before any bytes are
// written to the supervisor.
func (c *Client) Create(opts CreateOptions) (string, error) {
	if opts.Image == "" {
		return "", ErrImageRequired
	}
	if opts.CPUs == 0 {
		opts.CPUs = api.DefaultCPUs
	}
	if opts.CPUs < 0 {
		return "", ErrInvalidCPUCount
	}
	if opts.MemoryMB == 0 {
		opts.MemoryMB = api.DefaultMemoryMB
	}
	if opts.DiskSizeMB == 0 {
		opts.DiskSizeMB = api.DefaultDiskSizeMB
	}
	if opts.TimeoutSeconds == 0 {
		opts.TimeoutSeconds = api.DefaultTimeoutSeconds
	}
	if opts.NetworkMTU < 0 {
		return "", ErrInvalidNetworkMTU
	}
	if opts.NoNetwork && (len(opts.AllowedHosts) > 0 || len(opts.Secrets) > 0 || opts.NetworkInterception != nil) {
		return "", ErrNoNetworkConflict
	}
	for _, mapping := range opts.AddHosts {
		if err := api.ValidateAddHost(mapping); err != nil {
			return "", errx.Wrap(ErrInvalidAddHost, err)
		}
	}

	wireVFS, localHooks, localMutateHooks, localActionHooks, err := compileVFSHooks(opts.VFSInterception)
	if err != nil {
		return "", err
	}

	params := map[string]interface{}{
		"image": opts.Image,
		"resources": map[string]interface{}{
			"cpus":            opts.CPUs,
			"memory_mb":       opts.MemoryMB,
			"disk_size_mb":    opts.DiskSizeMB,
			"timeout_seconds": opts.TimeoutSeconds,
		},
	}

	if network := buildCreateNetworkParams(opts); network != nil {
		params["network"] = network
	}

	if len(opts.Mounts) > 0 || opts.Workspace != "" || wireVFS != nil {
		vfs := make(map[string]interface{})
		if len(opts.Mounts) > 0 {
			vfs["mounts"] = opts.Mounts
		}
		if opts.Workspace != "" {
			vfs["workspace"] = opts.Workspace
		}
		if wireVFS != nil {
			vfs["interception"] = wireVFS
		}
		params["vfs"] = vfs
	}

	if len(opts.Env) > 0 {
		params["env"] = opts.Env
	}

	if opts.ImageConfig != nil {
		params["image_config"] = opts.ImageConfig
	}
	if opts.LaunchEntrypoint {
		params["launch_entrypoint"] = true
	}

	result, err := c.sendRequest("create", params)
	if err != nil {
		return "", err
	}

	var createResult struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &createResult); err != nil {
		return "", errx.Wrap(ErrParseCreateResult, err)
	}

	c.setVMID(createResult.ID)
	c.setVFSHooks(localHooks, localMutateHooks, localActionHooks)

	if emitter := c.auditEmitter(); emitter != nil {
		emitter.SeedRunID(createResult.ID)
	}

	if c.sessions != nil {
		_ = c.sessions.RecordCreate(createResult.ID, opts.Image)
	}

	if len(opts.PortForwards) > 0 {
		if _, err := c.portForwardMappings(context.Background(), opts.PortForwardAddresses, opts.PortForwards); err != nil {
			// The VM exists; return its ID alongside the error so callers
			// can clean up.
			return createResult.ID, err
		}
	}
	return createResult.ID, nil
}

// Launch creates a sandbox from a builder and starts the image entrypoint
// in detached mode.
func (c *Client) Launch(sandbox *Sandbox) (string, error) {
	opts := sandbox.Options()
	opts.LaunchEntrypoint = true
	return c.Create(opts)
}

func buildCreateNetworkParams(opts CreateOptions) map[string]interface{} {
	hasAllowedHosts := len(opts.AllowedHosts) > 0
	hasAddHosts := len(opts.AddHosts) > 0
	hasSecrets := len(opts.Secrets) > 0
	hasDNSServers := len(opts.DNSServers) > 0
	hasHostname := len(opts.Hostname) > 0
	hasMTU := opts.NetworkMTU > 0
	hasInterception := opts.NetworkInterception != nil && len(opts.NetworkInterception.Rules) > 0
	blockPrivateIPs, hasBlockPrivateIPsOverride := resolveCreateBlockPrivateIPs(opts)

	includeNetwork := hasAllowedHosts || hasAddHosts || hasSecrets || hasDNSServers || hasHostname || hasMTU || opts.NoNetwork || hasBlockPrivateIPsOverride || hasInterception
	if !includeNetwork {
		return nil
	}

	if opts.NoNetwork {
		network := map[string]interface{}{
			"no_network": true,
		}
		if hasAddHosts {
			network["add_hosts"] = opts.AddHosts
		}
		if hasDNSServers {
			network["dns_servers"] = opts.DNSServers
		}
		if hasHostname {
			network["hostname"] = opts.Hostname
		}
		return network
	}

	// Create config merges replace network defaults wholesale. Preserve default
	// private-IP blocking unless explicitly overridden.
	if !hasBlockPrivateIPsOverride {
		blockPrivateIPs = true
	}

	network := map[string]interface{}{
		"allowed_hosts":     opts.AllowedHosts,
		"block_private_ips": blockPrivateIPs,
	}
	if hasInterception {
		network["intercept"] = true
		network["interception"] = opts.NetworkInterception
	}
	if hasAddHosts {
		network["add_hosts"] = opts.AddHosts
	}
	if hasSecrets {
		secrets := make(map[string]interface{})
		for _, s := range opts.Secrets {
			secrets[s.Name] = map[string]interface{}{
				"value": s.Value,
				"hosts": s.Hosts,
			}
		}
		network["secrets"] = secrets
	}
	if hasDNSServers {
		network["dns_servers"] = opts.DNSServers
	}
	if hasHostname {
		network["hostname"] = opts.Hostname
	}
	if hasMTU {
		network["mtu"] = opts.NetworkMTU
	}
	return network
}

func resolveCreateBlockPrivateIPs(opts CreateOptions) (value bool, hasOverride bool) {
	if opts.BlockPrivateIPsSet {
		return opts.BlockPrivateIPs, true
	}
	// Backward compatibility: old callers could only express explicit true.
	if opts.BlockPrivateIPs {
		return true, true
	}
	return false, false
}
