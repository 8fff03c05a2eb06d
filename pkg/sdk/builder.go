package sdk

import "github.com/jingkaihe/matchlock-go/pkg/api"

// Sandbox is a fluent builder for sandbox configuration. It performs no I/O;
// Options returns the accumulated CreateOptions for Client.Create or
// Client.Launch.
type Sandbox struct {
	opts CreateOptions
}

// New creates a sandbox builder for the given container image.
func New(image string) *Sandbox {
	return &Sandbox{opts: CreateOptions{Image: image}}
}

// WithCPUs sets the number of vCPUs.
func (s *Sandbox) WithCPUs(cpus int) *Sandbox {
	s.opts.CPUs = cpus
	return s
}

// WithMemory sets the memory size in megabytes.
func (s *Sandbox) WithMemory(mb int) *Sandbox {
	s.opts.MemoryMB = mb
	return s
}

// WithDiskSize sets the disk size in megabytes.
func (s *Sandbox) WithDiskSize(mb int) *Sandbox {
	s.opts.DiskSizeMB = mb
	return s
}

// WithTimeout sets the maximum execution time in seconds.
func (s *Sandbox) WithTimeout(seconds int) *Sandbox {
	s.opts.TimeoutSeconds = seconds
	return s
}

// WithWorkspace sets the guest mount point for the VFS.
func (s *Sandbox) WithWorkspace(path string) *Sandbox {
	s.opts.Workspace = path
	return s
}

// AllowHost appends hosts to the network allow-list (supports wildcards).
func (s *Sandbox) AllowHost(hosts ...string) *Sandbox {
	s.opts.AllowedHosts = append(s.opts.AllowedHosts, hosts...)
	return s
}

// AddHost injects a static host-to-IP mapping into the guest /etc/hosts.
func (s *Sandbox) AddHost(host, ip string) *Sandbox {
	s.opts.AddHosts = append(s.opts.AddHosts, api.HostIPMapping{Host: host, IP: ip})
	return s
}

// BlockPrivateIPs explicitly enables private IP range blocking.
func (s *Sandbox) BlockPrivateIPs() *Sandbox {
	s.opts.BlockPrivateIPs = true
	s.opts.BlockPrivateIPsSet = true
	return s
}

// AllowPrivateIPs explicitly disables private IP range blocking.
func (s *Sandbox) AllowPrivateIPs() *Sandbox {
	s.opts.BlockPrivateIPs = false
	s.opts.BlockPrivateIPsSet = true
	return s
}

// UnsetBlockPrivateIPs reverts to the supervisor's default private IP policy.
func (s *Sandbox) UnsetBlockPrivateIPs() *Sandbox {
	s.opts.BlockPrivateIPs = false
	s.opts.BlockPrivateIPsSet = false
	return s
}

// WithNoNetwork disables guest network egress entirely.
func (s *Sandbox) WithNoNetwork() *Sandbox {
	s.opts.NoNetwork = true
	return s
}

// AddSecret registers a secret usable on the given hosts.
func (s *Sandbox) AddSecret(name, value string, hosts ...string) *Sandbox {
	s.opts.Secrets = append(s.opts.Secrets, Secret{Name: name, Value: value, Hosts: hosts})
	return s
}

// WithDNSServers appends DNS server overrides.
func (s *Sandbox) WithDNSServers(servers ...string) *Sandbox {
	s.opts.DNSServers = append(s.opts.DNSServers, servers...)
	return s
}

// WithHostname overrides the guest hostname.
func (s *Sandbox) WithHostname(hostname string) *Sandbox {
	s.opts.Hostname = hostname
	return s
}

// WithNetworkMTU overrides the guest network MTU.
func (s *Sandbox) WithNetworkMTU(mtu int) *Sandbox {
	s.opts.NetworkMTU = mtu
	return s
}

// WithEnv sets one non-secret environment variable.
func (s *Sandbox) WithEnv(name, value string) *Sandbox {
	if s.opts.Env == nil {
		s.opts.Env = make(map[string]string)
	}
	s.opts.Env[name] = value
	return s
}

// WithEnvMap merges env into the configured environment, overriding
// existing keys.
func (s *Sandbox) WithEnvMap(env map[string]string) *Sandbox {
	for name, value := range env {
		s.WithEnv(name, value)
	}
	return s
}

// Mount attaches a mount config at the given guest path.
func (s *Sandbox) Mount(guestPath string, config MountConfig) *Sandbox {
	if s.opts.Mounts == nil {
		s.opts.Mounts = make(map[string]MountConfig)
	}
	s.opts.Mounts[guestPath] = config
	return s
}

// MountHostDir mounts a host directory read-write.
func (s *Sandbox) MountHostDir(guestPath, hostPath string) *Sandbox {
	return s.Mount(guestPath, MountConfig{Type: api.MountTypeRealFS, HostPath: hostPath})
}

// MountHostDirReadonly mounts a host directory read-only.
func (s *Sandbox) MountHostDirReadonly(guestPath, hostPath string) *Sandbox {
	return s.Mount(guestPath, MountConfig{Type: api.MountTypeRealFS, HostPath: hostPath, Readonly: true})
}

// MountMemory mounts an in-memory filesystem.
func (s *Sandbox) MountMemory(guestPath string) *Sandbox {
	return s.Mount(guestPath, MountConfig{Type: api.MountTypeMemory})
}

// MountOverlay mounts a host directory with a writable overlay.
func (s *Sandbox) MountOverlay(guestPath, hostPath string) *Sandbox {
	return s.Mount(guestPath, MountConfig{Type: api.MountTypeOverlay, HostPath: hostPath})
}

// MountSpec parses a "host:guest[:ro]" volume spec relative to the
// configured workspace and mounts it as a real_fs mount.
func (s *Sandbox) MountSpec(spec string) (*Sandbox, error) {
	workspace := s.opts.Workspace
	if workspace == "" {
		workspace = api.DefaultWorkspace
	}
	hostPath, guestPath, readonly, err := api.ParseVolumeMount(spec, workspace)
	if err != nil {
		return s, err
	}
	return s.Mount(guestPath, MountConfig{Type: api.MountTypeRealFS, HostPath: hostPath, Readonly: readonly}), nil
}

// WithVFSInterception configures VFS interception rules and local hooks.
func (s *Sandbox) WithVFSInterception(cfg *VFSInterceptionConfig) *Sandbox {
	s.opts.VFSInterception = cfg
	return s
}

// WithNetworkInterception configures supervisor-side HTTP interception rules.
func (s *Sandbox) WithNetworkInterception(cfg *api.NetworkInterceptionConfig) *Sandbox {
	s.opts.NetworkInterception = cfg
	return s
}

// WithImageConfig attaches OCI image metadata.
func (s *Sandbox) WithImageConfig(cfg *ImageConfig) *Sandbox {
	s.opts.ImageConfig = cfg
	return s
}

// WithPortForward maps a local host port to a sandbox port.
func (s *Sandbox) WithPortForward(localPort, remotePort int) *Sandbox {
	s.opts.PortForwards = append(s.opts.PortForwards, api.PortForward{LocalPort: localPort, RemotePort: remotePort})
	return s
}

// WithPortForwardAddresses sets the host bind addresses for port forwards.
func (s *Sandbox) WithPortForwardAddresses(addresses ...string) *Sandbox {
	s.opts.PortForwardAddresses = append(s.opts.PortForwardAddresses, addresses...)
	return s
}

// Options returns the accumulated create options.
func (s *Sandbox) Options() CreateOptions {
	return s.opts
}
