package api

import (
	"strconv"
	"strings"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// PortForward maps a local host port to a port inside the sandbox.
type PortForward struct {
	LocalPort  int `json:"local_port"`
	RemotePort int `json:"remote_port"`
}

// PortForwardBinding is one applied forward as reported by the supervisor.
type PortForwardBinding struct {
	Address    string `json:"address"`
	LocalPort  int    `json:"local_port"`
	RemotePort int    `json:"remote_port"`
}

// ParsePortForwards parses "[LOCAL_PORT:]REMOTE_PORT" specs. When the local
// port is omitted it defaults to the remote port.
func ParsePortForwards(specs []string) ([]PortForward, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	forwards := make([]PortForward, 0, len(specs))
	for _, spec := range specs {
		forward, err := parsePortForward(spec)
		if err != nil {
			return nil, err
		}
		forwards = append(forwards, forward)
	}
	return forwards, nil
}

func parsePortForward(spec string) (PortForward, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return PortForward{}, errx.With(ErrPortForwardSpec, ": empty spec")
	}

	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1:
		port, err := parsePort(parts[0])
		if err != nil {
			return PortForward{}, err
		}
		return PortForward{LocalPort: port, RemotePort: port}, nil
	case 2:
		local, err := parsePort(parts[0])
		if err != nil {
			return PortForward{}, err
		}
		remote, err := parsePort(parts[1])
		if err != nil {
			return PortForward{}, err
		}
		return PortForward{LocalPort: local, RemotePort: remote}, nil
	default:
		return PortForward{}, errx.With(ErrPortForwardSpec, ": %q (expected [local:]remote)", spec)
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, errx.With(ErrPortForwardPort, ": %q", s)
	}
	return port, nil
}
