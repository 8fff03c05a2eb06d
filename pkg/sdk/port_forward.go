package sdk

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/api"
)

type portForwardParams struct {
	Forwards  []api.PortForward `json:"forwards"`
	Addresses []string          `json:"addresses"`
}

// PortForward applies one or more [LOCAL_PORT:]REMOTE_PORT mappings with the
// default bind address (127.0.0.1).
func (c *Client) PortForward(ctx context.Context, specs ...string) ([]api.PortForwardBinding, error) {
	return c.PortForwardWithAddresses(ctx, nil, specs...)
}

// PortForwardWithAddresses applies one or more [LOCAL_PORT:]REMOTE_PORT
// mappings bound on the provided host addresses.
func (c *Client) PortForwardWithAddresses(ctx context.Context, addresses []string, specs ...string) ([]api.PortForwardBinding, error) {
	forwards, err := api.ParsePortForwards(specs)
	if err != nil {
		return nil, errx.Wrap(ErrParsePortForwards, err)
	}
	return c.portForwardMappings(ctx, addresses, forwards)
}

func (c *Client) portForwardMappings(ctx context.Context, addresses []string, forwards []api.PortForward) ([]api.PortForwardBinding, error) {
	if len(forwards) == 0 {
		return nil, nil
	}

	result, err := c.sendRequestCtx(ctx, "port_forward", portForwardParams{
		Forwards:  forwards,
		Addresses: normalizeForwardAddresses(addresses),
	}, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Bindings []api.PortForwardBinding `json:"bindings"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, errx.Wrap(ErrParsePortBindings, err)
	}
	return parsed.Bindings, nil
}

// normalizeForwardAddresses trims and dedupes bind addresses, preserving
// order; an empty list binds on loopback only.
func normalizeForwardAddresses(addresses []string) []string {
	normalized := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		normalized = append(normalized, address)
	}
	if len(normalized) == 0 {
		return []string{"127.0.0.1"}
	}
	return normalized
}
