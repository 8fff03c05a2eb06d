package sdk

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// AllowListUpdate reports the outcome of a runtime allow-list change.
type AllowListUpdate struct {
	Added        []string
	Removed      []string
	AllowedHosts []string
}

// AllowListAdd adds hosts to the running sandbox's network allow-list.
// Hosts may be passed individually or comma-separated; duplicates are
// dropped.
func (c *Client) AllowListAdd(ctx context.Context, hosts ...string) (*AllowListUpdate, error) {
	return c.updateAllowList(ctx, "allow_list_add", hosts)
}

// AllowListDelete removes hosts from the running sandbox's network allow-list.
func (c *Client) AllowListDelete(ctx context.Context, hosts ...string) (*AllowListUpdate, error) {
	return c.updateAllowList(ctx, "allow_list_delete", hosts)
}

func (c *Client) updateAllowList(ctx context.Context, method string, hosts []string) (*AllowListUpdate, error) {
	normalized, err := normalizeAllowListHosts(hosts)
	if err != nil {
		return nil, err
	}

	result, err := c.sendRequestCtx(ctx, method, map[string]interface{}{
		"hosts": normalized,
	}, nil)
	if err != nil {
		return nil, err
	}

	// Both methods share one result shape; the field the peer did not
	// touch stays nil.
	var parsed struct {
		Added        []string `json:"added"`
		Removed      []string `json:"removed"`
		AllowedHosts []string `json:"allowed_hosts"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, errx.Wrap(ErrParseAllowList, err)
	}
	return &AllowListUpdate{
		Added:        parsed.Added,
		Removed:      parsed.Removed,
		AllowedHosts: parsed.AllowedHosts,
	}, nil
}

func normalizeAllowListHosts(hosts []string) ([]string, error) {
	normalized := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		for _, token := range strings.Split(host, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			normalized = append(normalized, token)
		}
	}
	if len(normalized) == 0 {
		return nil, ErrAllowListHosts
	}
	return normalized, nil
}
