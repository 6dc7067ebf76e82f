// Package secrets wires adapter credentials (PSP API keys, OAuth client
// secrets, webhook signing secrets) from Vault's KV engine rather than
// plain configuration, matching the teacher's go.mod dependency on
// hashicorp/vault/api (not otherwise exercised by the distilled spec's
// components, so this is its concrete home per the domain-stack wiring).
package secrets

import (
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// Client reads adapter credentials from a Vault KV v2 mount.
type Client struct {
	vault      *vaultapi.Client
	mountPath  string
}

func NewClient(address, token, mountPath string) (*Client, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	vc, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: vault client init: %w", err)
	}
	vc.SetToken(token)
	return &Client{vault: vc, mountPath: mountPath}, nil
}

// AdapterCredentials reads the secret at <mountPath>/data/adapters/<name>
// and returns its string-valued fields.
func (c *Client) AdapterCredentials(adapterName string) (map[string]string, error) {
	path := fmt.Sprintf("%s/data/adapters/%s", c.mountPath, adapterName)
	secret, err := c.vault.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets: no secret at %s", path)
	}

	raw, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("secrets: unexpected KV v2 shape at %s", path)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
