package tokens

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/glaserf/opentitan/interfaces"
)

// VaultSource fetches a token from a Vault KV-v2 secret. Production
// lines keep transition tokens in a secrets service rather than on the
// host; the orchestrator only ever holds them in memory for the
// duration of one transition.
type VaultSource struct {
	client *vault.Client
	mount  string
	path   string
	field  string
}

// NewVaultSource parses a vault://<mount>/<path>#<field> spec and
// builds a client for the given Vault address.
func NewVaultSource(spec, vaultAddr, vaultToken string) (*VaultSource, error) {
	if vaultAddr == "" {
		return nil, fmt.Errorf("vault token source %q requires a vault address", spec)
	}

	parsed, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid vault token spec: %w", err)
	}

	mount := parsed.Host
	secretPath := strings.TrimPrefix(parsed.Path, "/")
	field := parsed.Fragment
	if mount == "" || secretPath == "" || field == "" {
		return nil, fmt.Errorf("invalid vault token spec %q: want vault://<mount>/<path>#<field>", spec)
	}

	config := vault.DefaultConfig()
	config.Address = vaultAddr
	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if vaultToken != "" {
		client.SetToken(vaultToken)
	}

	return &VaultSource{
		client: client,
		mount:  mount,
		path:   secretPath,
		field:  field,
	}, nil
}

// Token reads the secret field and parses it as a hex token.
func (s *VaultSource) Token(ctx context.Context) (interfaces.Token, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, s.path)
	if err != nil {
		return interfaces.Token{}, fmt.Errorf("failed to read token from vault: %w", err)
	}

	value, ok := secret.Data[s.field].(string)
	if !ok {
		return interfaces.Token{}, fmt.Errorf("vault secret %s/%s has no string field %q", s.mount, s.path, s.field)
	}
	return interfaces.NewTokenFromHex(value)
}
