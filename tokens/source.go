// Package tokens supplies lifecycle transition tokens. Factory hosts
// rarely hold the raw 128-bit secrets in command lines: tokens may come
// from a literal hex string, a file, a Vault KV mount, or be derived
// per device from a master secret.
package tokens

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/glaserf/opentitan/interfaces"
)

// Source supplies a lifecycle transition token. A source is bound to a
// single transition; tokens are never reused across unrelated
// transitions.
type Source interface {
	Token(ctx context.Context) (interfaces.Token, error)
}

// LiteralSource holds a token parsed from a hex string.
type LiteralSource struct {
	token interfaces.Token
}

// NewLiteralSource parses a 32-hex-character token string.
func NewLiteralSource(hexToken string) (*LiteralSource, error) {
	token, err := interfaces.NewTokenFromHex(hexToken)
	if err != nil {
		return nil, err
	}
	return &LiteralSource{token: token}, nil
}

// Token returns the parsed token.
func (s *LiteralSource) Token(context.Context) (interfaces.Token, error) {
	return s.token, nil
}

// FileSource reads a hex-encoded token from a file.
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed token source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Token reads and parses the token file.
func (s *FileSource) Token(context.Context) (interfaces.Token, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return interfaces.Token{}, fmt.Errorf("failed to read token file: %w", err)
	}
	return interfaces.NewTokenFromHex(strings.TrimSpace(string(raw)))
}

// Config carries the context a token spec may need to resolve.
type Config struct {
	// VaultAddr and VaultToken configure vault:// sources.
	VaultAddr  string
	VaultToken string

	// MasterSecret and DeviceID configure derived:// sources.
	MasterSecret []byte
	DeviceID     string
}

// SourceFromSpec builds a token source from a CLI token specification:
//
//	<32 hex chars>                 literal token
//	@<path>                        hex token read from a file
//	vault://<mount>/<path>#<field> Vault KV-v2 secret field
//	derived://<label>              HKDF from the master secret
func SourceFromSpec(spec string, cfg Config) (Source, error) {
	switch {
	case strings.HasPrefix(spec, "@"):
		return NewFileSource(strings.TrimPrefix(spec, "@")), nil
	case strings.HasPrefix(spec, "vault://"):
		return NewVaultSource(spec, cfg.VaultAddr, cfg.VaultToken)
	case strings.HasPrefix(spec, "derived://"):
		label := strings.TrimPrefix(spec, "derived://")
		return NewDerivedSource(cfg.MasterSecret, cfg.DeviceID, label)
	default:
		return NewLiteralSource(spec)
	}
}
