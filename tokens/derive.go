package tokens

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/glaserf/opentitan/interfaces"
)

// DerivedSource derives a per-device token from a master secret with
// HKDF-SHA256, keyed by device identifier and transition label. The
// same (secret, device, label) triple always yields the same token, so
// a later RMA flow can re-derive what was provisioned.
type DerivedSource struct {
	masterSecret []byte
	deviceID     string
	label        string
}

// NewDerivedSource creates a derivation-based token source. The master
// secret must be at least 32 bytes.
func NewDerivedSource(masterSecret []byte, deviceID, label string) (*DerivedSource, error) {
	if len(masterSecret) < 32 {
		return nil, errors.New("token master secret must be at least 32 bytes")
	}
	if deviceID == "" {
		return nil, errors.New("token derivation requires a device identifier")
	}
	if label == "" {
		return nil, errors.New("token derivation requires a transition label")
	}

	return &DerivedSource{
		masterSecret: masterSecret,
		deviceID:     deviceID,
		label:        label,
	}, nil
}

// Token derives the transition token.
func (s *DerivedSource) Token(context.Context) (interfaces.Token, error) {
	info := []byte("lc_token/" + s.deviceID + "/" + s.label)
	reader := hkdf.New(sha256.New, s.masterSecret, nil, info)

	raw := make([]byte, interfaces.TokenWords*4)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return interfaces.Token{}, fmt.Errorf("token derivation failed: %w", err)
	}
	return interfaces.NewTokenFromBytes(raw)
}
