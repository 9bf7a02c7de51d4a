// Package cryptoutils provides the host-side key handling for
// personalization: loading the HSM-generated ECC private key and
// encoding its public half into the word layout the device consumes.
package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/glaserf/opentitan/protocol"
)

// parsePKCS8ECDSA parses PKCS#8 DER and requires an ECDSA key.
func parsePKCS8ECDSA(der []byte) (*ecdsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an ECDSA private key: %T", parsed)
	}
	return key, nil
}

// LoadP256PrivateKey loads a NIST P-256 private key from a PKCS#8 file.
// Both raw DER and PEM-wrapped ("PRIVATE KEY" block) files are accepted.
func LoadP256PrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}

	key, err := parsePKCS8ECDSA(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("host key must be on P-256, got %s", key.Curve.Params().Name)
	}
	return key, nil
}

// DevicePublicKey encodes a P-256 public key into the device's word
// layout. The uncompressed SEC1 point is split into its X and Y halves
// (the leading format byte is not part of the key material and is
// stripped), each half is read as big-endian 32-bit words, and the word
// order is reversed because the device consumes coordinates least
// significant word first.
func DevicePublicKey(pub *ecdsa.PublicKey) (protocol.EccP256PublicKey, error) {
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return protocol.EccP256PublicKey{}, fmt.Errorf("invalid public key point: %w", err)
	}

	sec1 := ecdhPub.Bytes()
	coordBytes := (len(sec1) - 1) / 2
	if coordBytes != protocol.CoordWords*4 {
		return protocol.EccP256PublicKey{}, fmt.Errorf("unexpected coordinate length: %d bytes", coordBytes)
	}

	var key protocol.EccP256PublicKey
	for i := 0; i < protocol.CoordWords; i++ {
		key.X[protocol.CoordWords-1-i] = binary.BigEndian.Uint32(sec1[1+i*4 : 1+(i+1)*4])
		key.Y[protocol.CoordWords-1-i] = binary.BigEndian.Uint32(sec1[1+coordBytes+i*4 : 1+coordBytes+(i+1)*4])
	}
	return key, nil
}
