package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/glaserf/opentitan/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generatorKey returns the P-256 key with scalar d=1, whose public key
// is the curve generator point. Using a fixed key gives a known-answer
// vector for the device word encoding.
func generatorKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	curve := elliptic.P256()
	scalar := make([]byte, 32)
	big.NewInt(1).FillBytes(scalar)

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         big.NewInt(1),
	}
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(scalar)
	return key
}

// Word-reversed big-endian halves of the uncompressed generator point.
var (
	generatorDeviceX = [protocol.CoordWords]uint32{
		0xd898c296, 0xf4a13945, 0x2deb33a0, 0x77037d81,
		0x63a440f2, 0xf8bce6e5, 0xe12c4247, 0x6b17d1f2,
	}
	generatorDeviceY = [protocol.CoordWords]uint32{
		0x37bf51f5, 0xcbb64068, 0x6b315ece, 0x2bce3357,
		0x7c0f9e16, 0x8ee7eb4a, 0xfe1a7f9b, 0x4fe342e2,
	}
)

func writeKeyFile(t *testing.T, key *ecdsa.PrivateKey, asPEM bool) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	data := der
	if asPEM {
		data = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	}

	path := filepath.Join(t.TempDir(), "host_key")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestDevicePublicKeyKnownVector(t *testing.T) {
	key := generatorKey(t)

	devicePk, err := DevicePublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, generatorDeviceX, devicePk.X)
	assert.Equal(t, generatorDeviceY, devicePk.Y)
}

func TestLoadP256PrivateKey(t *testing.T) {
	t.Run("raw DER", func(t *testing.T) {
		path := writeKeyFile(t, generatorKey(t), false)
		key, err := LoadP256PrivateKey(path)
		require.NoError(t, err)
		assert.Zero(t, key.D.Cmp(big.NewInt(1)))
	})

	t.Run("PEM wrapped", func(t *testing.T) {
		path := writeKeyFile(t, generatorKey(t), true)
		key, err := LoadP256PrivateKey(path)
		require.NoError(t, err)
		assert.Zero(t, key.D.Cmp(big.NewInt(1)))
	})

	t.Run("wrong curve rejected", func(t *testing.T) {
		p384Key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)

		path := writeKeyFile(t, p384Key, false)
		_, err = LoadP256PrivateKey(path)
		assert.ErrorContains(t, err, "P-256")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadP256PrivateKey(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})
}

func TestDevicePublicKeyRoundTripsThroughFile(t *testing.T) {
	generated, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	path := writeKeyFile(t, generated, true)
	loaded, err := LoadP256PrivateKey(path)
	require.NoError(t, err)

	fromLoaded, err := DevicePublicKey(&loaded.PublicKey)
	require.NoError(t, err)
	fromGenerated, err := DevicePublicKey(&generated.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, fromGenerated, fromLoaded)
}
