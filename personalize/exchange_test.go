package personalize

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/binary"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/glaserf/opentitan/interfaces"
	"github.com/glaserf/opentitan/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// scriptConsole scripts the banner sequence and the output record, and
// captures the frames the exchange sends.
type scriptConsole struct {
	banners    []string // patterns observed, in order
	bannerErrs map[string]error
	sent       bytes.Buffer
	rx         bytes.Buffer
	clearCount int
}

func (c *scriptConsole) ClearRxBuffer() error { c.clearCount++; return nil }

func (c *scriptConsole) SetFlowControl(on bool) error { return nil }

func (c *scriptConsole) Send(data []byte) error { _, err := c.sent.Write(data); return err }

func (c *scriptConsole) WaitForPattern(pattern *regexp.Regexp, _ time.Duration) (string, error) {
	c.banners = append(c.banners, pattern.String())
	if err := c.bannerErrs[pattern.String()]; err != nil {
		return "", err
	}
	return pattern.String(), nil
}

func (c *scriptConsole) Receive(buf []byte, _ time.Duration) error {
	if c.rx.Len() < len(buf) {
		return interfaces.ErrTimeout
	}
	_, err := c.rx.Read(buf)
	return err
}

// queueOutput writes a well-formed personalization output frame with
// the given certificates into the console's receive buffer.
func (c *scriptConsole) queueOutput(certs [][]byte) {
	var payload []byte
	le := binary.LittleEndian
	for i := 0; i < interfaces.TokenWords; i++ {
		payload = le.AppendUint32(payload, uint32(0xa0+i))
	}
	for i := 0; i < 2*protocol.CoordWords; i++ {
		payload = le.AppendUint32(payload, uint32(i))
	}
	payload = le.AppendUint32(payload, uint32(len(certs)))
	for _, cert := range certs {
		payload = le.AppendUint32(payload, uint32(len(cert)))
		payload = append(payload, cert...)
	}

	header := make([]byte, 8)
	copy(header[0:4], "FDPO")
	le.PutUint32(header[4:8], uint32(len(payload)))
	c.rx.Write(header)
	c.rx.Write(payload)
}

type mockTransport struct {
	mock.Mock
	console *scriptConsole
}

func (m *mockTransport) PinStrapping(name string) (interfaces.PinStrapping, error) {
	args := m.Called(name)
	return nil, args.Error(1)
}

func (m *mockTransport) ResetTarget(resetDelay time.Duration) error {
	return m.Called(resetDelay).Error(0)
}

func (m *mockTransport) Jtag() (interfaces.Jtag, error) {
	args := m.Called()
	return nil, args.Error(1)
}

func (m *mockTransport) Uart(name string) (interfaces.Console, error) {
	return m.console, m.Called(name).Error(0)
}

type mockBootstrapper struct {
	mock.Mock
}

func (m *mockBootstrapper) Init(transport interfaces.Transport) error {
	return m.Called().Error(0)
}

func (m *mockBootstrapper) Load(transport interfaces.Transport, imagePath string) error {
	return m.Called(imagePath).Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeHostKey writes the P-256 key with scalar d=1 as PKCS#8 DER.
func writeHostKey(t *testing.T) string {
	t.Helper()
	curve := elliptic.P256()
	scalar := make([]byte, 32)
	big.NewInt(1).FillBytes(scalar)
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         big.NewInt(1),
	}
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(scalar)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "host_key.der")
	require.NoError(t, os.WriteFile(path, der, 0600))
	return path
}

const timeout = time.Second

func newHarness() (*mockTransport, *mockBootstrapper, *Exchange) {
	transport := &mockTransport{console: &scriptConsole{bannerErrs: map[string]error{}}}
	bootstrap := &mockBootstrapper{}
	return transport, bootstrap, NewExchange(transport, bootstrap, testLogger())
}

func TestRunHappyPath(t *testing.T) {
	transport, bootstrap, exchange := newHarness()
	keyPath := writeHostKey(t)

	transport.On("Uart", "console").Return(nil)
	bootstrap.On("Init").Return(nil)
	bootstrap.On("Load", "perso_fw_b.bin").Return(nil)
	transport.console.queueOutput([][]byte{{0x01, 0x02}})

	out, err := exchange.Run("perso_fw_b.bin", keyPath, timeout)
	require.NoError(t, err)
	require.Len(t, out.DeviceCerts, 1)
	assert.Equal(t, []byte{0x01, 0x02}, out.DeviceCerts[0])
	assert.Equal(t, uint32(0xa0), out.WrappedRmaUnlockToken[0])

	// Both images flashed, console cleared before each bootstrap, and
	// the banner phases observed in protocol order.
	bootstrap.AssertExpectations(t)
	assert.Equal(t, 2, transport.console.clearCount)
	assert.Equal(t, []string{
		passBanner.String(),
		readyBanner.String(),
		exportBanner.String(),
	}, transport.console.banners)

	// The sent input frame carries the device-encoded host public key:
	// word-reversed halves of the generator point for d=1.
	raw := transport.console.sent.Bytes()
	require.Len(t, raw, 8+2*protocol.CoordWords*4)
	assert.Equal(t, "FDPI", string(raw[0:4]))
	assert.Equal(t, uint32(0xd898c296), binary.LittleEndian.Uint32(raw[8:12]))
	lastY := raw[len(raw)-4:]
	assert.Equal(t, uint32(0x4fe342e2), binary.LittleEndian.Uint32(lastY))
}

func TestRunPassBannerTimeoutIsFatal(t *testing.T) {
	transport, bootstrap, exchange := newHarness()
	keyPath := writeHostKey(t)

	transport.On("Uart", "console").Return(nil)
	bootstrap.On("Init").Return(nil)
	transport.console.bannerErrs[passBanner.String()] = interfaces.ErrTimeout

	_, err := exchange.Run("perso_fw_b.bin", keyPath, timeout)
	require.ErrorIs(t, err, interfaces.ErrTimeout)

	// The secondary image must not be flashed after a failed self-test.
	bootstrap.AssertNotCalled(t, "Load", mock.Anything)
	assert.Zero(t, transport.console.sent.Len())
}

func TestRunMissingHostKeyIsFatal(t *testing.T) {
	transport, bootstrap, exchange := newHarness()

	transport.On("Uart", "console").Return(nil)
	bootstrap.On("Init").Return(nil)
	bootstrap.On("Load", "perso_fw_b.bin").Return(nil)

	_, err := exchange.Run("perso_fw_b.bin", filepath.Join(t.TempDir(), "absent"), timeout)
	require.ErrorContains(t, err, "host key")
	assert.Zero(t, transport.console.sent.Len())
}

func TestRunTruncatedOutputIsFatal(t *testing.T) {
	transport, bootstrap, exchange := newHarness()
	keyPath := writeHostKey(t)

	transport.On("Uart", "console").Return(nil)
	bootstrap.On("Init").Return(nil)
	bootstrap.On("Load", "perso_fw_b.bin").Return(nil)

	// Queue a full record, then truncate the final bytes.
	transport.console.queueOutput([][]byte{{0x01, 0x02, 0x03}})
	full := transport.console.rx.Bytes()
	transport.console.rx = *bytes.NewBuffer(full[:len(full)-2])

	_, err := exchange.Run("perso_fw_b.bin", keyPath, timeout)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
}
