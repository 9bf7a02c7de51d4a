package protocol

import (
	"fmt"
	"time"

	"github.com/glaserf/opentitan/interfaces"
)

// CoordWords is the width of one P-256 coordinate in 32-bit words.
const CoordWords = 8

// EccP256PublicKey is a P-256 public key point in the device's word
// order: each coordinate is eight 32-bit words, least significant word
// first (the reverse of the big-endian SEC1 coordinate encoding).
type EccP256PublicKey struct {
	X [CoordWords]uint32
	Y [CoordWords]uint32
}

// PersonalizationInput is the host-to-device personalization record.
type PersonalizationInput struct {
	HostPk EccP256PublicKey
}

// persoInLen is the fixed input payload size: two coordinates.
const persoInLen = 2 * CoordWords * 4

// Send transmits the input record as a single frame.
func (in *PersonalizationInput) Send(console interfaces.Console) error {
	payload := make([]byte, 0, persoInLen)
	payload = putWords(payload, in.HostPk.X[:])
	payload = putWords(payload, in.HostPk.Y[:])
	if err := writeFrame(console, framePersoIn, payload); err != nil {
		return fmt.Errorf("sending personalization input: %w", err)
	}
	return nil
}

// Certificate list bounds for the output record.
const (
	maxDeviceCerts   = 4
	maxDeviceCertLen = 4096
)

// PersonalizationOutput is the device-to-host personalization record:
// the device-wrapped RMA unlock token, the device's ephemeral public
// key used for the wrap, and the device-generated certificates.
type PersonalizationOutput struct {
	WrappedRmaUnlockToken [interfaces.TokenWords]uint32
	DevicePkX             [CoordWords]uint32
	DevicePkY             [CoordWords]uint32
	DeviceCerts           [][]byte
}

// fixed-width prefix of the output payload: token + two coordinates +
// certificate count.
const persoOutFixedLen = interfaces.TokenWords*4 + 2*CoordWords*4 + 4

// RecvPersonalizationOutput receives and strictly decodes the output
// record. Truncated or oversized records are fatal; there is no partial
// record tolerance.
func RecvPersonalizationOutput(console interfaces.Console, timeout time.Duration) (*PersonalizationOutput, error) {
	payload, err := readFrame(console, framePersoOut, -1, timeout)
	if err != nil {
		return nil, fmt.Errorf("receiving personalization output: %w", err)
	}

	if len(payload) < persoOutFixedLen {
		return nil, fmt.Errorf("%w: personalization output truncated at %d bytes", ErrMalformedFrame, len(payload))
	}

	var out PersonalizationOutput
	rest := getWords(payload, out.WrappedRmaUnlockToken[:])
	rest = getWords(rest, out.DevicePkX[:])
	rest = getWords(rest, out.DevicePkY[:])

	certCount := byteOrder.Uint32(rest[:4])
	rest = rest[4:]
	if certCount > maxDeviceCerts {
		return nil, fmt.Errorf("%w: certificate count %d exceeds maximum", ErrMalformedFrame, certCount)
	}

	out.DeviceCerts = make([][]byte, 0, certCount)
	for i := uint32(0); i < certCount; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: personalization output truncated in certificate %d", ErrMalformedFrame, i)
		}
		certLen := byteOrder.Uint32(rest[:4])
		rest = rest[4:]
		if certLen > maxDeviceCertLen {
			return nil, fmt.Errorf("%w: certificate %d length %d exceeds maximum", ErrMalformedFrame, i, certLen)
		}
		if uint32(len(rest)) < certLen {
			return nil, fmt.Errorf("%w: personalization output truncated in certificate %d", ErrMalformedFrame, i)
		}
		cert := make([]byte, certLen)
		copy(cert, rest[:certLen])
		out.DeviceCerts = append(out.DeviceCerts, cert)
		rest = rest[certLen:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after personalization output", ErrMalformedFrame, len(rest))
	}
	return &out, nil
}
