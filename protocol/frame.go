package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/glaserf/opentitan/interfaces"
)

// byteOrder is the wire byte order. The device consumes words least
// significant byte first.
var byteOrder = binary.LittleEndian

// frameTag discriminates the frame types on the console stream.
type frameTag uint32

const (
	frameCommand  frameTag = 0x4d435446 // "FTCM"
	frameStatus   frameTag = 0x54535446 // "FTST"
	framePersoIn  frameTag = 0x49504446 // "FDPI"
	framePersoOut frameTag = 0x4f504446 // "FDPO"
)

const frameHeaderLen = 8

// maxFramePayload bounds any frame accepted from the device. The
// largest legal frame is a personalization output record.
const maxFramePayload = 32 * 1024

// ErrMalformedFrame is returned (wrapped) when a received frame has the
// wrong tag, a wrong or out-of-bounds length, or a payload that does not
// decode exactly.
var ErrMalformedFrame = errors.New("malformed protocol frame")

// writeFrame sends one length-tagged frame.
func writeFrame(console interfaces.Console, tag frameTag, payload []byte) error {
	buf := make([]byte, frameHeaderLen+len(payload))
	byteOrder.PutUint32(buf[0:4], uint32(tag))
	byteOrder.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	return console.Send(buf)
}

// readFrame receives one frame, requiring the given tag. A wantLen >= 0
// additionally requires the exact payload length.
func readFrame(console interfaces.Console, tag frameTag, wantLen int, timeout time.Duration) ([]byte, error) {
	header := make([]byte, frameHeaderLen)
	if err := console.Receive(header, timeout); err != nil {
		return nil, err
	}

	gotTag := frameTag(byteOrder.Uint32(header[0:4]))
	if gotTag != tag {
		return nil, fmt.Errorf("%w: tag 0x%08x, want 0x%08x", ErrMalformedFrame, uint32(gotTag), uint32(tag))
	}

	length := byteOrder.Uint32(header[4:8])
	if length > maxFramePayload {
		return nil, fmt.Errorf("%w: payload length %d exceeds maximum", ErrMalformedFrame, length)
	}
	if wantLen >= 0 && int(length) != wantLen {
		return nil, fmt.Errorf("%w: payload length %d, want %d", ErrMalformedFrame, length, wantLen)
	}

	payload := make([]byte, length)
	if err := console.Receive(payload, timeout); err != nil {
		return nil, err
	}
	return payload, nil
}

// putWords appends the words to buf in wire order and returns the
// extended slice.
func putWords(buf []byte, words []uint32) []byte {
	for _, w := range words {
		buf = byteOrder.AppendUint32(buf, w)
	}
	return buf
}

// getWords decodes len(dst) words from buf, returning the remainder.
func getWords(buf []byte, dst []uint32) []byte {
	for i := range dst {
		dst[i] = byteOrder.Uint32(buf[:4])
		buf = buf[4:]
	}
	return buf
}
