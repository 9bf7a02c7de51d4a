package interfaces

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// LcState represents a lifecycle controller state. The numeric value is
// the controller's state index, from which the redundant register
// encoding is derived.
type LcState uint8

// Lifecycle states in controller index order.
const (
	LcStateRaw LcState = iota
	LcStateTestUnlocked0
	LcStateTestLocked0
	LcStateTestUnlocked1
	LcStateTestLocked1
	LcStateTestUnlocked2
	LcStateTestLocked2
	LcStateTestUnlocked3
	LcStateTestLocked3
	LcStateTestUnlocked4
	LcStateTestLocked4
	LcStateTestUnlocked5
	LcStateTestLocked5
	LcStateTestUnlocked6
	LcStateTestLocked6
	LcStateTestUnlocked7
	LcStateDev
	LcStateProd
	LcStateProdEnd
	LcStateRma
	LcStateScrap
)

// lcRedundantBase replicates a 5-bit state index across the six 5-bit
// fields of the 30-bit state register.
const lcRedundantBase uint32 = 0x02108421

// RedundantEncoding returns the error-detecting on-wire encoding of the
// state as read from (or written to) the lifecycle state register.
func (s LcState) RedundantEncoding() uint32 {
	return uint32(s) * lcRedundantBase
}

// LcStateFromRedundant decodes a redundant register value back into a
// state. Values whose six replicas disagree are rejected: a corrupted
// state read must surface as an error, never be silently corrected.
func LcStateFromRedundant(raw uint32) (LcState, error) {
	idx := raw & 0x1f
	if raw != LcState(idx).RedundantEncoding() {
		return 0, fmt.Errorf("inconsistent redundant lifecycle state encoding: 0x%08x", raw)
	}
	if idx > uint32(LcStateScrap) {
		return 0, fmt.Errorf("unknown lifecycle state index: %d", idx)
	}
	return LcState(idx), nil
}

// String returns the canonical state name.
func (s LcState) String() string {
	switch s {
	case LcStateRaw:
		return "RAW"
	case LcStateDev:
		return "DEV"
	case LcStateProd:
		return "PROD"
	case LcStateProdEnd:
		return "PROD_END"
	case LcStateRma:
		return "RMA"
	case LcStateScrap:
		return "SCRAP"
	}
	if s >= LcStateTestUnlocked0 && s <= LcStateTestUnlocked7 {
		if s%2 == 1 {
			return fmt.Sprintf("TEST_UNLOCKED%d", (s-1)/2)
		}
		return fmt.Sprintf("TEST_LOCKED%d", (s-2)/2)
	}
	return fmt.Sprintf("LcState(%d)", uint8(s))
}

// IsMissionMode reports whether the state is a valid target for the
// test-exit transition.
func (s LcState) IsMissionMode() bool {
	return s == LcStateDev || s == LcStateProd || s == LcStateProdEnd
}

// ParseMissionModeState parses a mission-mode state name (dev, prod,
// prod_end) as used for the test-exit target selection.
func ParseMissionModeState(name string) (LcState, error) {
	switch strings.ToLower(name) {
	case "dev":
		return LcStateDev, nil
	case "prod":
		return LcStateProd, nil
	case "prod_end", "prodend":
		return LcStateProdEnd, nil
	default:
		return 0, fmt.Errorf("not a mission mode lifecycle state: %q", name)
	}
}

// LcCtrlReg identifies a lifecycle controller register readable over the
// lifecycle TAP.
type LcCtrlReg int

const (
	// LcCtrlRegState is the current lifecycle state register.
	LcCtrlRegState LcCtrlReg = iota
	// LcCtrlRegTransitionCnt is the lifetime transition counter register.
	LcCtrlRegTransitionCnt
)

// TokenWords is the fixed width of a lifecycle transition token.
const TokenWords = 4

// Token is a 128-bit lifecycle transition authorization secret, held as
// four 32-bit words in the order the lifecycle controller consumes them
// (least significant word first).
type Token [TokenWords]uint32

// NewTokenFromHex parses a 32-hex-character token string. The hex string
// is the big-endian byte representation; words are stored LSW first.
func NewTokenFromHex(s string) (Token, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 32 {
		return Token{}, errors.New("invalid token length: hex string must be 32 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Token{}, fmt.Errorf("invalid token hex format: %w", err)
	}
	return NewTokenFromBytes(raw)
}

// NewTokenFromBytes builds a token from its 16-byte big-endian
// representation.
func NewTokenFromBytes(raw []byte) (Token, error) {
	if len(raw) != TokenWords*4 {
		return Token{}, errors.New("invalid token length: must be 16 bytes")
	}

	var t Token
	for i := 0; i < TokenWords; i++ {
		// Byte 0 is the most significant; word 0 the least significant.
		t[TokenWords-1-i] = binary.BigEndian.Uint32(raw[i*4 : (i+1)*4])
	}
	return t, nil
}

// Words returns the token words, LSW first.
func (t Token) Words() [TokenWords]uint32 {
	return t
}

// String redacts the token value; transition secrets must never reach
// log output.
func (t Token) String() string {
	return "Token(redacted)"
}

// LcStateError reports a lifecycle state precondition violation: the
// state observed on the device does not match the state required before
// the requested operation. It is fatal and must never be retried.
type LcStateError struct {
	Op       string
	Expected LcState
	Observed uint32
}

// Error implements the error interface.
func (e *LcStateError) Error() string {
	return fmt.Sprintf("%s: unexpected lifecycle state: expected %s (0x%08x), observed 0x%08x",
		e.Op, e.Expected, e.Expected.RedundantEncoding(), e.Observed)
}
