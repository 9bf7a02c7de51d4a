package interfaces

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrTimeout is returned (possibly wrapped) by console operations that
// did not observe the expected data within the timeout. Device state
// after a timeout is unknown, so callers treat it as fatal.
var ErrTimeout = errors.New("console operation timed out")

// JtagTap identifies a test access port selectable via pin strapping.
type JtagTap int

const (
	// LcTap is the lifecycle controller TAP.
	LcTap JtagTap = iota
	// RiscvTap is the core (code execution) debug TAP.
	RiscvTap
)

// String returns the TAP name as used for strap configuration lookup.
func (t JtagTap) String() string {
	switch t {
	case LcTap:
		return "LC"
	case RiscvTap:
		return "RISCV"
	default:
		return fmt.Sprintf("JtagTap(%d)", int(t))
	}
}

// Strap configuration names understood by Transport.PinStrapping.
const (
	StrapLcTap    = "PINMUX_TAP_LC"
	StrapRiscvTap = "PINMUX_TAP_RISCV"
)

// PinStrapping applies and removes a named pin strap configuration.
// Both operations are idempotent.
type PinStrapping interface {
	Apply() error
	Remove() error
}

// Transport provides debug-probe access to the target device.
type Transport interface {
	// PinStrapping returns the handle for a named strap configuration.
	PinStrapping(name string) (PinStrapping, error)

	// ResetTarget holds the target in reset for the given duration and
	// then releases it.
	ResetTarget(resetDelay time.Duration) error

	// Jtag opens a debug connection. The connection is unattached until
	// Connect is called on it.
	Jtag() (Jtag, error)

	// Uart returns the named console byte stream.
	Uart(name string) (Console, error)
}

// Jtag is a debug connection to the target.
type Jtag interface {
	// Connect attaches to the given TAP.
	Connect(tap JtagTap) error

	// Disconnect detaches and releases the connection.
	Disconnect() error

	// ReadLcCtrlReg reads a lifecycle controller register over the LC
	// TAP. State registers carry the redundant encoding.
	ReadLcCtrlReg(reg LcCtrlReg) (uint32, error)

	// Reset resets the core through the debug module. With run=false the
	// core is left halted.
	Reset(run bool) error
}

// Console is the half-duplex console stream. Text banners and binary
// protocol frames are interleaved on the same stream; banners delimit
// protocol phases while frames carry data.
type Console interface {
	// ClearRxBuffer discards buffered input, e.g. boot ROM banners.
	ClearRxBuffer() error

	// SetFlowControl enables or disables software flow control.
	SetFlowControl(enabled bool) error

	// WaitForPattern blocks until console output matches the pattern or
	// the timeout elapses, returning the matched text. A timeout surfaces
	// as an error wrapping ErrTimeout.
	WaitForPattern(pattern *regexp.Regexp, timeout time.Duration) (string, error)

	// Send writes the bytes to the console.
	Send(data []byte) error

	// Receive fills buf completely from console input, or fails with an
	// error wrapping ErrTimeout if the bytes do not arrive in time.
	Receive(buf []byte, timeout time.Duration) error
}

// ExecutionMode selects how a loaded SRAM program is started.
type ExecutionMode int

const (
	// ExecutionModeJump starts the program by jumping to its entry point.
	ExecutionModeJump ExecutionMode = iota
	// ExecutionModeHalt loads the program but leaves the core halted.
	ExecutionModeHalt
)

// ExecutionResult reports the outcome of loading and starting an SRAM
// program. Anything other than ResultExecuting is a fatal load failure.
type ExecutionResult int

const (
	ResultExecuting ExecutionResult = iota
	ResultLoadFailed
	ResultIntegrityCheckFailed
	ResultCrashed
)

// String returns the result name.
func (r ExecutionResult) String() string {
	switch r {
	case ResultExecuting:
		return "executing"
	case ResultLoadFailed:
		return "load failed"
	case ResultIntegrityCheckFailed:
		return "integrity check failed"
	case ResultCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("ExecutionResult(%d)", int(r))
	}
}

// SramProgram loads a transient test program into device RAM over an
// attached debug connection and starts it.
type SramProgram interface {
	LoadAndExecute(jtag Jtag, mode ExecutionMode) (ExecutionResult, error)
}

// Bootstrapper flashes firmware images onto the device.
type Bootstrapper interface {
	// Init bootstraps the primary (configured) image.
	Init(transport Transport) error

	// Load bootstraps an arbitrary image from the given path.
	Load(transport Transport, imagePath string) error
}

// LcTransitioner requests a lifecycle transition over an attached
// lifecycle TAP connection. If reconnectTap is non-nil the same TAP is
// re-attached after the transition completes so the caller can verify
// the post-state; callers must only request this when code execution is
// still disabled, since a re-attach can otherwise reset the chip.
type LcTransitioner interface {
	Trigger(jtag Jtag, target LcState, token *Token, useExternalClk bool,
		resetDelay time.Duration, reconnectTap *JtagTap) error
}
