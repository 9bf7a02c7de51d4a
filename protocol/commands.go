package protocol

import (
	"fmt"
	"time"

	"github.com/glaserf/opentitan/interfaces"
)

// Command identifies an individualization command understood by the
// SRAM provisioning program.
type Command uint32

const (
	// CommandWriteAll writes every OTP partition in one request,
	// equivalent to the three individual writes in order.
	CommandWriteAll Command = iota
	// CommandOtpCreatorSwCfgWrite writes the CREATOR_SW_CFG partition.
	CommandOtpCreatorSwCfgWrite
	// CommandOtpOwnerSwCfgWrite writes the OWNER_SW_CFG partition.
	CommandOtpOwnerSwCfgWrite
	// CommandOtpHwCfgWrite writes the HW_CFG partition.
	CommandOtpHwCfgWrite
	// CommandDone cleanly terminates the provisioning session. It is
	// always the last command of a run.
	CommandDone
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandWriteAll:
		return "WriteAll"
	case CommandOtpCreatorSwCfgWrite:
		return "OtpCreatorSwCfgWrite"
	case CommandOtpOwnerSwCfgWrite:
		return "OtpOwnerSwCfgWrite"
	case CommandOtpHwCfgWrite:
		return "OtpHwCfgWrite"
	case CommandDone:
		return "Done"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// Send transmits the command as a single frame.
func (c Command) Send(console interfaces.Console) error {
	payload := make([]byte, 4)
	byteOrder.PutUint32(payload, uint32(c))
	if err := writeFrame(console, frameCommand, payload); err != nil {
		return fmt.Errorf("sending %s command: %w", c, err)
	}
	return nil
}

// AwaitStatus reads the status acknowledgement for a previously sent
// command and fails on any non-success code.
func AwaitStatus(console interfaces.Console, timeout time.Duration) error {
	payload, err := readFrame(console, frameStatus, 4, timeout)
	if err != nil {
		return fmt.Errorf("receiving status: %w", err)
	}

	code := byteOrder.Uint32(payload)
	if code != statusOk {
		return &StatusError{Code: code}
	}
	return nil
}

// statusOk is the device's success status code.
const statusOk uint32 = 0

// StatusError reports a non-success status acknowledgement from the
// device.
type StatusError struct {
	Code uint32
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("device reported non-ok status: 0x%08x", e.Code)
}
