package provisioning

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/glaserf/opentitan/interfaces"
	"github.com/glaserf/opentitan/protocol"
)

// startBanner is printed by the SRAM program once it is ready to accept
// individualization commands.
var startBanner = regexp.MustCompile(`FT SRAM provisioning start\. Waiting for command \.\.\.`)

// consoleName is the UART carrying banners and protocol frames.
const consoleName = "console"

// SramIndividualizer loads the FT individualization program into SRAM
// and executes the selected OTP partition writes. OTP writes are
// irreversible; no command is ever retried, and any non-success status
// or timeout aborts the remaining commands.
type SramIndividualizer struct {
	transport interfaces.Transport
	program   interfaces.SramProgram
	log       *slog.Logger
}

// NewSramIndividualizer creates the SRAM individualization orchestrator.
func NewSramIndividualizer(transport interfaces.Transport, program interfaces.SramProgram, log *slog.Logger) *SramIndividualizer {
	return &SramIndividualizer{
		transport: transport,
		program:   program,
		log:       log,
	}
}

// Run executes the individualization session: strap to the core TAP,
// reset and halt, load the SRAM program, then drive the command/status
// handshake for the selected actions in their fixed order, always
// terminated by Done.
func (s *SramIndividualizer) Run(actions ActionSet, resetDelay, timeout time.Duration) error {
	if err := actions.Validate(); err != nil {
		return fmt.Errorf("sram individualize: %w", err)
	}

	strap, err := s.transport.PinStrapping(interfaces.StrapRiscvTap)
	if err != nil {
		return fmt.Errorf("sram individualize: pin strapping unavailable: %w", err)
	}
	if err := strap.Apply(); err != nil {
		return fmt.Errorf("sram individualize: failed to apply strapping: %w", err)
	}
	defer func() {
		if err := strap.Remove(); err != nil {
			s.log.Error("Failed to remove pin strapping", "err", err)
		}
	}()

	if err := s.transport.ResetTarget(resetDelay); err != nil {
		return fmt.Errorf("sram individualize: target reset failed: %w", err)
	}

	jtag, err := s.transport.Jtag()
	if err != nil {
		return fmt.Errorf("sram individualize: debug connection unavailable: %w", err)
	}
	if err := jtag.Connect(interfaces.RiscvTap); err != nil {
		return fmt.Errorf("sram individualize: failed to attach to core TAP: %w", err)
	}
	defer func() {
		if err := jtag.Disconnect(); err != nil {
			s.log.Error("Failed to detach debug connection", "err", err)
		}
	}()

	// Halt the core so the program load starts from a known state, and
	// drop any ROM banners already buffered on the console.
	if err := jtag.Reset(false); err != nil {
		return fmt.Errorf("sram individualize: core halt failed: %w", err)
	}
	console, err := s.transport.Uart(consoleName)
	if err != nil {
		return fmt.Errorf("sram individualize: console unavailable: %w", err)
	}
	if err := console.ClearRxBuffer(); err != nil {
		return fmt.Errorf("sram individualize: failed to clear console buffer: %w", err)
	}

	result, err := s.program.LoadAndExecute(jtag, interfaces.ExecutionModeJump)
	if err != nil {
		return fmt.Errorf("sram individualize: program load failed: %w", err)
	}
	if result != interfaces.ResultExecuting {
		return fmt.Errorf("sram individualize: program did not start: %s", result)
	}
	s.log.Info("SRAM program loaded and is executing")

	if err := console.SetFlowControl(true); err != nil {
		return fmt.Errorf("sram individualize: failed to enable flow control: %w", err)
	}
	if _, err := console.WaitForPattern(startBanner, timeout); err != nil {
		return fmt.Errorf("sram individualize: program start banner not observed: %w", err)
	}

	for _, cmd := range actions.Commands() {
		s.log.Info("Sending individualization command", slog.String("command", cmd.String()))
		if err := cmd.Send(console); err != nil {
			return fmt.Errorf("sram individualize: %w", err)
		}
		if err := protocol.AwaitStatus(console, timeout); err != nil {
			return fmt.Errorf("sram individualize: %s command failed: %w", cmd, err)
		}
	}

	s.log.Info("SRAM individualization complete")
	return nil
}
