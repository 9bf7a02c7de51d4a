// Package provisioning implements the SRAM individualization stage: it
// injects the transient FT test program into device RAM and drives the
// selected OTP partition writes through a command/status handshake over
// the console.
package provisioning

import (
	"errors"

	"github.com/glaserf/opentitan/protocol"
)

// ActionSet selects the provisioning work to perform. The OTP flags are
// independent booleans; AllSteps supersedes and conflicts with the
// individual OTP flags. Unlock, Exit and Personalize select the other
// flow stages and are orthogonal to the OTP selection.
type ActionSet struct {
	AllSteps     bool
	CreatorSwCfg bool
	OwnerSwCfg   bool
	HwCfg        bool

	Unlock      bool
	Exit        bool
	Personalize bool
}

// ErrConflictingActions is returned when AllSteps is combined with any
// individual OTP partition flag.
var ErrConflictingActions = errors.New("all-steps conflicts with individual OTP partition flags")

// Validate rejects conflicting selections. The check is purely on the
// flag values, so it behaves identically regardless of input order.
func (a ActionSet) Validate() error {
	if a.AllSteps && (a.CreatorSwCfg || a.OwnerSwCfg || a.HwCfg) {
		return ErrConflictingActions
	}
	return nil
}

// RunUnlock reports whether the test-unlock stage is selected.
// AllSteps implies every stage.
func (a ActionSet) RunUnlock() bool {
	return a.AllSteps || a.Unlock
}

// RunIndividualize reports whether the SRAM individualization stage is
// selected.
func (a ActionSet) RunIndividualize() bool {
	return a.AllSteps || a.CreatorSwCfg || a.OwnerSwCfg || a.HwCfg
}

// RunExit reports whether the test-exit stage is selected.
func (a ActionSet) RunExit() bool {
	return a.AllSteps || a.Exit
}

// RunPersonalize reports whether the personalization stage is selected.
func (a ActionSet) RunPersonalize() bool {
	return a.AllSteps || a.Personalize
}

// Commands returns the individualization commands to send, in the fixed
// execution order, always terminated by Done. The order is independent
// of how the selection was expressed.
func (a ActionSet) Commands() []protocol.Command {
	// Ordered (flag, command) table: adding an OTP partition step is a
	// one-line change here.
	steps := []struct {
		enabled bool
		cmd     protocol.Command
	}{
		{a.AllSteps, protocol.CommandWriteAll},
		{a.CreatorSwCfg, protocol.CommandOtpCreatorSwCfgWrite},
		{a.OwnerSwCfg, protocol.CommandOtpOwnerSwCfgWrite},
		{a.HwCfg, protocol.CommandOtpHwCfgWrite},
	}

	cmds := make([]protocol.Command, 0, len(steps)+1)
	for _, step := range steps {
		if step.enabled {
			cmds = append(cmds, step.cmd)
		}
	}
	// Done is required to cleanly end the session even when no OTP
	// writes were selected.
	return append(cmds, protocol.CommandDone)
}
