// Package lifecycle drives lifecycle state transitions over the
// lifecycle controller TAP: the test-unlock transition into the FT test
// state and the test-exit transition into a mission-mode state.
//
// Transitions are one-shot. Every precondition mismatch, transport
// failure or verification mismatch is fatal and aborts the flow;
// re-attempting after a partial failure risks inconsistent chip state,
// so nothing here retries.
package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glaserf/opentitan/interfaces"
)

// Controller sequences lifecycle transitions. The strap and debug
// connection are acquired at entry and released on every exit path.
type Controller struct {
	transport    interfaces.Transport
	transitioner interfaces.LcTransitioner
	log          *slog.Logger
}

// NewController creates a lifecycle transition controller.
func NewController(transport interfaces.Transport, transitioner interfaces.LcTransitioner, log *slog.Logger) *Controller {
	return &Controller{
		transport:    transport,
		transitioner: transitioner,
		log:          log,
	}
}

// TestUnlock transitions the chip from TEST_LOCKED0 to TEST_UNLOCKED1.
//
// The target is reset before attaching, and the post-state is verified
// by re-attaching to the lifecycle TAP after the transition. The
// re-attach is safe at this point because code execution is not yet
// enabled in OTP, so reconnecting cannot reset the chip.
func (c *Controller) TestUnlock(token interfaces.Token, resetDelay time.Duration) error {
	strap, err := c.applyStrap(interfaces.StrapLcTap)
	if err != nil {
		return err
	}
	defer c.removeStrap(strap)

	if err := c.transport.ResetTarget(resetDelay); err != nil {
		return fmt.Errorf("test unlock: target reset failed: %w", err)
	}

	jtag, err := c.connect(interfaces.LcTap)
	if err != nil {
		return fmt.Errorf("test unlock: %w", err)
	}
	defer c.disconnect(jtag)

	// The transition is destructive; the pre-state check must pass
	// before anything is requested.
	if err := c.requireState(jtag, "test unlock", interfaces.LcStateTestLocked0); err != nil {
		return err
	}

	c.log.Info("Requesting lifecycle transition",
		slog.String("from", interfaces.LcStateTestLocked0.String()),
		slog.String("to", interfaces.LcStateTestUnlocked1.String()))

	reconnect := interfaces.LcTap
	// External clock is not needed; AST calibration has completed by
	// this point.
	if err := c.transitioner.Trigger(jtag, interfaces.LcStateTestUnlocked1, &token,
		false, resetDelay, &reconnect); err != nil {
		return fmt.Errorf("test unlock: transition failed: %w", err)
	}

	if err := c.requireState(jtag, "test unlock verification", interfaces.LcStateTestUnlocked1); err != nil {
		return err
	}

	c.log.Info("Test unlock complete", slog.String("state", interfaces.LcStateTestUnlocked1.String()))
	return nil
}

// TestExit transitions the chip from TEST_UNLOCKED1 to the given
// mission-mode state.
//
// Unlike TestUnlock, the target is NOT reset before attaching: a reset
// would let the ROM boot the flash image, which can lock the debug
// interface before the transition is requested. TAP straps are sampled
// continuously in TEST_UNLOCKED states, so no reset is needed to switch
// TAPs. The post-state is also NOT re-verified here: code execution is
// enabled after this transition and a re-attach could itself reset the
// chip. Verification is deferred to the next stage's own preconditions.
func (c *Controller) TestExit(token interfaces.Token, resetDelay time.Duration, target interfaces.LcState) error {
	if !target.IsMissionMode() {
		return fmt.Errorf("test exit: %s is not a mission mode lifecycle state", target)
	}

	strap, err := c.applyStrap(interfaces.StrapLcTap)
	if err != nil {
		return err
	}
	defer c.removeStrap(strap)

	jtag, err := c.connect(interfaces.LcTap)
	if err != nil {
		return fmt.Errorf("test exit: %w", err)
	}
	defer c.disconnect(jtag)

	if err := c.requireState(jtag, "test exit", interfaces.LcStateTestUnlocked1); err != nil {
		return err
	}

	c.log.Info("Requesting lifecycle transition",
		slog.String("from", interfaces.LcStateTestUnlocked1.String()),
		slog.String("to", target.String()))

	if err := c.transitioner.Trigger(jtag, target, &token, false, resetDelay, nil); err != nil {
		return fmt.Errorf("test exit: transition failed: %w", err)
	}

	c.log.Info("Test exit transition requested; post-state is verified by the next boot stage",
		slog.String("target", target.String()))
	return nil
}

// requireState reads the lifecycle state register and fails with an
// LcStateError unless it carries the expected state's encoding.
func (c *Controller) requireState(jtag interfaces.Jtag, op string, expected interfaces.LcState) error {
	raw, err := jtag.ReadLcCtrlReg(interfaces.LcCtrlRegState)
	if err != nil {
		return fmt.Errorf("%s: lifecycle state read failed: %w", op, err)
	}
	if raw != expected.RedundantEncoding() {
		return &interfaces.LcStateError{Op: op, Expected: expected, Observed: raw}
	}
	return nil
}

func (c *Controller) applyStrap(name string) (interfaces.PinStrapping, error) {
	strap, err := c.transport.PinStrapping(name)
	if err != nil {
		return nil, fmt.Errorf("pin strapping %s unavailable: %w", name, err)
	}
	if err := strap.Apply(); err != nil {
		return nil, fmt.Errorf("failed to apply %s strapping: %w", name, err)
	}
	return strap, nil
}

// removeStrap releases strapping on exit paths. A stuck strap blocks
// all subsequent stages, so failures are loud even though the stage
// outcome is already decided.
func (c *Controller) removeStrap(strap interfaces.PinStrapping) {
	if err := strap.Remove(); err != nil {
		c.log.Error("Failed to remove pin strapping", "err", err)
	}
}

func (c *Controller) connect(tap interfaces.JtagTap) (interfaces.Jtag, error) {
	jtag, err := c.transport.Jtag()
	if err != nil {
		return nil, fmt.Errorf("debug connection unavailable: %w", err)
	}
	if err := jtag.Connect(tap); err != nil {
		return nil, fmt.Errorf("failed to attach to %s TAP: %w", tap, err)
	}
	return jtag, nil
}

func (c *Controller) disconnect(jtag interfaces.Jtag) {
	if err := jtag.Disconnect(); err != nil {
		c.log.Error("Failed to detach debug connection", "err", err)
	}
}
