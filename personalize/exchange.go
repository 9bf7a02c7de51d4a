// Package personalize implements the personalization data exchange: it
// bootstraps the two personalization firmware images and exchanges the
// host public key against the device-generated secrets and certificates
// over the console.
//
// The stage assumes the chip has already exited the test lifecycle into
// a mission-mode state with flash boot enabled; the firmware images
// verify that themselves on boot.
package personalize

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/glaserf/opentitan/cryptoutils"
	"github.com/glaserf/opentitan/interfaces"
	"github.com/glaserf/opentitan/protocol"
)

var (
	// passBanner is emitted by the primary image after its self-test.
	passBanner = regexp.MustCompile(`PASS.*\n`)
	// readyBanner signals the device is ready to receive host data.
	readyBanner = regexp.MustCompile(`Waiting for FT provisioning data \.\.\.`)
	// exportBanner signals the device is about to export its data.
	exportBanner = regexp.MustCompile(`Exporting FT provisioning data \.\.\.`)
)

const consoleName = "console"

// Exchange runs the host side of the personalization protocol.
type Exchange struct {
	transport interfaces.Transport
	bootstrap interfaces.Bootstrapper
	log       *slog.Logger
}

// NewExchange creates a personalization data exchange.
func NewExchange(transport interfaces.Transport, bootstrap interfaces.Bootstrapper, log *slog.Logger) *Exchange {
	return &Exchange{
		transport: transport,
		bootstrap: bootstrap,
		log:       log,
	}
}

// Run bootstraps both personalization images, injects the host public
// key and returns the device's personalization output. Persisting the
// output (wrapped RMA unlock token, device certificates) is the
// caller's responsibility.
func (e *Exchange) Run(secondaryImagePath, hostKeyPath string, timeout time.Duration) (*protocol.PersonalizationOutput, error) {
	console, err := e.transport.Uart(consoleName)
	if err != nil {
		return nil, fmt.Errorf("personalize: console unavailable: %w", err)
	}

	// The primary image runs a self-test and reports PASS before the
	// protocol starts; not observing it means the image did not boot.
	if err := console.ClearRxBuffer(); err != nil {
		return nil, fmt.Errorf("personalize: failed to clear console buffer: %w", err)
	}
	if err := e.bootstrap.Init(e.transport); err != nil {
		return nil, fmt.Errorf("personalize: primary image bootstrap failed: %w", err)
	}
	if _, err := console.WaitForPattern(passBanner, timeout); err != nil {
		return nil, fmt.Errorf("personalize: primary image pass banner not observed: %w", err)
	}

	// The secondary image runs the personalization protocol itself, so
	// there is no pass banner to wait for here.
	if err := console.ClearRxBuffer(); err != nil {
		return nil, fmt.Errorf("personalize: failed to clear console buffer: %w", err)
	}
	if err := e.bootstrap.Load(e.transport, secondaryImagePath); err != nil {
		return nil, fmt.Errorf("personalize: secondary image bootstrap failed: %w", err)
	}

	hostKey, err := cryptoutils.LoadP256PrivateKey(hostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("personalize: host key: %w", err)
	}
	hostPk, err := cryptoutils.DevicePublicKey(&hostKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("personalize: host key encoding: %w", err)
	}
	input := protocol.PersonalizationInput{HostPk: hostPk}

	if err := console.SetFlowControl(true); err != nil {
		return nil, fmt.Errorf("personalize: failed to enable flow control: %w", err)
	}
	if _, err := console.WaitForPattern(readyBanner, timeout); err != nil {
		return nil, fmt.Errorf("personalize: device ready banner not observed: %w", err)
	}
	if err := input.Send(console); err != nil {
		return nil, fmt.Errorf("personalize: %w", err)
	}

	if _, err := console.WaitForPattern(exportBanner, timeout); err != nil {
		return nil, fmt.Errorf("personalize: device export banner not observed: %w", err)
	}
	output, err := protocol.RecvPersonalizationOutput(console, timeout)
	if err != nil {
		return nil, fmt.Errorf("personalize: %w", err)
	}

	e.log.Info("Personalization data received",
		slog.Int("device_certs", len(output.DeviceCerts)))
	return output, nil
}
