package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/glaserf/opentitan/cmd/flags"
	"github.com/glaserf/opentitan/interfaces"
	"github.com/glaserf/opentitan/lifecycle"
	"github.com/glaserf/opentitan/personalize"
	"github.com/glaserf/opentitan/probe"
	"github.com/glaserf/opentitan/protocol"
	"github.com/glaserf/opentitan/provisioning"
	"github.com/glaserf/opentitan/storage"
	"github.com/glaserf/opentitan/tokens"
)

var appFlags = append([]cli.Flag{
	flags.ProbeAddrFlag,
	flags.DeviceIDFlag,
	flags.ResetDelayFlag,
	flags.TimeoutFlag,
	flags.AllStepsFlag,
	flags.TestUnlockFlag,
	flags.OtpCreatorSwCfgFlag,
	flags.OtpOwnerSwCfgFlag,
	flags.OtpHwCfgFlag,
	flags.TestExitFlag,
	flags.PersonalizeFlag,
	flags.TargetLcStateFlag,
	flags.TestUnlockTokenFlag,
	flags.TestExitTokenFlag,
	flags.TokenMasterSecretFlag,
	flags.VaultAddrFlag,
	flags.VaultTokenFlag,
	flags.SramProgramFlag,
	flags.BootstrapFlag,
	flags.SecondaryBootstrapFlag,
	flags.HostKeyFlag,
	flags.ArtifactStorageFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "ftprovision",
		Usage:  "Run OpenTitan factory-test provisioning stages against a probe daemon",
		Flags:  appFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	actions := provisioning.ActionSet{
		AllSteps:     cCtx.Bool(flags.AllStepsFlag.Name),
		Unlock:       cCtx.Bool(flags.TestUnlockFlag.Name),
		CreatorSwCfg: cCtx.Bool(flags.OtpCreatorSwCfgFlag.Name),
		OwnerSwCfg:   cCtx.Bool(flags.OtpOwnerSwCfgFlag.Name),
		HwCfg:        cCtx.Bool(flags.OtpHwCfgFlag.Name),
		Exit:         cCtx.Bool(flags.TestExitFlag.Name),
		Personalize:  cCtx.Bool(flags.PersonalizeFlag.Name),
	}
	if err := actions.Validate(); err != nil {
		return err
	}

	logger := flags.SetupLogger(cCtx)
	deviceID := cCtx.String(flags.DeviceIDFlag.Name)
	resetDelay := cCtx.Duration(flags.ResetDelayFlag.Name)
	timeout := cCtx.Duration(flags.TimeoutFlag.Name)
	logger = logger.With("device_id", deviceID)

	tokenCfg := tokens.Config{
		VaultAddr:  cCtx.String(flags.VaultAddrFlag.Name),
		VaultToken: cCtx.String(flags.VaultTokenFlag.Name),
		DeviceID:   deviceID,
	}
	if secret := cCtx.String(flags.TokenMasterSecretFlag.Name); secret != "" {
		raw, err := hex.DecodeString(secret)
		if err != nil {
			return fmt.Errorf("invalid token master secret: %w", err)
		}
		tokenCfg.MasterSecret = raw
	}

	// Resolve artifact storage up front so a bad location URI fails
	// before any hardware state is touched.
	var artifacts interfaces.ArtifactStorage
	if uris := cCtx.StringSlice(flags.ArtifactStorageFlag.Name); len(uris) > 0 {
		locations := make([]interfaces.ArtifactLocation, 0, len(uris))
		for _, uri := range uris {
			loc, err := interfaces.NewArtifactLocation(uri)
			if err != nil {
				return fmt.Errorf("artifact storage %q: %w", uri, err)
			}
			locations = append(locations, loc)
		}
		backend, err := storage.NewFactory(logger).MultiBackendFor(locations)
		if err != nil {
			return err
		}
		artifacts = backend
	}

	logger.Info("Connecting to probe daemon", "address", cCtx.String(flags.ProbeAddrFlag.Name))
	client, err := probe.Dial(cCtx.String(flags.ProbeAddrFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to connect to probe daemon", "err", err)
		return err
	}
	defer client.Close()

	controller := lifecycle.NewController(client, client, logger)
	ctx := cCtx.Context

	if actions.RunUnlock() {
		token, err := resolveToken(ctx, cCtx.String(flags.TestUnlockTokenFlag.Name), tokenCfg, "test-unlock-token")
		if err != nil {
			return err
		}
		logger.Info("Running test unlock")
		if err := controller.TestUnlock(token, resetDelay); err != nil {
			logger.Error("Test unlock failed", "err", err)
			return err
		}
	}

	if actions.RunIndividualize() {
		sramPath := cCtx.String(flags.SramProgramFlag.Name)
		if sramPath == "" {
			return fmt.Errorf("--%s is required for OTP individualization", flags.SramProgramFlag.Name)
		}
		program := probe.NewSramProgram(client, sramPath)
		individualizer := provisioning.NewSramIndividualizer(client, program, logger)
		logger.Info("Running OTP individualization", "sram_program", sramPath)
		if err := individualizer.Run(actions, resetDelay, timeout); err != nil {
			logger.Error("OTP individualization failed", "err", err)
			return err
		}
	}

	if actions.RunExit() {
		target, err := interfaces.ParseMissionModeState(cCtx.String(flags.TargetLcStateFlag.Name))
		if err != nil {
			return err
		}
		token, err := resolveToken(ctx, cCtx.String(flags.TestExitTokenFlag.Name), tokenCfg, "test-exit-token")
		if err != nil {
			return err
		}
		logger.Info("Running test exit", "target", target.String())
		if err := controller.TestExit(token, resetDelay, target); err != nil {
			logger.Error("Test exit failed", "err", err)
			return err
		}
	}

	if actions.RunPersonalize() {
		primary := cCtx.String(flags.BootstrapFlag.Name)
		secondary := cCtx.String(flags.SecondaryBootstrapFlag.Name)
		hostKey := cCtx.String(flags.HostKeyFlag.Name)
		switch {
		case primary == "":
			return fmt.Errorf("--%s is required for personalization", flags.BootstrapFlag.Name)
		case secondary == "":
			return fmt.Errorf("--%s is required for personalization", flags.SecondaryBootstrapFlag.Name)
		case hostKey == "":
			return fmt.Errorf("--%s is required for personalization", flags.HostKeyFlag.Name)
		}

		exchange := personalize.NewExchange(client, probe.NewBootstrapper(client, primary), logger)
		logger.Info("Running personalization")
		output, err := exchange.Run(secondary, hostKey, timeout)
		if err != nil {
			logger.Error("Personalization failed", "err", err)
			return err
		}
		logger.Info("Personalization complete", "certs", len(output.DeviceCerts))

		if artifacts == nil {
			logger.Warn("No artifact storage configured, personalization output is not persisted")
		} else if err := persistOutput(ctx, artifacts, deviceID, output, logger); err != nil {
			return err
		}
	}

	logger.Info("Provisioning finished")
	return nil
}

// resolveToken turns a token spec flag into a concrete lifecycle token.
func resolveToken(ctx context.Context, spec string, cfg tokens.Config, flagName string) (interfaces.Token, error) {
	if spec == "" {
		return interfaces.Token{}, fmt.Errorf("--%s is required for the selected stages", flagName)
	}
	source, err := tokens.SourceFromSpec(spec, cfg)
	if err != nil {
		return interfaces.Token{}, fmt.Errorf("%s: %w", flagName, err)
	}
	token, err := source.Token(ctx)
	if err != nil {
		return interfaces.Token{}, fmt.Errorf("%s: %w", flagName, err)
	}
	return token, nil
}

// persoRecord is the JSON shape of the persisted personalization output.
type persoRecord struct {
	DeviceID              string   `json:"device_id"`
	WrappedRmaUnlockToken string   `json:"wrapped_rma_unlock_token"`
	DevicePkX             string   `json:"device_pk_x"`
	DevicePkY             string   `json:"device_pk_y"`
	DeviceCerts           [][]byte `json:"device_certs"`
}

func wordsToHex(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return hex.EncodeToString(buf)
}

// persistOutput writes the personalization artifacts to every configured
// storage backend: the full record, the wrapped RMA unlock token on its
// own, and the device certificates concatenated in DER order.
func persistOutput(ctx context.Context, backend interfaces.ArtifactStorage, deviceID string, output *protocol.PersonalizationOutput, logger *slog.Logger) error {
	record := persoRecord{
		DeviceID:              deviceID,
		WrappedRmaUnlockToken: wordsToHex(output.WrappedRmaUnlockToken[:]),
		DevicePkX:             wordsToHex(output.DevicePkX[:]),
		DevicePkY:             wordsToHex(output.DevicePkY[:]),
		DeviceCerts:           output.DeviceCerts,
	}
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode personalization record: %w", err)
	}

	uri, err := backend.Store(ctx, deviceID, interfaces.PersoOutputArtifact, encoded)
	if err != nil {
		return fmt.Errorf("failed to persist personalization record: %w", err)
	}
	logger.Info("Stored personalization record", "uri", uri)

	uri, err = backend.Store(ctx, deviceID, interfaces.WrappedTokenArtifact, []byte(record.WrappedRmaUnlockToken))
	if err != nil {
		return fmt.Errorf("failed to persist wrapped RMA unlock token: %w", err)
	}
	logger.Info("Stored wrapped RMA unlock token", "uri", uri)

	var certs []byte
	for _, cert := range output.DeviceCerts {
		certs = append(certs, cert...)
	}
	uri, err = backend.Store(ctx, deviceID, interfaces.DeviceCertArtifact, certs)
	if err != nil {
		return fmt.Errorf("failed to persist device certificates: %w", err)
	}
	logger.Info("Stored device certificates", "uri", uri, "count", len(output.DeviceCerts))

	return nil
}
