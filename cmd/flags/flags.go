// Package flags holds the CLI flag definitions shared by the
// provisioning binaries, plus the logger bootstrap.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/glaserf/opentitan/common"
)

// SetupLogger builds the root logger from the common logging flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var ProbeAddrFlag = &cli.StringFlag{
	Name:     "probe-addr",
	Required: true,
	Usage:    "probe daemon address: host:port or unix://<socket path>",
}

var DeviceIDFlag = &cli.StringFlag{
	Name:     "device-id",
	Required: true,
	Usage:    "device identifier used for token derivation and artifact naming",
}

var ResetDelayFlag = &cli.DurationFlag{
	Name:  "reset-delay",
	Value: 100 * time.Millisecond,
	Usage: "duration the target is held in reset",
}

var TimeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 2 * time.Minute,
	Usage: "timeout for each console banner and status exchange",
}

// Provisioning action selection. AllStepsFlag supersedes and conflicts
// with the individual OTP flags.
var AllStepsFlag = &cli.BoolFlag{
	Name:  "all-steps",
	Usage: "perform all FT provisioning steps",
}
var TestUnlockFlag = &cli.BoolFlag{
	Name:  "test-unlock",
	Usage: "transition from TEST_LOCKED0 to TEST_UNLOCKED1",
}
var OtpCreatorSwCfgFlag = &cli.BoolFlag{
	Name:  "otp-creator-sw-cfg",
	Usage: "write the OTP CREATOR_SW_CFG partition",
}
var OtpOwnerSwCfgFlag = &cli.BoolFlag{
	Name:  "otp-owner-sw-cfg",
	Usage: "write the OTP OWNER_SW_CFG partition",
}
var OtpHwCfgFlag = &cli.BoolFlag{
	Name:  "otp-hw-cfg",
	Usage: "write the OTP HW_CFG partition",
}
var TestExitFlag = &cli.BoolFlag{
	Name:  "test-exit",
	Usage: "transition to a mission mode state after provisioning",
}
var PersonalizeFlag = &cli.BoolFlag{
	Name:  "personalize",
	Usage: "personalize the device with secrets",
}

var TargetLcStateFlag = &cli.StringFlag{
	Name:  "target-lc-state",
	Value: "prod",
	Usage: "mission mode state for test-exit: dev, prod or prod_end",
}

// Token sources accept a hex literal, @<file>, vault://<mount>/<path>#<field>
// or derived://<label>.
var TestUnlockTokenFlag = &cli.StringFlag{
	Name:  "test-unlock-token",
	Usage: "test unlock token source",
}
var TestExitTokenFlag = &cli.StringFlag{
	Name:  "test-exit-token",
	Usage: "test exit token source",
}
var TokenMasterSecretFlag = &cli.StringFlag{
	Name:  "token-master-secret",
	Usage: "hex-encoded master secret for derived:// token sources",
}
var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Usage:   "Vault address for vault:// token sources",
	EnvVars: []string{"VAULT_ADDR"},
}
var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault auth token for vault:// token sources",
	EnvVars: []string{"VAULT_TOKEN"},
}

var SramProgramFlag = &cli.StringFlag{
	Name:  "sram-program",
	Usage: "path to the FT individualization SRAM program image",
}
var BootstrapFlag = &cli.StringFlag{
	Name:  "bootstrap",
	Usage: "path to the primary personalization firmware image",
}
var SecondaryBootstrapFlag = &cli.StringFlag{
	Name:  "secondary-bootstrap",
	Usage: "path to the secondary personalization firmware image",
}
var HostKeyFlag = &cli.StringFlag{
	Name:  "host-ecc-sk",
	Usage: "path to the host ECC P-256 private key (PKCS#8)",
}

var ArtifactStorageFlag = &cli.StringSliceFlag{
	Name:  "artifact-storage",
	Usage: "artifact storage URIs (file://, s3://); personalization output is written to every location",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "ft-provision",
	Usage: "add 'service' tag to logs",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}
