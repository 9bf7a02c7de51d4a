// Package main (cmd/ftprovision) implements the host-side driver for
// OpenTitan factory-test provisioning. It connects to a probe daemon
// that fronts the physical debug interface and walks a device through
// the selected provisioning stages:
//
//  1. Test unlock: transition the lifecycle state from TEST_LOCKED0 to
//     TEST_UNLOCKED1 using the test unlock token.
//  2. OTP individualization: load an SRAM program on the device and
//     drive it over the console to write the CREATOR_SW_CFG,
//     OWNER_SW_CFG and HW_CFG OTP partitions.
//  3. Test exit: transition into a mission mode state (dev, prod or
//     prod_end) using the test exit token.
//  4. Personalization: bootstrap the personalization firmware, send the
//     host public key to the device and collect the exported wrapped
//     RMA unlock token, device public key and certificates.
//
// Stages are selected with --test-unlock, --otp-*, --test-exit and
// --personalize; --all-steps enables every stage. Lifecycle tokens are
// resolved from a literal hex value, a file (@path), Vault
// (vault://mount/path#field) or derived from a master secret
// (derived://label). Personalization output can be persisted to one or
// more artifact storage locations (file://, s3://).
package main
