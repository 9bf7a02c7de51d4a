// Package interfaces defines the core interfaces and types for the FT
// provisioning orchestrator, separating collaborator contracts from
// implementations.
//
// The package provides contracts for the externals the orchestration
// stages depend on:
//
// # Transport Interfaces
//
// Transport: Debug-probe access to the target: pin strapping, target
// reset, JTAG connection creation, and console (UART) access.
//
// Jtag: A debug connection to a single TAP, supporting lifecycle
// controller register reads and core halt/reset.
//
// Console: The half-duplex console byte stream used both for plain-text
// banner matching and for the binary provisioning protocol.
//
// SramProgram / Bootstrapper: Program injection into SRAM and flash
// respectively. Both are assumed-reliable primitives; the orchestrator
// only inspects their results.
//
// LcTransitioner: Performs a lifecycle transition request against an
// open lifecycle TAP connection, optionally reconnecting afterwards to
// allow post-state verification.
//
// # Core Types
//
// LcState: Lifecycle states with their redundant on-wire register
// encoding. Token: the 128-bit transition authorization secret.
//
// # Error Types
//
// LcStateError is the distinguished precondition-violation error: the
// observed lifecycle state did not match the state required before a
// destructive operation. It is always fatal and never retried.
package interfaces
