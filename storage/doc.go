// Package storage persists per-device provisioning artifacts: the
// personalization output record, the device-wrapped RMA unlock token
// and the device certificates.
//
// Two backends are provided, local filesystem (file://) and S3
// (s3://), plus a fan-out backend that writes every artifact to all
// configured locations. Artifact persistence happens after the device
// protocol has completed, so storage failures never leave the chip in
// an inconsistent state; they do fail the run, because a wrapped RMA
// token that was received but not recorded is unrecoverable.
package storage
