// Package protocol implements the binary console protocol spoken with
// the on-device provisioning firmware.
//
// All frames share a length-tagged little-endian layout:
//
//	tag uint32 | length uint32 | payload
//
// Command frames carry a single command code and are each acknowledged
// by a status frame carrying a success/failure code. Personalization
// data frames carry fixed-width word arrays plus a bounded,
// length-prefixed certificate list.
//
// The framing is interleaved with plain-text banners on the same
// console stream; banners delimit protocol phases (matched by the
// orchestration packages), frames carry the data.
//
// Decoding is strict: wrong tags, wrong lengths, truncated payloads and
// out-of-bound list sizes are all fatal errors; the device state after
// a malformed exchange is unknown, so nothing is retried or resynced.
package protocol
