package network

import "errors"

// Framing and protocol error kinds. A caller receiving one of these closes
// the offending peer connection.
var (
	ErrWrongMagic        = errors.New("wrong magic")
	ErrCorruptPayload    = errors.New("corrupt payload checksum")
	ErrOversizedMessage  = errors.New("oversized message")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrNodeNotResponding = errors.New("node not responding")
)

// MaxPayloadSize is the hard cap on a single frame's declared payload
// length, enforced before the bytes are read off the wire.
const MaxPayloadSize = 32 * 1024 * 1024
