package encoding

import "errors"

// Sentinel error kinds for the codec layer. Call sites use errors.Is against
// these rather than matching on message text.
var (
	ErrSerialization   = errors.New("serialization error")
	ErrDeserialization = errors.New("deserialization error")
	ErrVarIntRange     = errors.New("value out of range for varint")
)
