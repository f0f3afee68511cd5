package encoding

// ZeroHash is the sentinel HashType meaning "no stop hash" in GetHeaders,
// and the PrevBlock value of a genesis header.
var ZeroHash [32]byte

func IsZeroHash(h [32]byte) bool {
	return h == ZeroHash
}

// Hash256Array is Hash256 returning a fixed-size array instead of a slice,
// for call sites that store hashes as [32]byte (the common case on the
// wire and in the chain store).
func Hash256Array(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], Hash256(data))
	return out
}
