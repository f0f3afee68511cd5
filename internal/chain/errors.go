package chain

import "errors"

var (
	// ErrUnknownPrevious means a candidate header's previous hash is not a
	// known header: admission requires genesis or an already-admitted parent.
	ErrUnknownPrevious = errors.New("chain: unknown previous block")
	// ErrBadProofOfWork means hash256d(header) exceeds its own n_bits target.
	ErrBadProofOfWork = errors.New("chain: proof of work violation")
	// ErrBadTimestamp means the header's timestamp does not exceed the
	// median of the 11 preceding headers on its branch.
	ErrBadTimestamp = errors.New("chain: timestamp violation")
	// ErrNotFound is returned by lookups with no matching header.
	ErrNotFound = errors.New("chain: header not found")
)
