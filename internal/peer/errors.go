// Package peer builds the node's multi-peer behavior on top of a single
// network.PeerConnection: handshaking, Initial Header Download, the block
// download scheduler, and the long-running broadcasting loop that wires
// peers to a chain.Store, a wallet.Wallet, and a frontend.Bridge.
package peer

import "errors"

var (
	// ErrIHDStalledNoPeers is raised when every peer fails during Initial
	// Header Download before the local tip advances even once.
	ErrIHDStalledNoPeers = errors.New("peer: initial header download stalled, no peers")

	// ErrBlockUnreachable marks a block hash that timed out against every
	// peer that was tried during the block download scheduler's run.
	ErrBlockUnreachable = errors.New("peer: block unreachable from any peer")
)
