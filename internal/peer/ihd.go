package peer

import (
	"bytes"
	"fmt"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/logging"
	"go-bitcoin/internal/network"
	"sync"
	"time"
)

// MaxHeadersPerMessage is the wire limit on a single Headers reply.
const MaxHeadersPerMessage = 2000

// DefaultHeadersTimeout bounds how long a peer has to answer a GetHeaders
// before it's considered unresponsive.
const DefaultHeadersTimeout = 60 * time.Second

// RunIHD drives Initial Header Download across every given peer
// concurrently, each peer looping independently until it reports synced or
// fails. Peers that fail are closed and dropped from the rotation; IHD
// continues as long as at least one peer is live. If every peer fails
// before the local tip advances at all, ErrIHDStalledNoPeers is returned.
func RunIHD(peers []*network.PeerConnection, store *chain.Store, version int32, log *logging.Logger) error {
	if len(peers) == 0 {
		return ErrIHDStalledNoPeers
	}

	startHeight := store.TipHeight()

	var wg sync.WaitGroup
	errs := make([]error, len(peers))
	for i, pc := range peers {
		wg.Add(1)
		go func(i int, pc *network.PeerConnection) {
			defer wg.Done()
			errs[i] = syncPeer(pc, store, version, DefaultHeadersTimeout)
			if errs[i] != nil {
				if log != nil {
					log.Warn("peer %s failed during header download: %v", pc.Addr, errs[i])
				}
				pc.Close()
			}
		}(i, pc)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
		}
	}
	if failures == len(peers) && store.TipHeight() == startHeight {
		return ErrIHDStalledNoPeers
	}
	return nil
}

// syncPeer runs the per-peer IHD loop: build a locator, request headers,
// admit them, and repeat until the peer's replies stop growing the chain
// (two consecutive non-2000-header replies that don't grow past the prior
// reply's count declares it synced).
func syncPeer(pc *network.PeerConnection, store *chain.Store, version int32, headersTimeout time.Duration) error {
	prevCount := -1
	streak := 0

	for {
		locator := store.LocatorHashes()
		if err := pc.RequestHeaders(version, locator); err != nil {
			return err
		}

		// The per-command channel fan-out in network.PeerConnection is this
		// node's realization of deserialize_until_found: interleaved
		// ping/inv traffic is routed to its own channel by messageLoop, so
		// waiting on the "headers" channel already skips anything that
		// isn't a Headers reply. ReceiveWithTimeout's deadline is the
		// NodeNotResponding bound that a literal skip-count would enforce.
		env, err := pc.ReceiveWithTimeout("headers", headersTimeout)
		if err != nil {
			return err
		}

		msg, err := network.ParseHeadersMessage(bytes.NewReader(env.Payload))
		if err != nil {
			return fmt.Errorf("peer: parse headers from %s: %w", pc.Addr, err)
		}

		if _, err := store.AppendHeaders(msg.Blocks); err != nil {
			return fmt.Errorf("peer: admit headers from %s: %w", pc.Addr, err)
		}

		count := len(msg.Blocks)
		if count == MaxHeadersPerMessage {
			prevCount = count
			streak = 0
			continue
		}

		if prevCount >= 0 && count <= prevCount {
			streak++
		} else {
			streak = 1
		}
		prevCount = count

		if streak >= 2 {
			return nil
		}
	}
}
