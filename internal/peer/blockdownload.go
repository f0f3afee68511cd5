package peer

import (
	"bytes"
	"fmt"
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/logging"
	"go-bitcoin/internal/network"
	"sync"
	"time"
)

// Defaults per the block download scheduler's contract: the last K blocks,
// a per-peer in-flight cap, and a per-request timeout before re-queueing to
// a different peer.
const (
	DefaultBlockWindow  = 2016
	DefaultInFlightCap  = 16
	DefaultBlockTimeout = 60 * time.Second
)

// BlockResult is one block's outcome: either the parsed block, or
// ErrBlockUnreachable if every live peer timed out on it.
type BlockResult struct {
	Hash  [32]byte
	Block *block.FullBlock
	Err   error
}

type blockJob struct {
	hash  [32]byte
	tried map[*network.PeerConnection]bool
}

// DownloadRecentBlocks requests the last `window` main-chain blocks,
// distributing requests round-robin across peers with a per-peer in-flight
// cap. Runs in rounds: each round assigns unfetched jobs to peers that
// haven't already failed on them (up to the cap), waits for that round's
// fetches, and requeues any that timed out. A job with no untried peer left
// is reported BlockUnreachable; header-only IHD completion is unaffected.
func DownloadRecentBlocks(peers []*network.PeerConnection, store *chain.Store, window, perPeerCap int, timeout time.Duration, log *logging.Logger) []BlockResult {
	if window <= 0 {
		window = DefaultBlockWindow
	}
	if perPeerCap <= 0 {
		perPeerCap = DefaultInFlightCap
	}
	if timeout <= 0 {
		timeout = DefaultBlockTimeout
	}

	ready := readyPeers(peers)
	if len(ready) == 0 {
		return nil
	}

	headers := store.Latest(window)
	pending := make([]*blockJob, 0, len(headers))
	for _, h := range headers {
		hb, err := h.Hash()
		if err != nil {
			continue
		}
		var hash [32]byte
		copy(hash[:], hb)
		pending = append(pending, &blockJob{hash: hash, tried: make(map[*network.PeerConnection]bool)})
	}

	var results []BlockResult

	for len(pending) > 0 {
		type assignment struct {
			peer *network.PeerConnection
			job  *blockJob
		}
		var assignments []assignment
		var carriedOver []*blockJob
		load := make(map[*network.PeerConnection]int)

		for _, j := range pending {
			pc := pickUntriedPeer(ready, j.tried, load)
			if pc == nil {
				results = append(results, BlockResult{Hash: j.hash, Err: ErrBlockUnreachable})
				if log != nil {
					log.Warn("block %x unreachable from any peer", j.hash)
				}
				continue
			}
			if load[pc] >= perPeerCap {
				carriedOver = append(carriedOver, j)
				continue
			}
			load[pc]++
			assignments = append(assignments, assignment{peer: pc, job: j})
		}

		if len(assignments) == 0 {
			// every remaining job is either unreachable or over this
			// round's per-peer cap with nothing else to try concurrently;
			// carry the capped ones into the next round unchanged.
			pending = carriedOver
			if len(pending) == 0 {
				break
			}
			continue
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		nextPending := carriedOver
		for _, a := range assignments {
			wg.Add(1)
			go func(a assignment) {
				defer wg.Done()
				fb, err := fetchOneBlock(a.peer, a.job.hash, timeout)
				if err != nil {
					a.job.tried[a.peer] = true
					mu.Lock()
					nextPending = append(nextPending, a.job)
					mu.Unlock()
					return
				}
				mu.Lock()
				results = append(results, BlockResult{Hash: a.job.hash, Block: fb})
				mu.Unlock()
			}(a)
		}
		wg.Wait()
		pending = nextPending
	}

	return results
}

func readyPeers(peers []*network.PeerConnection) []*network.PeerConnection {
	out := make([]*network.PeerConnection, 0, len(peers))
	for _, pc := range peers {
		if pc.State() == network.Ready {
			out = append(out, pc)
		}
	}
	return out
}

// pickUntriedPeer returns the least-loaded Ready peer that hasn't already
// failed on the job (earliest in peers on a tie), so a round's jobs rotate
// across peers.
func pickUntriedPeer(peers []*network.PeerConnection, tried map[*network.PeerConnection]bool, load map[*network.PeerConnection]int) *network.PeerConnection {
	var best *network.PeerConnection
	for _, pc := range peers {
		if pc.State() == network.Ready && !tried[pc] && (best == nil || load[pc] < load[best]) {
			best = pc
		}
	}
	return best
}

// fetchOneBlock requests a single block and waits on the peer's "block"
// channel, discarding replies that don't match the hash requested (a
// concurrent in-flight request on the same peer may land first).
func fetchOneBlock(pc *network.PeerConnection, hash [32]byte, timeout time.Duration) (*block.FullBlock, error) {
	if err := pc.RequestBlock(hash); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: block %x from %s", network.ErrNodeNotResponding, hash, pc.Addr)
		}
		env, err := pc.ReceiveWithTimeout("block", remaining)
		if err != nil {
			return nil, err
		}
		msg, err := network.ParseBlockMessage(bytes.NewReader(env.Payload))
		if err != nil {
			continue
		}
		gotHash, err := msg.Block.BlockHeader.Hash()
		if err != nil {
			continue
		}
		if bytes.Equal(gotHash, hash[:]) {
			return msg.Block, nil
		}
	}
}
