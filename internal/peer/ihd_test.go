package peer

import (
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/network"
	"net"
	"testing"
	"time"
)

const ihdTestBits uint32 = 0x20ffffff

func mineChild(t *testing.T, parentHash [32]byte, timestamp uint32, startNonce uint32) block.Block {
	for nonce := startNonce; nonce < startNonce+100_000; nonce++ {
		h := block.NewBlock(1, parentHash, [32]byte{}, timestamp, ihdTestBits, nonce, nil)
		if h.CheckProofOfWork() {
			return h
		}
	}
	t.Fatalf("could not mine a header within the try budget")
	return block.Block{}
}

func headerHash(t *testing.T, h block.Block) [32]byte {
	raw, err := h.Hash()
	if err != nil {
		t.Fatalf("hash header: %v", err)
	}
	var out [32]byte
	copy(out[:], raw)
	return out
}

// sendEnvelope writes one framed message directly onto conn, bypassing
// network.PeerConnection's send loop, so the test can act as a bare-bones
// remote peer.
func sendEnvelope(t *testing.T, conn net.Conn, command string, msg network.Message) {
	payload, err := msg.Serialize()
	if err != nil {
		t.Fatalf("serialize %s: %v", command, err)
	}
	env, err := network.NewNetworkEnvelope(command, payload, network.Regtest)
	if err != nil {
		t.Fatalf("envelope %s: %v", command, err)
	}
	raw, err := env.Serialize()
	if err != nil {
		t.Fatalf("serialize envelope %s: %v", command, err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write %s: %v", command, err)
	}
}

// TestRunIHDSyncsToPeerTip is the node's third testable scenario: a single
// peer serves two batches of headers (one of them non-empty but below the
// 2000 cap, then an empty one), and the local chain converges to the peer's
// reported tip, with IHD detecting "synced" via the two-non-growing-replies
// streak.
func TestRunIHDSyncsToPeerTip(t *testing.T) {
	genesis := block.NewBlock(1, [32]byte{}, [32]byte{}, 1_600_000_000, ihdTestBits, 0, nil)
	store, err := chain.NewStore(genesis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	genesisHash := headerHash(t, genesis)
	h1 := mineChild(t, genesisHash, genesis.TimeStamp+600, 1)
	h1Hash := headerHash(t, h1)
	h2 := mineChild(t, h1Hash, genesis.TimeStamp+1200, 2)
	h3 := mineChild(t, headerHash(t, h2), genesis.TimeStamp+1800, 3)

	clientConn, serverConn := net.Pipe()
	client := network.NewPeerConnection(clientConn, network.NetAddr{Port: 18444}, network.Regtest, false)
	defer client.Close()
	defer serverConn.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)

		// First getheaders request: reply with all three headers.
		if _, err := network.ParseNetworkEnvelope(serverConn); err != nil {
			return
		}
		headersMsg := network.HeadersMessage{Blocks: []block.Block{h1, h2, h3}}
		sendEnvelope(t, serverConn, "headers", &headersMsg)

		// Second getheaders request: reply empty, declaring the peer synced.
		if _, err := network.ParseNetworkEnvelope(serverConn); err != nil {
			return
		}
		empty := network.HeadersMessage{Blocks: nil}
		sendEnvelope(t, serverConn, "headers", &empty)
	}()

	err = RunIHD([]*network.PeerConnection{client}, store, 70015, nil)
	if err != nil {
		t.Fatalf("RunIHD: %v", err)
	}

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("fake peer goroutine never finished")
	}

	if store.TipHeight() != 3 {
		t.Fatalf("expected tip height 3 after IHD, got %d", store.TipHeight())
	}
	if store.TipHash() != headerHash(t, h3) {
		t.Fatalf("expected tip to be h3")
	}
}

func TestRunIHDNoPeers(t *testing.T) {
	genesis := block.NewBlock(1, [32]byte{}, [32]byte{}, 1_600_000_000, ihdTestBits, 0, nil)
	store, err := chain.NewStore(genesis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := RunIHD(nil, store, 70015, nil); err != ErrIHDStalledNoPeers {
		t.Fatalf("expected ErrIHDStalledNoPeers, got %v", err)
	}
}
