package peer

import (
	"bytes"
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/network"
	"net"
	"testing"
	"time"
)

// handshakeBothSides drives a real Handshake on both ends of a net.Pipe so
// readyPeers' network.Ready filter admits the client side.
func handshakeBothSides(t *testing.T, client, server *network.PeerConnection) {
	errCh := make(chan error, 2)
	go func() { errCh <- client.Handshake(network.VersionMessage{Version: 70015, UserAgent: "/client:0.1/"}) }()
	go func() { errCh <- server.Handshake(network.VersionMessage{Version: 70015, UserAgent: "/server:0.1/"}) }()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("handshake: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("handshake did not complete in time")
		}
	}
}

// TestDownloadRecentBlocksFetchesEachHeaderOnce exercises the scheduler end
// to end: a single ready peer answers two sequential GetData(BLOCK,...)
// requests (the per-peer cap forces them to be sequential) with matching
// FullBlock replies, and both headers come back without ErrBlockUnreachable.
func TestDownloadRecentBlocksFetchesEachHeaderOnce(t *testing.T) {
	genesis := block.NewBlock(1, [32]byte{}, [32]byte{}, 1_600_000_000, ihdTestBits, 0, nil)
	store, err := chain.NewStore(genesis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	genesisHash := headerHash(t, genesis)
	h1 := mineChild(t, genesisHash, genesis.TimeStamp+600, 1)
	h1Hash := headerHash(t, h1)
	h2 := mineChild(t, h1Hash, genesis.TimeStamp+1200, 2)
	h2Hash := headerHash(t, h2)
	if _, err := store.AppendHeaders([]block.Block{h1, h2}); err != nil {
		t.Fatalf("AppendHeaders: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	client := network.NewPeerConnection(clientConn, network.NetAddr{Port: 18444}, network.Regtest, false)
	server := network.NewPeerConnection(serverConn, network.NetAddr{Port: 18444}, network.Regtest, false)
	defer client.Close()
	defer server.Close()

	handshakeBothSides(t, client, server)

	blocksByHash := map[[32]byte]block.Block{h1Hash: h1, h2Hash: h2}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		for i := 0; i < 2; i++ {
			var env network.NetworkEnvelope
			for {
				select {
				case e, ok := <-server.Inbound:
					if !ok {
						return
					}
					env = e
				case <-time.After(5 * time.Second):
					return
				}
				// The handshake's own version/verack envelopes also land on
				// Inbound; skip past them to the getdata requests.
				if env.Command == "getdata" {
					break
				}
			}
			gd, err := network.ParseGetDataMessage(bytes.NewReader(env.Payload))
			if err != nil || len(gd.Data) == 0 {
				return
			}
			hdr, ok := blocksByHash[gd.Data[0].Identifier]
			if !ok {
				return
			}
			fb := &block.FullBlock{BlockHeader: &hdr}
			msg := network.BlockMessage{Block: fb}
			if err := server.Send(&msg); err != nil {
				return
			}
		}
	}()

	results := DownloadRecentBlocks([]*network.PeerConnection{client}, store, 2, 1, 2*time.Second, nil)

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("fake peer goroutine never finished")
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error for block %x: %v", r.Hash, r.Err)
		}
		if r.Block == nil {
			t.Fatalf("expected a block for %x", r.Hash)
		}
		if _, ok := blocksByHash[r.Hash]; !ok {
			t.Fatalf("unexpected hash in results: %x", r.Hash)
		}
	}
}

func TestDownloadRecentBlocksNoReadyPeers(t *testing.T) {
	genesis := block.NewBlock(1, [32]byte{}, [32]byte{}, 1_600_000_000, ihdTestBits, 0, nil)
	store, err := chain.NewStore(genesis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	clientConn, _ := net.Pipe()
	client := network.NewPeerConnection(clientConn, network.NetAddr{Port: 18444}, network.Regtest, false)
	defer client.Close()

	results := DownloadRecentBlocks([]*network.PeerConnection{client}, store, 1, 1, time.Second, nil)
	if results != nil {
		t.Fatalf("expected no results with no ready peers, got %d", len(results))
	}
}
