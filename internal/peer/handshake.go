package peer

import (
	"fmt"
	"go-bitcoin/internal/network"
	"net"
)

// Connect dials host:port and runs the handshake engine, returning a Ready
// PeerConnection. The heavy lifting (either {Version,VerAck} or
// {VerAck,Version} arrival order, version negotiation, 30s default
// deadline) lives in network.PeerConnection.Handshake; this is the thin
// per-peer entry point ConnectAll calls for each seed.
func Connect(host string, port int, net_ network.Net, version int32, userAgent string, startHeight int32, logging bool) (*network.PeerConnection, error) {
	pc, err := network.DialPeer(host, port, net_, logging)
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(host)
	local := network.DefaultVersionMessage(ip, uint16(port))
	local.Version = version
	local.UserAgent = userAgent
	local.LatestBlock = startHeight

	if err := pc.Handshake(local); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: handshake with %s:%d: %w", host, port, err)
	}
	return pc, nil
}

// ConnectAll dials every seed and returns the subset that completed the
// handshake. Dial/handshake failures are collected, not fatal: IHD and the
// manager proceed with whatever peers came up.
func ConnectAll(seeds []string, defaultPort int, net_ network.Net, version int32, userAgent string, startHeight int32, logging bool) ([]*network.PeerConnection, []error) {
	var peers []*network.PeerConnection
	var errs []error
	for _, seed := range seeds {
		host, port := splitSeed(seed, defaultPort)
		pc, err := Connect(host, port, net_, version, userAgent, startHeight, logging)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		peers = append(peers, pc)
	}
	return peers, errs
}

func splitSeed(seed string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(seed)
	if err != nil {
		return seed, defaultPort
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil || port <= 0 {
		return host, defaultPort
	}
	return host, port
}
