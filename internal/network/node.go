package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

type MessageHandler func(NetworkEnvelope)

// PeerState tracks a connection's progress through the handshake.
type PeerState int

const (
	Handshaking PeerState = iota
	Ready
	Closed
)

func (s PeerState) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Default deadlines and rate limit, per the concurrency model: 60s read/block
// fetch, 30s handshake, 200 msg/s inbound before reads are paused.
const (
	DefaultReadTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultRateLimit        = 200 // messages per second
)

// PeerConnection is one peer socket: a reader goroutine, a writer goroutine,
// and a fan-out goroutine feeding per-command channels plus an aggregate
// inbound queue the owning peer manager drains in wire order. Generalizes
// the single-peer SimpleNode into something a multi-peer manager can hold
// many of.
type PeerConnection struct {
	Addr    NetAddr
	conn    net.Conn
	Net     Net
	Logging bool

	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	RateLimit        int

	state   PeerState
	stateMu sync.RWMutex

	NegotiatedVersion int32

	incoming chan NetworkEnvelope
	Inbound  chan NetworkEnvelope // aggregate queue in wire order, drained by the peer manager
	outgoing chan Message
	done     chan struct{}
	closeOnce sync.Once
	wg       sync.WaitGroup

	handlers map[string]MessageHandler

	channelsMap map[string]chan NetworkEnvelope
}

// DialPeer opens a TCP connection to host:port and starts its read/send/fan-out
// goroutines. The returned connection is in the Handshaking state.
func DialPeer(host string, port int, net_ Net, logging bool) (*PeerConnection, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		// host is a DNS seed name (e.g. seed.bitcoin.sipa.be), not a literal
		// address: resolve it to one.
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("invalid or unresolvable host: %s", host)
		}
		ip = addrs[0]
	}
	ip16 := ip.To16()
	var address [16]byte
	copy(address[:], ip16)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), DefaultHandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s:%d - %w", host, port, err)
	}
	return NewPeerConnection(conn, NetAddr{Services: 0, Address: address, Port: uint16(port)}, net_, logging), nil
}

// NewPeerConnection wraps an already-established conn (dialed or accepted).
func NewPeerConnection(conn net.Conn, addr NetAddr, net_ Net, logging bool) *PeerConnection {
	pc := &PeerConnection{
		Addr:             addr,
		conn:             conn,
		Net:              net_,
		Logging:          logging,
		ReadTimeout:      DefaultReadTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		RateLimit:        DefaultRateLimit,
		state:            Handshaking,
		incoming:         make(chan NetworkEnvelope, 10),
		Inbound:          make(chan NetworkEnvelope, 64),
		outgoing:         make(chan Message, 10),
		done:             make(chan struct{}),
		handlers:         make(map[string]MessageHandler),
		channelsMap:      make(map[string]chan NetworkEnvelope),
	}

	pc.RegisterChannel("version", 1)
	pc.RegisterChannel("verack", 1)
	pc.RegisterChannel("headers", 1)
	// Buffered deep enough to hold a full round of the block download
	// scheduler's per-peer in-flight cap without the fan-out dropping a
	// reply while a caller is still matching earlier ones by hash.
	pc.RegisterChannel("block", 32)
	pc.RegisterChannel("merkleblock", 1)
	pc.RegisterChannel("tx", 25)
	pc.wg.Add(3)

	go pc.readLoop()
	go pc.sendLoop()
	go pc.messageLoop()

	// Auto-respond to ping messages.
	pc.OnMessage("ping", func(env NetworkEnvelope) {
		ping, err := ParsePingMessage(bytesReader(env.Payload))
		if err != nil {
			return
		}
		if pc.Logging {
			fmt.Println("auto-responding to ping")
		}
		pc.Send(NewPongMessage(ping.Nonce))
	})

	return pc
}

func (pc *PeerConnection) State() PeerState {
	pc.stateMu.RLock()
	defer pc.stateMu.RUnlock()
	return pc.state
}

func (pc *PeerConnection) setState(s PeerState) {
	pc.stateMu.Lock()
	pc.state = s
	pc.stateMu.Unlock()
}

func (pc *PeerConnection) RegisterChannel(name string, bufSize int) {
	pc.channelsMap[name] = make(chan NetworkEnvelope, bufSize)
}

func (pc *PeerConnection) readLoop() {
	defer pc.wg.Done()
	defer close(pc.incoming)

	limiter := newRateLimiter(pc.RateLimit)

	for {
		select {
		case <-pc.done:
			return
		default:
			pc.conn.SetReadDeadline(time.Now().Add(pc.ReadTimeout))
			env, err := ParseNetworkEnvelope(pc.conn)
			if err != nil {
				if pc.Logging {
					fmt.Printf("read error: %v\n", err)
				}
				pc.setState(Closed)
				return
			}
			limiter.wait()
			if pc.Logging {
				fmt.Printf("receiving: %s\n", env.Command)
			}

			select {
			case pc.incoming <- env:
			case <-pc.done:
				return
			}
		}
	}
}

func (pc *PeerConnection) sendLoop() {
	defer pc.wg.Done()

	for {
		select {
		case msg := <-pc.outgoing:
			payload, err := msg.Serialize()
			if err != nil {
				if pc.Logging {
					fmt.Printf("serialization error: %v\n", err)
				}
				return
			}
			envelope, err := NewNetworkEnvelope(msg.Command(), payload, pc.Net)
			if err != nil {
				if pc.Logging {
					fmt.Printf("network envelope error: %v\n", err)
				}
				return
			}
			if pc.Logging {
				fmt.Printf("sending: %s\n", envelope)
			}
			data, err := envelope.Serialize()
			if err != nil {
				if pc.Logging {
					fmt.Printf("serialization error: %v\n", err)
				}
				return
			}
			if _, err := pc.conn.Write(data); err != nil {
				if pc.Logging {
					fmt.Printf("write error: %v\n", err)
				}
				return
			}
		case <-pc.done:
			return
		}
	}
}

func (pc *PeerConnection) Send(msg Message) error {
	select {
	case pc.outgoing <- msg:
		return nil
	case <-pc.done:
		return fmt.Errorf("%w: connection closed", ErrNodeNotResponding)
	}
}

func (pc *PeerConnection) messageLoop() {
	defer func() {
		pc.wg.Done()
		close(pc.Inbound)
		for _, ch := range pc.channelsMap {
			close(ch)
		}
	}()
	for env := range pc.incoming {
		select {
		case pc.Inbound <- env:
		case <-pc.done:
			return
		}

		if ch, ok := pc.channelsMap[env.Command]; ok {
			select {
			case ch <- env:
			default:
				if pc.Logging {
					fmt.Printf("warning: channel full for %s, dropping message\n", env.Command)
				}
			}
		}

		if handler, ok := pc.handlers[env.Command]; ok {
			go handler(env)
		}
	}
}

func (pc *PeerConnection) OnMessage(command string, handler MessageHandler) {
	pc.handlers[command] = handler
}

// Handshake performs the Version/VerAck exchange and accepts either arrival
// order from the remote: {Version then VerAck} or {VerAck then Version}.
// Negotiated version is min(local, remote). On success the peer transitions
// Handshaking -> Ready.
func (pc *PeerConnection) Handshake(local VersionMessage) error {
	if pc.State() != Handshaking {
		return fmt.Errorf("%w: handshake called outside Handshaking state", ErrProtocolViolation)
	}

	if err := pc.Send(&local); err != nil {
		return err
	}

	gotVersion := false
	gotVerAck := false
	var remote VersionMessage

	timeout := time.NewTimer(pc.HandshakeTimeout)
	defer timeout.Stop()

	for !gotVersion || !gotVerAck {
		select {
		case env, ok := <-pc.channelsMap["version"]:
			if !ok {
				return fmt.Errorf("%w: connection closed during handshake", ErrNodeNotResponding)
			}
			if gotVersion {
				continue
			}
			v, err := ParseVersionMessage(bytesReader(env.Payload))
			if err != nil {
				return fmt.Errorf("%w: malformed version: %v", ErrProtocolViolation, err)
			}
			remote = v
			gotVersion = true
			// Ack the peer's version as soon as it arrives rather than
			// waiting on their VerAck too: both sides run this same loop,
			// so waiting for each other's VerAck first would deadlock.
			if err := pc.Send(&VerAckMessage{}); err != nil {
				return err
			}
		case env, ok := <-pc.channelsMap["verack"]:
			if !ok {
				return fmt.Errorf("%w: connection closed during handshake", ErrNodeNotResponding)
			}
			_ = env
			gotVerAck = true
		case <-timeout.C:
			return fmt.Errorf("%w: handshake timed out after %s", ErrNodeNotResponding, pc.HandshakeTimeout)
		case <-pc.done:
			return fmt.Errorf("%w: connection closed during handshake", ErrNodeNotResponding)
		}
	}

	negotiated := local.Version
	if remote.Version < negotiated {
		negotiated = remote.Version
	}
	pc.NegotiatedVersion = negotiated
	pc.setState(Ready)

	if pc.Logging {
		fmt.Printf("handshake complete, negotiated version %d\n", negotiated)
	}

	return nil
}

func (pc *PeerConnection) Receive(command string) (NetworkEnvelope, error) {
	return pc.ReceiveWithTimeout(command, 5*time.Second)
}

func (pc *PeerConnection) ReceiveWithTimeout(command string, timeout time.Duration) (NetworkEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ch, ok := pc.channelsMap[command]
	if !ok {
		return NetworkEnvelope{}, errors.New("unknown command")
	}
	select {
	case env, ok := <-ch:
		if !ok {
			return NetworkEnvelope{}, fmt.Errorf("%w: connection closed", ErrNodeNotResponding)
		}
		return env, nil
	case <-timer.C:
		return NetworkEnvelope{}, fmt.Errorf("%w: timeout waiting for %s", ErrNodeNotResponding, command)
	case <-pc.done:
		return NetworkEnvelope{}, fmt.Errorf("%w: connection closed", ErrNodeNotResponding)
	}
}

// RequestHeaders sends GetHeaders built from the given locator, stopping at
// ZeroHash (no stop hash, per spec.md's IHD algorithm).
func (pc *PeerConnection) RequestHeaders(version int32, locator [][32]byte) error {
	msg := NewGetHeadersMessage(version, locator, nil)
	return pc.Send(&msg)
}

// RequestBlock sends a GetData for a single block hash.
func (pc *PeerConnection) RequestBlock(blockHash [32]byte) error {
	gd := NewGetDataMessage()
	gd.AddData(DATA_TYPE_BLOCK, blockHash)
	return pc.Send(&gd)
}

func (pc *PeerConnection) Close() error {
	var err error
	pc.closeOnce.Do(func() {
		close(pc.done)
		pc.setState(Closed)
		err = pc.conn.Close()
		pc.wg.Wait()
		if pc.Logging {
			fmt.Printf("closing connection to %s...\n", pc.conn.RemoteAddr().String())
		}
	})
	return err
}
