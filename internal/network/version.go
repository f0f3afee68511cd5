package network

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"go-bitcoin/internal/encoding"
	"io"
	"math/rand"
	"net"
	"time"
)

// RelayFlagMinVersion is the lowest protocol version that carries the
// trailing relay byte in a version message.
const RelayFlagMinVersion = 70001

func ParseNetAddr(r io.Reader) (NetAddr, error) {
	services, err := encoding.ReadUint64(r)
	if err != nil {
		return NetAddr{}, fmt.Errorf("netaddr parse error: %w", err)
	}
	var addr [16]byte
	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return NetAddr{}, fmt.Errorf("netaddr parse error: %w", err)
	}
	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, portBytes); err != nil {
		return NetAddr{}, fmt.Errorf("netaddr parse error: %w", err)
	}
	return NetAddr{
		Services: services,
		Address:  addr,
		Port:     binary.BigEndian.Uint16(portBytes),
	}, nil
}

type NetAddr struct {
	Services uint64
	Address  [16]byte
	Port     uint16
}

func NewNetAddr(services uint64, address [16]byte, port uint16) NetAddr {
	return NetAddr{
		Services: services,
		Address:  address,
		Port:     port,
	}
}

func (na NetAddr) String() string {
	ip := net.IP(na.Address[:])
	return ip.String()
}

func (na *NetAddr) Serialize() []byte {
	serviceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(serviceBytes, na.Services)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, na.Port)
	return append(serviceBytes, append(na.Address[:], portBytes...)...)
}

type VersionMessage struct {
	Version      int32 // default 70015
	Services     uint64
	TimeStamp    int64 // 64 bit UNIX time
	SenderAddr   NetAddr
	ReceiverAddr NetAddr
	Nonce        uint64
	UserAgent    string
	LatestBlock  int32
	Relay        bool
}

func DefaultVersionMessage(remoteIP net.IP, port uint16) VersionMessage {
	ip16 := remoteIP.To16()
	var addr [16]byte
	copy(addr[:], ip16)
	return VersionMessage{
		Version:   70015,
		Services:  8, // NODE_WITNESS (1<<3)
		TimeStamp: time.Now().Unix(),
		SenderAddr: NetAddr{
			Services: 0,
			Address:  [16]byte{},
			Port:     port,
		},
		ReceiverAddr: NetAddr{
			Services: 0,
			Address:  addr,
			Port:     port,
		},
		Nonce:       rand.Uint64(),
		UserAgent:   "/programmingbitcoin:0.1/",
		LatestBlock: 0,
		Relay:       false,
	}
}

func (vm *VersionMessage) Serialize() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	// write version
	int32Buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(int32Buf, uint32(vm.Version))
	if _, err := buf.Write(int32Buf); err != nil {
		return nil, err
	}
	// write services
	int64Buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(int64Buf, vm.Services)
	if _, err := buf.Write(int64Buf); err != nil {
		return nil, err
	}

	// write timestamp
	binary.LittleEndian.PutUint64(int64Buf, uint64(vm.TimeStamp))
	if _, err := buf.Write(int64Buf); err != nil {
		return nil, err
	}
	// write receiver and sender addresses
	if _, err := buf.Write(vm.ReceiverAddr.Serialize()); err != nil {
		return nil, err
	}
	if _, err := buf.Write(vm.SenderAddr.Serialize()); err != nil {
		return nil, err
	}

	// write nonce
	binary.LittleEndian.PutUint64(int64Buf, vm.Nonce)
	if _, err := buf.Write(int64Buf); err != nil {
		return nil, err
	}

	// write user agent (prepended with varint length)
	userAgentLen := uint64(len(vm.UserAgent))
	userAgentVarInt, err := encoding.EncodeVarInt(userAgentLen)
	if err != nil {
		return nil, err
	}
	if _, err := buf.Write(userAgentVarInt); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte(vm.UserAgent)); err != nil {
		return nil, err
	}

	// write height (is latest block right?)
	binary.LittleEndian.PutUint32(int32Buf, uint32(vm.LatestBlock))
	if _, err := buf.Write(int32Buf); err != nil {
		return nil, err
	}

	// write relay, present only for version >= RelayFlagMinVersion
	if vm.Version >= RelayFlagMinVersion {
		if vm.Relay {
			buf.Write([]byte{byte(0x01)})
		} else {
			buf.Write([]byte{byte(0x00)})
		}
	}

	return buf.Bytes(), nil
}

func (vm VersionMessage) Command() string {
	return "version"
}

// ParseVersionMessage deserializes a version payload. The trailing relay
// byte is only present for version >= RelayFlagMinVersion and is treated
// as optional: a short read (EOF right after start_height) is not an error.
func ParseVersionMessage(r io.Reader) (VersionMessage, error) {
	version, err := encoding.ReadInt32(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	services, err := encoding.ReadUint64(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	timestamp, err := encoding.ReadInt64(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	recvAddr, err := ParseNetAddr(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	sendAddr, err := ParseNetAddr(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	nonce, err := encoding.ReadUint64(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	userAgentBytes, err := encoding.ReadVarBytes(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}
	latestBlock, err := encoding.ReadInt32(r)
	if err != nil {
		return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
	}

	relay := false
	if version >= RelayFlagMinVersion {
		relayByte := make([]byte, 1)
		if _, err := io.ReadFull(r, relayByte); err == nil {
			relay = relayByte[0] != 0x00
		} else if err != io.EOF {
			return VersionMessage{}, fmt.Errorf("version parse error: %w", err)
		}
	}

	return VersionMessage{
		Version:      version,
		Services:     services,
		TimeStamp:    timestamp,
		SenderAddr:   sendAddr,
		ReceiverAddr: recvAddr,
		Nonce:        nonce,
		UserAgent:    string(userAgentBytes),
		LatestBlock:  latestBlock,
		Relay:        relay,
	}, nil
}
