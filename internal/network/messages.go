package network

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/encoding"
	"go-bitcoin/internal/transactions"
	"io"
)

// VerAckMessage is the empty-payload acknowledgement that closes out a
// handshake. The teacher's Handshake sent one as a bare struct literal
// without the type ever being defined; this fills that gap.
type VerAckMessage struct{}

func (v *VerAckMessage) Serialize() ([]byte, error) {
	return []byte{}, nil
}

func (v VerAckMessage) Command() string {
	return "verack"
}

func ParseVerAckMessage(r io.Reader) (VerAckMessage, error) {
	return VerAckMessage{}, nil
}

// InvMessage advertises objects a peer has available. Structurally
// identical to GetDataMessage's payload, but it's a distinct command with
// its own semantics: a peer sends Inv unsolicited to announce, and the
// receiver follows up with GetData for whatever it wants.
type InvMessage struct {
	Data []DataItem
}

func NewInvMessage() InvMessage {
	return InvMessage{Data: []DataItem{}}
}

func (iv *InvMessage) AddData(dType DataType, id [32]byte) {
	iv.Data = append(iv.Data, DataItem{Type: dType, Identifier: id})
}

func (iv *InvMessage) Serialize() ([]byte, error) {
	gd := GetDataMessage{Data: iv.Data}
	return gd.Serialize()
}

func (iv InvMessage) Command() string {
	return "inv"
}

func ParseInvMessage(r io.Reader) (InvMessage, error) {
	count, err := encoding.ReadVarInt(r)
	if err != nil {
		return InvMessage{}, fmt.Errorf("inv parse error: %w", err)
	}
	items := make([]DataItem, count)
	for i := uint64(0); i < count; i++ {
		dtype, err := encoding.ReadUint32(r)
		if err != nil {
			return InvMessage{}, fmt.Errorf("inv parse error: %w", err)
		}
		id, err := encoding.ReadHash(r)
		if err != nil {
			return InvMessage{}, fmt.Errorf("inv parse error: %w", err)
		}
		items[i] = DataItem{Type: DataType(dtype), Identifier: id}
	}
	return InvMessage{Data: items}, nil
}

// ParseGetDataMessage mirrors ParseInvMessage for the other direction.
func ParseGetDataMessage(r io.Reader) (GetDataMessage, error) {
	inv, err := ParseInvMessage(r)
	if err != nil {
		return GetDataMessage{}, err
	}
	return GetDataMessage{Data: inv.Data}, nil
}

// TxMessage wraps a single relayed transaction.
type TxMessage struct {
	Tx *transactions.Transaction
}

func (tm *TxMessage) Serialize() ([]byte, error) {
	return tm.Tx.Serialize()
}

func (tm TxMessage) Command() string {
	return "tx"
}

func ParseTxMessage(r io.Reader) (TxMessage, error) {
	tx, err := transactions.ParseTransaction(r)
	if err != nil {
		return TxMessage{}, fmt.Errorf("tx parse error: %w", err)
	}
	return TxMessage{Tx: &tx}, nil
}

// BlockMessage carries a full block: header plus its transactions, per
// spec.md's "header, tx_count, transactions[]" contract.
type BlockMessage struct {
	Block *block.FullBlock
}

func (bm *BlockMessage) Serialize() ([]byte, error) {
	return bm.Block.Serialize()
}

func (bm BlockMessage) Command() string {
	return "block"
}

func ParseBlockMessage(r io.Reader) (BlockMessage, error) {
	fb, err := block.ParseFullBlock(r)
	if err != nil {
		return BlockMessage{}, fmt.Errorf("block parse error: %w", err)
	}
	return BlockMessage{Block: fb}, nil
}

// PingMessage carries a typed 64-bit nonce. PongMessage (pong.go) keeps the
// teacher's raw-byte Nonce field; PongNonce decodes it as a uint64.
type PingMessage struct {
	Nonce uint64
}

func NewPingMessage(nonce uint64) PingMessage {
	return PingMessage{Nonce: nonce}
}

func (pm *PingMessage) Serialize() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := encoding.WriteUint64(buf, pm.Nonce); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (pm PingMessage) Command() string {
	return "ping"
}

func ParsePingMessage(r io.Reader) (PingMessage, error) {
	nonce, err := encoding.ReadUint64(r)
	if err != nil {
		return PingMessage{}, fmt.Errorf("ping parse error: %w", err)
	}
	return PingMessage{Nonce: nonce}, nil
}

func ParsePongMessage(r io.Reader) (PongMessage, error) {
	nonce, err := encoding.ReadFixedBytes(r, 8)
	if err != nil {
		return PongMessage{}, fmt.Errorf("pong parse error: %w", err)
	}
	return PongMessage{Nonce: nonce}, nil
}

// PongNonce decodes the raw nonce bytes as the u64 spec.md specifies.
func (pm PongMessage) PongNonce() uint64 {
	return binary.LittleEndian.Uint64(pm.Nonce)
}

// NewPongMessage builds the reply to a Ping, echoing its nonce.
func NewPongMessage(nonce uint64) *PongMessage {
	buf := bytes.NewBuffer(nil)
	encoding.WriteUint64(buf, nonce)
	return &PongMessage{Nonce: buf.Bytes()}
}

// SendHeadersMessage (BIP130) and FeeFilterMessage (BIP133) are empty or
// near-empty control messages the teacher already logged but never parsed.
type SendHeadersMessage struct{}

func (s *SendHeadersMessage) Serialize() ([]byte, error) {
	return []byte{}, nil
}

func (s SendHeadersMessage) Command() string {
	return "sendheaders"
}

type FeeFilterMessage struct {
	FeeRate uint64 // satoshis per kilobyte
}

func (f *FeeFilterMessage) Serialize() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := encoding.WriteUint64(buf, f.FeeRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f FeeFilterMessage) Command() string {
	return "feefilter"
}

func ParseFeeFilterMessage(r io.Reader) (FeeFilterMessage, error) {
	rate, err := encoding.ReadUint64(r)
	if err != nil {
		return FeeFilterMessage{}, fmt.Errorf("feefilter parse error: %w", err)
	}
	return FeeFilterMessage{FeeRate: rate}, nil
}
