package encoding

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Free-standing codec primitives for the fixed-width scalar types the wire
// protocol uses. These mirror the per-message ad hoc binary.LittleEndian
// calls already scattered through internal/network, collected here so new
// message types don't each re-derive the same four lines.

func WriteUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: uint32: %v", ErrSerialization, err)
	}
	return nil
}

func ReadUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("%w: uint32: %v", ErrDeserialization, err)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func WriteInt32(w io.Writer, v int32) error {
	return WriteUint32(w, uint32(v))
}

func ReadInt32(r io.Reader) (int32, error) {
	v, err := ReadUint32(r)
	return int32(v), err
}

func WriteUint64(w io.Writer, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: uint64: %v", ErrSerialization, err)
	}
	return nil
}

func ReadUint64(r io.Reader) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("%w: uint64: %v", ErrDeserialization, err)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func WriteInt64(w io.Writer, v int64) error {
	return WriteUint64(w, uint64(v))
}

func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

// WriteTimestamp writes an i64 seconds-since-epoch value, per spec.
func WriteTimestamp(w io.Writer, seconds int64) error {
	return WriteInt64(w, seconds)
}

func ReadTimestamp(r io.Reader) (int64, error) {
	return ReadInt64(r)
}

func WriteBool(w io.Writer, b bool) error {
	v := byte(0x00)
	if b {
		v = 0x01
	}
	if _, err := w.Write([]byte{v}); err != nil {
		return fmt.Errorf("%w: bool: %v", ErrSerialization, err)
	}
	return nil
}

func ReadBool(r io.Reader) (bool, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, fmt.Errorf("%w: bool: %v", ErrDeserialization, err)
	}
	switch buf[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool: invalid byte 0x%02x", ErrDeserialization, buf[0])
	}
}

// WriteFixedBytes writes exactly len(b) bytes, no length prefix.
func WriteFixedBytes(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("%w: fixed bytes: %v", ErrSerialization, err)
	}
	return nil
}

// ReadFixedBytes reads exactly n bytes.
func ReadFixedBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: fixed bytes: %v", ErrDeserialization, err)
	}
	return buf, nil
}

// WriteVarBytes writes a CompactSize length prefix followed by the bytes.
func WriteVarBytes(w io.Writer, b []byte) error {
	length, err := EncodeVarInt(uint64(len(b)))
	if err != nil {
		return fmt.Errorf("%w: var bytes length: %v", ErrSerialization, err)
	}
	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("%w: var bytes length: %v", ErrSerialization, err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("%w: var bytes: %v", ErrSerialization, err)
	}
	return nil
}

func ReadVarBytes(r io.Reader) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("%w: var bytes length: %v", ErrDeserialization, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: var bytes: %v", ErrDeserialization, err)
	}
	return buf, nil
}

// WriteHash writes a 32-byte double-SHA-256 digest as-is (already in wire order).
func WriteHash(w io.Writer, h [32]byte) error {
	return WriteFixedBytes(w, h[:])
}

func ReadHash(r io.Reader) ([32]byte, error) {
	var h [32]byte
	buf, err := ReadFixedBytes(r, 32)
	if err != nil {
		return h, err
	}
	copy(h[:], buf)
	return h, nil
}
