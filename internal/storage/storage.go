// Package storage holds the framed-record persistence shared by the chain
// store and the wallet: every record is length-prefixed and carries a
// trailing SHA-256d checksum over everything above it, per the node's
// persisted-state format. Records live as bbolt values rather than flat
// files, grounded on the teacher pack's embedded-KV block index.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"go-bitcoin/internal/encoding"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrChecksumMismatch = fmt.Errorf("storage: checksum mismatch")

const metaKey = "__meta__"

// Store wraps a single bbolt database file holding one or more named
// buckets, each meta-stamped with an 8-byte magic and a u32 format version.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureBucket creates the bucket (and its meta record) if absent, and
// verifies the stored magic/version if present.
func (s *Store) EnsureBucket(name string, magic [8]byte, version uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		existing := b.Get([]byte(metaKey))
		if existing == nil {
			meta := make([]byte, 12)
			copy(meta[0:8], magic[:])
			binary.LittleEndian.PutUint32(meta[8:12], version)
			return b.Put([]byte(metaKey), meta)
		}
		if len(existing) != 12 {
			return fmt.Errorf("storage: bucket %s meta corrupt", name)
		}
		var gotMagic [8]byte
		copy(gotMagic[:], existing[0:8])
		if gotMagic != magic {
			return fmt.Errorf("storage: bucket %s wrong magic", name)
		}
		gotVersion := binary.LittleEndian.Uint32(existing[8:12])
		if gotVersion != version {
			return fmt.Errorf("storage: bucket %s version %d, want %d", name, gotVersion, version)
		}
		return nil
	})
}

// PutFramed stores payload under key as an EncodeFrame record: a
// CompactSize length of payload, the payload, and a trailing SHA-256d
// checksum over the length prefix and payload.
func (s *Store) PutFramed(bucket, key string, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: no such bucket %s", bucket)
		}
		return b.Put([]byte(key), frame)
	})
}

// GetFramed retrieves and verifies a record stored by PutFramed. Returns
// (nil, false, nil) if the key is absent.
func (s *Store) GetFramed(bucket, key string) ([]byte, bool, error) {
	var payload []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: no such bucket %s", bucket)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		decoded, err := DecodeFrame(v)
		if err != nil {
			return err
		}
		payload = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, found, nil
}

// ForEach walks every non-meta key in bucket, passing the verified payload.
func (s *Store) ForEach(bucket string, fn func(key string, payload []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: no such bucket %s", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			if string(k) == metaKey {
				return nil
			}
			payload, err := DecodeFrame(v)
			if err != nil {
				return err
			}
			return fn(string(k), payload)
		})
	})
}

// EncodeFrame appends a SHA-256d checksum of the CompactSize-length-prefixed
// payload, matching the wire envelope's length+checksum framing.
func EncodeFrame(payload []byte) ([]byte, error) {
	length, err := encoding.EncodeVarInt(uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("storage: encode frame: %w", err)
	}
	body := append(length, payload...)
	checksum := encoding.Hash256(body)
	return append(body, checksum...), nil
}

// DecodeFrame reverses EncodeFrame and verifies the checksum.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < 32 {
		return nil, fmt.Errorf("storage: frame too short: %d bytes", len(frame))
	}
	body := frame[:len(frame)-32]
	checksum := frame[len(frame)-32:]
	expected := encoding.Hash256(body)
	if !bytes.Equal(checksum, expected) {
		return nil, ErrChecksumMismatch
	}

	r := bytes.NewReader(body)
	length, err := encoding.ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("storage: decode frame length: %w", err)
	}
	remaining := make([]byte, r.Len())
	if _, err := io.ReadFull(r, remaining); err != nil {
		return nil, fmt.Errorf("storage: decode frame body: %w", err)
	}
	if uint64(len(remaining)) != length {
		return nil, fmt.Errorf("storage: frame length %d, got %d bytes", length, len(remaining))
	}
	return remaining, nil
}
