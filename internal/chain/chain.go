// Package chain is the Block-Chain Store: a header DAG indexed by hash,
// with fork-choice by cumulative proof-of-work tracked against a single
// "main tip" pointer.
package chain

import (
	"bytes"
	"fmt"
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/storage"
	"math/big"
	"sort"
	"sync"
)

type AdmitResult int

const (
	Admitted AdmitResult = iota
	Duplicate
)

func (r AdmitResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "admitted"
}

// DefaultLatestWindow is the default M for Latest() and locator construction.
const DefaultLatestWindow = 20

// medianTimePastWindow is how many preceding headers on a branch are
// consulted for the median-time-past timestamp rule.
const medianTimePastWindow = 11

type entry struct {
	header  block.Block
	hash    [32]byte
	height  uint64
	work    *big.Int // this header's own contribution
	cumWork *big.Int // cumulative from genesis through this header
	parent  *entry
}

// Store is the header DAG. Safe for concurrent use: the broadcasting
// goroutine is expected to be the sole mutator, but reads may come from
// elsewhere (e.g. a status endpoint), so access is guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	byHash  map[[32]byte]*entry
	tip     *entry
	genesis [32]byte
}

// NewStore seeds the store with a genesis header. The genesis header's
// own `previous` field is never checked against byHash.
func NewStore(genesis block.Block) (*Store, error) {
	hash, err := genesis.Hash()
	if err != nil {
		return nil, fmt.Errorf("chain: hash genesis: %w", err)
	}
	var h [32]byte
	copy(h[:], hash)

	e := &entry{
		header:  genesis,
		hash:    h,
		height:  0,
		work:    genesis.Work(),
		cumWork: genesis.Work(),
	}
	s := &Store{
		byHash:  map[[32]byte]*entry{h: e},
		tip:     e,
		genesis: h,
	}
	return s, nil
}

// AppendHeader validates and admits a single candidate header.
func (s *Store) AppendHeader(h block.Block) (AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(h)
}

// AppendHeaders admits a batch in order, returning how many were newly
// admitted (duplicates don't count, but don't abort the batch either).
func (s *Store) AppendHeaders(headers []block.Block) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admitted := 0
	for i, h := range headers {
		result, err := s.appendLocked(h)
		if err != nil {
			return admitted, fmt.Errorf("chain: header %d/%d rejected: %w", i, len(headers), err)
		}
		if result == Admitted {
			admitted++
		}
	}
	return admitted, nil
}

func (s *Store) appendLocked(h block.Block) (AdmitResult, error) {
	hashBytes, err := h.Hash()
	if err != nil {
		return 0, fmt.Errorf("chain: hash header: %w", err)
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	if _, ok := s.byHash[hash]; ok {
		return Duplicate, nil
	}

	parent, ok := s.byHash[h.PrevBlock]
	if !ok {
		return 0, ErrUnknownPrevious
	}

	if !h.CheckProofOfWork() {
		return 0, ErrBadProofOfWork
	}

	if h.TimeStamp <= medianTimePast(parent) {
		return 0, ErrBadTimestamp
	}

	e := &entry{
		header:  h,
		hash:    hash,
		height:  parent.height + 1,
		work:    h.Work(),
		cumWork: new(big.Int).Add(parent.cumWork, h.Work()),
		parent:  parent,
	}
	s.byHash[hash] = e

	if e.cumWork.Cmp(s.tip.cumWork) > 0 {
		s.tip = e
	}

	return Admitted, nil
}

// medianTimePast computes the median timestamp of up to medianTimePastWindow
// headers ending at and including e, walking back via parent pointers.
func medianTimePast(e *entry) uint32 {
	times := make([]uint32, 0, medianTimePastWindow)
	cur := e
	for cur != nil && len(times) < medianTimePastWindow {
		times = append(times, cur.header.TimeStamp)
		cur = cur.parent
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

func (s *Store) Tip() block.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip.header
}

func (s *Store) TipHash() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip.hash
}

func (s *Store) TipHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip.height
}

func (s *Store) GetByHash(hash [32]byte) (block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHash[hash]
	if !ok {
		return block.Block{}, ErrNotFound
	}
	return e.header, nil
}

// GetByHeight returns the header at height on the current main chain.
func (s *Store) GetByHeight(height uint64) (block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height > s.tip.height {
		return block.Block{}, ErrNotFound
	}
	cur := s.tip
	for cur.height > height {
		cur = cur.parent
	}
	return cur.header, nil
}

// Latest returns the most recent M main-chain headers, tip first.
func (s *Store) Latest(m int) []block.Block {
	if m <= 0 {
		m = DefaultLatestWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]block.Block, 0, m)
	cur := s.tip
	for cur != nil && len(out) < m {
		out = append(out, cur.header)
		cur = cur.parent
	}
	return out
}

// LocatorHashes builds a GetHeaders locator: dense near the tip, then
// exponentially sparser (offsets 1, 2, 4, 8, ...), always ending at genesis.
func (s *Store) LocatorHashes() [][32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locator [][32]byte
	cur := s.tip
	step := uint64(1)
	for {
		locator = append(locator, cur.hash)
		if cur.hash == s.genesis {
			return locator
		}
		var steps uint64
		for steps < step && cur.parent != nil {
			cur = cur.parent
			steps++
		}
		if cur.parent == nil && cur.hash != s.genesis {
			// shouldn't happen: every chain terminates at genesis
			locator = append(locator, s.genesis)
			return locator
		}
		if len(locator) >= 10 {
			step *= 2
		}
	}
}

// Snapshot encodes every main-chain header, tip-to-genesis order reversed
// to genesis-first, for persistence via internal/storage.
func (s *Store) Snapshot() ([]block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	headers := make([]block.Block, 0, s.tip.height+1)
	cur := s.tip
	for cur != nil {
		headers = append(headers, cur.header)
		cur = cur.parent
	}
	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
	return headers, nil
}

// ChainMagic and ChainFormatVersion stamp the bbolt bucket backing chain
// persistence, per the node's persisted-state format.
var ChainMagic = [8]byte{'S', 'P', 'V', 'C', 'H', 'A', 'I', 'N'}

const ChainFormatVersion = 1

const HeadersBucket = "headers"

// SaveSnapshot persists every main-chain header into the given storage
// handle, each framed (length-prefix + trailing SHA-256d checksum) and
// keyed by height.
func (s *Store) SaveSnapshot(st *storage.Store) error {
	if err := st.EnsureBucket(HeadersBucket, ChainMagic, ChainFormatVersion); err != nil {
		return err
	}
	headers, err := s.Snapshot()
	if err != nil {
		return err
	}
	for height, h := range headers {
		encoded, err := h.Serialize()
		if err != nil {
			return fmt.Errorf("chain: serialize header %d: %w", height, err)
		}
		key := fmt.Sprintf("%020d", height)
		if err := st.PutFramed(HeadersBucket, key, encoded); err != nil {
			return fmt.Errorf("chain: persist header %d: %w", height, err)
		}
	}
	return nil
}

// LoadSnapshot rebuilds a Store from a previously saved snapshot. The first
// record (height 0) seeds the genesis header.
func LoadSnapshot(st *storage.Store) (*Store, error) {
	if err := st.EnsureBucket(HeadersBucket, ChainMagic, ChainFormatVersion); err != nil {
		return nil, err
	}

	type keyed struct {
		key     string
		payload []byte
	}
	var records []keyed
	err := st.ForEach(HeadersBucket, func(key string, payload []byte) error {
		records = append(records, keyed{key: key, payload: payload})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].key < records[j].key })

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	genesisHeader, err := block.ParseBlock(bytes.NewReader(records[0].payload))
	if err != nil {
		return nil, fmt.Errorf("chain: parse genesis: %w", err)
	}
	store, err := NewStore(genesisHeader)
	if err != nil {
		return nil, err
	}

	rest := make([]block.Block, 0, len(records)-1)
	for _, rec := range records[1:] {
		h, err := block.ParseBlock(bytes.NewReader(rec.payload))
		if err != nil {
			return nil, fmt.Errorf("chain: parse header %s: %w", rec.key, err)
		}
		rest = append(rest, h)
	}
	if _, err := store.AppendHeaders(rest); err != nil {
		return nil, err
	}
	return store, nil
}
