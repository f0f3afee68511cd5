package chain

import (
	"go-bitcoin/internal/block"
	"testing"
)

// easyBits is a compact target covering almost the entire 256-bit hash
// space: CheckProofOfWork passes for essentially any nonce. hardBits
// targets roughly half that space, so Work() per header is roughly double
// easyBits's — used to build a short branch that outweighs a longer one on
// cumulative work without requiring real mainnet-difficulty mining.
// impossibleBits targets 1, which no real hash will ever satisfy, for
// exercising the PoW-rejection path.
const (
	easyBits       uint32 = 0x20ffffff
	hardBits       uint32 = 0x207fffff
	impossibleBits uint32 = 0x03000001
)

func mustHash(t *testing.T, h block.Block) [32]byte {
	raw, err := h.Hash()
	if err != nil {
		t.Fatalf("hash header: %v", err)
	}
	var out [32]byte
	copy(out[:], raw)
	return out
}

// child builds a header on top of parent and mines it (incrementing the
// nonce) until it satisfies bits's target, starting from startNonce. A few
// hundred tries suffice even at hardBits's roughly 50% per-try odds.
func child(t *testing.T, parent block.Block, timestamp uint32, bits uint32, startNonce uint32) block.Block {
	prevHash := mustHash(t, parent)
	for nonce := startNonce; nonce < startNonce+100_000; nonce++ {
		h := block.NewBlock(1, prevHash, [32]byte{}, timestamp, bits, nonce, nil)
		if h.CheckProofOfWork() {
			return h
		}
	}
	t.Fatalf("could not mine a header satisfying bits=0x%08x within the try budget", bits)
	return block.Block{}
}

func newGenesis(t *testing.T) block.Block {
	return block.NewBlock(1, [32]byte{}, [32]byte{}, 1_600_000_000, easyBits, 0, nil)
}

func newStoreForTest(t *testing.T) (*Store, block.Block) {
	genesis := newGenesis(t)
	s, err := NewStore(genesis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, genesis
}

func TestAppendHeaderAdmitsLinkedChild(t *testing.T) {
	s, genesis := newStoreForTest(t)

	h1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	result, err := s.AppendHeader(h1)
	if err != nil {
		t.Fatalf("AppendHeader: %v", err)
	}
	if result != Admitted {
		t.Fatalf("expected Admitted, got %v", result)
	}
	if s.TipHeight() != 1 {
		t.Fatalf("expected tip height 1, got %d", s.TipHeight())
	}

	wantHash := mustHash(t, h1)
	if s.TipHash() != wantHash {
		t.Fatalf("tip hash mismatch")
	}
}

func TestAppendHeaderDuplicateIsNotAnError(t *testing.T) {
	s, genesis := newStoreForTest(t)

	h1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	if _, err := s.AppendHeader(h1); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	result, err := s.AppendHeader(h1)
	if err != nil {
		t.Fatalf("re-admit: %v", err)
	}
	if result != Duplicate {
		t.Fatalf("expected Duplicate, got %v", result)
	}
	if s.TipHeight() != 1 {
		t.Fatalf("duplicate admission must not move the tip, got height %d", s.TipHeight())
	}
}

func TestAppendHeaderRejectsUnknownPrevious(t *testing.T) {
	s, genesis := newStoreForTest(t)

	orphan := block.NewBlock(1, [32]byte{0xAA}, [32]byte{}, genesis.TimeStamp+600, easyBits, 7, nil)
	if _, err := s.AppendHeader(orphan); err != ErrUnknownPrevious {
		t.Fatalf("expected ErrUnknownPrevious, got %v", err)
	}
}

func TestAppendHeaderRejectsBadProofOfWork(t *testing.T) {
	s, genesis := newStoreForTest(t)

	// Built directly rather than via child()'s mining loop: impossibleBits's
	// target is far too small for any real hash to satisfy, which is the
	// point of this test.
	prevHash := mustHash(t, genesis)
	bad := block.NewBlock(1, prevHash, [32]byte{}, genesis.TimeStamp+600, impossibleBits, 1, nil)
	if _, err := s.AppendHeader(bad); err != ErrBadProofOfWork {
		t.Fatalf("expected ErrBadProofOfWork, got %v", err)
	}
}

func TestAppendHeaderRejectsNonIncreasingTimestamp(t *testing.T) {
	s, genesis := newStoreForTest(t)

	notLater := child(t, genesis, genesis.TimeStamp, easyBits, 1)
	if _, err := s.AppendHeader(notLater); err != ErrBadTimestamp {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}
}

func TestAppendHeadersCountsOnlyNewAdmissions(t *testing.T) {
	s, genesis := newStoreForTest(t)

	h1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	h2 := child(t, h1, genesis.TimeStamp+1200, easyBits, 2)

	count, err := s.AppendHeaders([]block.Block{h1, h2, h1})
	if err != nil {
		t.Fatalf("AppendHeaders: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 newly admitted headers, got %d", count)
	}
}

// TestForkChoicePrefersGreaterCumulativeWork is scenario 4 from the node's
// testable properties: a competing branch with strictly greater cumulative
// work becomes the new tip, and a height on the losing branch is no longer
// reachable via GetByHeight.
func TestForkChoicePrefersGreaterCumulativeWork(t *testing.T) {
	s, genesis := newStoreForTest(t)

	// Branch A: three easy-bits headers off genesis.
	a1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	a2 := child(t, a1, genesis.TimeStamp+1200, easyBits, 2)
	a3 := child(t, a2, genesis.TimeStamp+1800, easyBits, 3)
	for _, h := range []block.Block{a1, a2, a3} {
		if _, err := s.AppendHeader(h); err != nil {
			t.Fatalf("admit branch A: %v", err)
		}
	}
	if s.TipHeight() != 3 {
		t.Fatalf("expected branch A tip height 3, got %d", s.TipHeight())
	}

	// Branch B: two headers off genesis, but with roughly double the work
	// per header, so two headers outweigh branch A's three easier ones.
	b1 := child(t, genesis, genesis.TimeStamp+600, hardBits, 101)
	b2 := child(t, b1, genesis.TimeStamp+1200, hardBits, 102)
	for _, h := range []block.Block{b1, b2} {
		if _, err := s.AppendHeader(h); err != nil {
			t.Fatalf("admit branch B: %v", err)
		}
	}

	wantTip := mustHash(t, b2)
	if s.TipHash() != wantTip {
		t.Fatalf("expected tip to switch to branch B's head")
	}

	got, err := s.GetByHeight(2)
	if err != nil {
		t.Fatalf("GetByHeight(2): %v", err)
	}
	gotHash := mustHash(t, got)
	if gotHash != wantTip {
		t.Fatalf("GetByHeight(2) should return branch B's head, got a different header")
	}
}

func TestForkChoiceTieKeepsIncumbent(t *testing.T) {
	s, genesis := newStoreForTest(t)

	a1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	if _, err := s.AppendHeader(a1); err != nil {
		t.Fatalf("admit a1: %v", err)
	}

	// b1 has identical bits and therefore identical work contribution, but
	// a different nonce so it's a distinct header hash, competing for the
	// same height with exactly equal cumulative work.
	b1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 999)
	if _, err := s.AppendHeader(b1); err != nil {
		t.Fatalf("admit b1: %v", err)
	}

	wantTip := mustHash(t, a1)
	if s.TipHash() != wantTip {
		t.Fatalf("equal-work tie should keep the incumbent tip")
	}
}

func TestLocatorHashesEndsAtGenesis(t *testing.T) {
	s, genesis := newStoreForTest(t)
	locator := s.LocatorHashes()
	if len(locator) != 1 {
		t.Fatalf("expected single-entry locator for an empty chain, got %d entries", len(locator))
	}
	if locator[0] != mustHash(t, genesis) {
		t.Fatalf("locator's only entry should be genesis")
	}
}

func TestLatestReturnsTipFirst(t *testing.T) {
	s, genesis := newStoreForTest(t)
	h1 := child(t, genesis, genesis.TimeStamp+600, easyBits, 1)
	h2 := child(t, h1, genesis.TimeStamp+1200, easyBits, 2)
	if _, err := s.AppendHeaders([]block.Block{h1, h2}); err != nil {
		t.Fatalf("AppendHeaders: %v", err)
	}

	latest := s.Latest(2)
	if len(latest) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(latest))
	}
	if mustHash(t, latest[0]) != mustHash(t, h2) {
		t.Fatalf("Latest should return the tip first")
	}
}
