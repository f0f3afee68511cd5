package storage

import (
	"path/filepath"
	"testing"
)

var testMagic = [8]byte{'T', 'E', 'S', 'T', 'M', 'A', 'G', 'C'}

func openTestStore(t *testing.T) *Store {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello framed record")
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestDecodeFrameDetectsChecksumMismatch(t *testing.T) {
	frame, err := EncodeFrame([]byte("some payload"))
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	corrupted := append([]byte{}, frame...)
	corrupted[0] ^= 0xFF

	if _, err := DecodeFrame(corrupted); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestPutGetFramedRoundTrip(t *testing.T) {
	st := openTestStore(t)
	if err := st.EnsureBucket("widgets", testMagic, 1); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	if err := st.PutFramed("widgets", "a", []byte("payload-a")); err != nil {
		t.Fatalf("PutFramed: %v", err)
	}

	got, found, err := st.GetFramed("widgets", "a")
	if err != nil {
		t.Fatalf("GetFramed: %v", err)
	}
	if !found {
		t.Fatalf("expected key to be found")
	}
	if string(got) != "payload-a" {
		t.Fatalf("got %q, want payload-a", got)
	}

	_, found, err = st.GetFramed("widgets", "missing")
	if err != nil {
		t.Fatalf("GetFramed(missing): %v", err)
	}
	if found {
		t.Fatalf("expected missing key to report not found")
	}
}

func TestEnsureBucketRejectsWrongMagic(t *testing.T) {
	st := openTestStore(t)
	if err := st.EnsureBucket("widgets", testMagic, 1); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	otherMagic := [8]byte{'O', 'T', 'H', 'E', 'R', 'M', 'A', 'G'}
	if err := st.EnsureBucket("widgets", otherMagic, 1); err == nil {
		t.Fatalf("expected an error re-opening the bucket with a different magic")
	}
}

func TestEnsureBucketRejectsWrongVersion(t *testing.T) {
	st := openTestStore(t)
	if err := st.EnsureBucket("widgets", testMagic, 1); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if err := st.EnsureBucket("widgets", testMagic, 2); err == nil {
		t.Fatalf("expected an error re-opening the bucket with a different version")
	}
}

func TestForEachSkipsMetaAndVisitsEveryRecord(t *testing.T) {
	st := openTestStore(t)
	if err := st.EnsureBucket("widgets", testMagic, 1); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if err := st.PutFramed("widgets", key, []byte("value-"+key)); err != nil {
			t.Fatalf("PutFramed(%s): %v", key, err)
		}
	}

	seen := map[string]string{}
	err := st.ForEach("widgets", func(key string, payload []byte) error {
		seen[key] = string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 records (no meta record), got %d", len(seen))
	}
	if seen["a"] != "value-a" {
		t.Fatalf("unexpected value for key a: %q", seen["a"])
	}
}
