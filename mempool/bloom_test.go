package mempool

import "testing"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %s", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBloomCounterInsertContainsRemove(t *testing.T) {
	store := openTestStore(t)
	bloom := newBloomCounter(DefaultPolicy(), store.Seed())

	var txid [32]byte
	txid[0] = 0x42

	w, err := store.beginWrite()
	if err != nil {
		t.Fatalf("failed to begin write: %s", err)
	}
	defer w.rollbackUnlessClosed()

	if err := bloom.insert(w, txid); err != nil {
		t.Fatalf("insert failed: %s", err)
	}

	present, err := bloom.contains(w, txid)
	if err != nil {
		t.Fatalf("contains failed: %s", err)
	}
	if !present {
		t.Fatalf("expected txid to be present after insert")
	}

	if err := bloom.remove(w, txid); err != nil {
		t.Fatalf("remove failed: %s", err)
	}

	present, err = bloom.contains(w, txid)
	if err != nil {
		t.Fatalf("contains failed: %s", err)
	}
	if present {
		t.Fatalf("expected txid to be absent after remove")
	}

	if err := w.commit(); err != nil {
		t.Fatalf("commit failed: %s", err)
	}
}

func TestBloomCounterRemoveUnderflowIsAnError(t *testing.T) {
	store := openTestStore(t)
	bloom := newBloomCounter(DefaultPolicy(), store.Seed())

	var txid [32]byte
	txid[0] = 0x7

	w, err := store.beginWrite()
	if err != nil {
		t.Fatalf("failed to begin write: %s", err)
	}
	defer w.rollbackUnlessClosed()

	err = bloom.remove(w, txid)
	if err != errBloomUnderflow {
		t.Fatalf("expected errBloomUnderflow, got %v", err)
	}
}

func TestBloomDimensionsAreSane(t *testing.T) {
	m, k := bloomDimensions(BloomTxs, BloomErrorRate)
	if m == 0 || k == 0 {
		t.Fatalf("expected nonzero m and k, got m=%d k=%d", m, k)
	}
	if m < uint32(BloomTxs) {
		t.Fatalf("expected m (%d) to be larger than the item capacity (%d)", m, BloomTxs)
	}
}

func TestPlainFilterExportRoundTrip(t *testing.T) {
	store := openTestStore(t)
	bloom := newBloomCounter(DefaultPolicy(), store.Seed())

	var present, absent [32]byte
	present[0] = 0xAA
	absent[0] = 0xBB

	w, err := store.beginWrite()
	if err != nil {
		t.Fatalf("failed to begin write: %s", err)
	}
	if err := bloom.insert(w, present); err != nil {
		t.Fatalf("insert failed: %s", err)
	}
	if err := w.commit(); err != nil {
		t.Fatalf("commit failed: %s", err)
	}

	filter, err := bloom.toPlainFilter(store)
	if err != nil {
		t.Fatalf("export failed: %s", err)
	}
	if !filter.contains(present) {
		t.Fatalf("expected exported filter to contain the inserted txid")
	}
	if filter.contains(absent) {
		t.Fatalf("did not expect exported filter to contain an unrelated txid (false positive is possible but vanishingly unlikely for a single item)")
	}
}
