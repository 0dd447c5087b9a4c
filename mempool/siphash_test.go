package mempool

import "testing"

func TestSipHash24Deterministic(t *testing.T) {
	var seed [seedSize]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	var txid [32]byte
	for i := range txid {
		txid[i] = byte(255 - i)
	}

	tag1 := tagFromSeedAndTxid(seed, txid)
	tag2 := tagFromSeedAndTxid(seed, txid)
	if tag1 != tag2 {
		t.Fatalf("tag is not deterministic: %x != %x", tag1, tag2)
	}
	if len(tag1) != 8 {
		t.Fatalf("expected an 8-byte tag, got %d bytes", len(tag1))
	}
}

func TestSipHash24DiffersOnSeedOrTxid(t *testing.T) {
	var seedA, seedB [seedSize]byte
	seedB[0] = 1
	var txid [32]byte

	tagA := tagFromSeedAndTxid(seedA, txid)
	tagB := tagFromSeedAndTxid(seedB, txid)
	if tagA == tagB {
		t.Fatalf("expected different seeds to produce different tags")
	}

	var txidB [32]byte
	txidB[0] = 1
	tagC := tagFromSeedAndTxid(seedA, txidB)
	if tagA == tagC {
		t.Fatalf("expected different txids to produce different tags")
	}
}

func TestSipHash24HandlesShortAndUnalignedInput(t *testing.T) {
	for n := 0; n < 20; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		// must not panic for any input length, aligned or not
		_ = sipHash24(data)
	}
}
