package mempool

import "testing"

func TestGarbageCollectDeletesOldRows(t *testing.T) {
	mp, chain, _ := openTestMempool(t)

	tipOld := Tip{}
	tipOld.ConsensusHash[0] = 1
	chain.setHeight(tipOld, 10)

	tipNew := Tip{}
	tipNew.ConsensusHash[0] = 2
	chain.setHeight(tipNew, 500)

	oldTx := fakeParsedTx{originAddress: "old", originNonce: 0, sponsorAddress: "old", sponsorNonce: 0, fee: 1}
	newTx := fakeParsedTx{originAddress: "new", originNonce: 0, sponsorAddress: "new", sponsorNonce: 0, fee: 1}

	if err := mp.Submit(tipOld, encodeFake(t, oldTx), true); err != nil {
		t.Fatalf("submit old tx failed: %s", err)
	}
	if err := mp.Submit(tipNew, encodeFake(t, newTx), true); err != nil {
		t.Fatalf("submit new tx failed: %s", err)
	}

	deleted, err := mp.GarbageCollect(100)
	if err != nil {
		t.Fatalf("garbage collect failed: %s", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly 1 row collected, got %d", deleted)
	}

	hasOld, _ := mp.HasTx(oldTx.Txid())
	hasNew, _ := mp.HasTx(newTx.Txid())
	if hasOld {
		t.Fatalf("expected old tx to be collected")
	}
	if !hasNew {
		t.Fatalf("expected new tx to remain")
	}
}
