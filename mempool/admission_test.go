package mempool

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"
)

// fakeChainstate is the test harness's stand-in for the external chainstate
// collaborator: heights are assigned by the test as tips are introduced,
// and ancestry is whatever the test wires up directly.
type fakeChainstate struct {
	heights       map[Tip]uint64
	ancestors     map[[2]Tip]bool
	accountNonces map[string]uint64
}

func newFakeChainstate() *fakeChainstate {
	return &fakeChainstate{
		heights:       make(map[Tip]uint64),
		ancestors:     make(map[[2]Tip]bool),
		accountNonces: make(map[string]uint64),
	}
}

func (c *fakeChainstate) setHeight(tip Tip, height uint64) {
	c.heights[tip] = height
}

func (c *fakeChainstate) setAncestor(tip, other Tip) {
	c.ancestors[[2]Tip{tip, other}] = true
}

func (c *fakeChainstate) BlockHeight(tip Tip) (uint64, bool) {
	h, ok := c.heights[tip]
	return h, ok
}

func (c *fakeChainstate) AncestorHeight(tip, other Tip) (uint64, bool) {
	if tip == other {
		return c.heights[tip], true
	}
	if c.ancestors[[2]Tip{tip, other}] {
		return c.heights[other], true
	}
	if c.ancestors[[2]Tip{other, tip}] {
		return c.heights[tip], true
	}
	return 0, false
}

func (c *fakeChainstate) AccountNonce(tip Tip, address string) uint64 {
	return c.accountNonces[address]
}

type fakeOracle struct {
	reject bool
}

func (o fakeOracle) WillAdmit(tip Tip, tx ParsedTx, size uint64) error {
	if o.reject {
		return RejectionReason{Code: "fake_reject", Message: "test oracle rejected"}
	}
	return nil
}

type fakeParsedTx struct {
	originAddress  string
	originNonce    uint64
	sponsorAddress string
	sponsorNonce   uint64
	fee            uint64
}

func (t fakeParsedTx) Txid() [32]byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s:%d:%s:%d:%d", t.originAddress, t.originNonce, t.sponsorAddress, t.sponsorNonce, t.fee)
	return sha256.Sum256(buf.Bytes())
}
func (t fakeParsedTx) OriginAddress() string  { return t.originAddress }
func (t fakeParsedTx) OriginNonce() uint64    { return t.originNonce }
func (t fakeParsedTx) SponsorAddress() string { return t.sponsorAddress }
func (t fakeParsedTx) SponsorNonce() uint64   { return t.sponsorNonce }
func (t fakeParsedTx) Fee() uint64            { return t.fee }

const fakeAddressWidth = 32

type fakeCodec struct{}

func (fakeCodec) Encode(tx ParsedTx) ([]byte, error) {
	var buf bytes.Buffer
	writeFixed(&buf, tx.OriginAddress())
	binary.Write(&buf, binary.BigEndian, tx.OriginNonce())
	writeFixed(&buf, tx.SponsorAddress())
	binary.Write(&buf, binary.BigEndian, tx.SponsorNonce())
	binary.Write(&buf, binary.BigEndian, tx.Fee())
	return buf.Bytes(), nil
}

func (fakeCodec) Decode(raw []byte) (ParsedTx, error) {
	r := bytes.NewReader(raw)
	origin := readFixed(r)
	var originNonce uint64
	binary.Read(r, binary.BigEndian, &originNonce)
	sponsor := readFixed(r)
	var sponsorNonce uint64
	binary.Read(r, binary.BigEndian, &sponsorNonce)
	var fee uint64
	binary.Read(r, binary.BigEndian, &fee)
	return fakeParsedTx{origin, originNonce, sponsor, sponsorNonce, fee}, nil
}

func writeFixed(buf *bytes.Buffer, s string) {
	var field [fakeAddressWidth]byte
	copy(field[:], s)
	buf.Write(field[:])
}

func readFixed(r *bytes.Reader) string {
	var field [fakeAddressWidth]byte
	r.Read(field[:])
	n := bytes.IndexByte(field[:], 0)
	if n < 0 {
		n = len(field)
	}
	return string(field[:n])
}

type recordingObserver struct {
	drops []struct {
		txids  [][32]byte
		reason DropReason
	}
}

func (o *recordingObserver) OnDropped(txids [][32]byte, reason DropReason) {
	o.drops = append(o.drops, struct {
		txids  [][32]byte
		reason DropReason
	}{txids, reason})
}

func openTestMempool(t *testing.T) (*Mempool, *fakeChainstate, *recordingObserver) {
	t.Helper()
	chain := newFakeChainstate()
	observer := &recordingObserver{}
	mp, err := Open(":memory:", DefaultPolicy(), chain, fakeOracle{}, fakeCodec{}, observer)
	if err != nil {
		t.Fatalf("failed to open test mempool: %s", err)
	}
	t.Cleanup(func() { mp.Close() })
	return mp, chain, observer
}

func encodeFake(t *testing.T, tx fakeParsedTx) []byte {
	t.Helper()
	raw, err := fakeCodec{}.Encode(tx)
	if err != nil {
		t.Fatalf("encode failed: %s", err)
	}
	return raw
}

func TestSubmitAcceptsFirstTransaction(t *testing.T) {
	mp, chain, _ := openTestMempool(t)
	tip := Tip{}
	tip.ConsensusHash[0] = 1
	chain.setHeight(tip, 100)

	tx := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 123}
	raw := encodeFake(t, tx)

	if err := mp.Submit(tip, raw, true); err != nil {
		t.Fatalf("submit failed: %s", err)
	}

	has, err := mp.HasTx(tx.Txid())
	if err != nil {
		t.Fatalf("has_tx failed: %s", err)
	}
	if !has {
		t.Fatalf("expected transaction to be present after submit")
	}
}

func TestSubmitRBFAccepted(t *testing.T) {
	mp, chain, observer := openTestMempool(t)
	tip := Tip{}
	tip.ConsensusHash[0] = 1
	chain.setHeight(tip, 100)

	t1 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 123}
	t2 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 124}

	if err := mp.Submit(tip, encodeFake(t, t1), true); err != nil {
		t.Fatalf("submit t1 failed: %s", err)
	}
	if err := mp.Submit(tip, encodeFake(t, t2), true); err != nil {
		t.Fatalf("submit t2 failed: %s", err)
	}

	has1, _ := mp.HasTx(t1.Txid())
	has2, _ := mp.HasTx(t2.Txid())
	if has1 {
		t.Fatalf("expected t1 to be gone after RBF")
	}
	if !has2 {
		t.Fatalf("expected t2 to be present after RBF")
	}

	if len(observer.drops) != 1 || observer.drops[0].reason != DropReasonReplaceByFee {
		t.Fatalf("expected exactly one ReplaceByFee drop event, got %+v", observer.drops)
	}
}

func TestSubmitRejectsLowerFeeConflict(t *testing.T) {
	mp, chain, _ := openTestMempool(t)
	tip := Tip{}
	tip.ConsensusHash[0] = 1
	chain.setHeight(tip, 100)

	t1 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 123}
	t2 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 100}

	if err := mp.Submit(tip, encodeFake(t, t1), true); err != nil {
		t.Fatalf("submit t1 failed: %s", err)
	}
	err := mp.Submit(tip, encodeFake(t, t2), true)
	if err != ErrConflictingNonceInMempool {
		t.Fatalf("expected ErrConflictingNonceInMempool, got %v", err)
	}

	has1, _ := mp.HasTx(t1.Txid())
	if !has1 {
		t.Fatalf("expected t1 to remain live after a rejected lower-fee conflict")
	}
}

func TestSubmitAcrossForkReplace(t *testing.T) {
	mp, chain, observer := openTestMempool(t)

	tipA := Tip{}
	tipA.ConsensusHash[0] = 1
	chain.setHeight(tipA, 100)

	tipB := Tip{}
	tipB.ConsensusHash[0] = 2
	chain.setHeight(tipB, 100)
	// tipA and tipB are deliberately left without an ancestor relation:
	// they are on different forks.

	t1 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 123}
	t2 := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 1}

	if err := mp.Submit(tipA, encodeFake(t, t1), true); err != nil {
		t.Fatalf("submit t1 failed: %s", err)
	}
	if err := mp.Submit(tipB, encodeFake(t, t2), true); err != nil {
		t.Fatalf("submit t2 failed: %s", err)
	}

	has1, _ := mp.HasTx(t1.Txid())
	has2, _ := mp.HasTx(t2.Txid())
	if has1 {
		t.Fatalf("expected t1 to be dropped on cross-fork replace")
	}
	if !has2 {
		t.Fatalf("expected t2 to be live after cross-fork replace")
	}

	if len(observer.drops) != 1 || observer.drops[0].reason != DropReasonAcrossFork {
		t.Fatalf("expected exactly one AcrossFork drop event, got %+v", observer.drops)
	}
}

func TestSubmitUnknownTipFails(t *testing.T) {
	mp, _, _ := openTestMempool(t)
	tip := Tip{}
	tip.ConsensusHash[0] = 99

	tx := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 1}
	err := mp.Submit(tip, encodeFake(t, tx), true)
	if err != ErrNoSuchChainTip {
		t.Fatalf("expected ErrNoSuchChainTip, got %v", err)
	}
}

func TestSubmitSentinelTipResolvesToHeightZero(t *testing.T) {
	mp, _, _ := openTestMempool(t)
	tip := Tip{} // zero value matches FirstBurnchainConsensusHash

	tx := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 1}
	if err := mp.Submit(tip, encodeFake(t, tx), true); err != nil {
		t.Fatalf("expected sentinel tip to resolve to height 0, got error: %s", err)
	}
}

func TestSubmitPropagatesOracleRejection(t *testing.T) {
	chain := newFakeChainstate()
	mp, err := Open(":memory:", DefaultPolicy(), chain, fakeOracle{reject: true}, fakeCodec{}, nil)
	if err != nil {
		t.Fatalf("failed to open mempool: %s", err)
	}
	defer mp.Close()

	tip := Tip{}
	chain.setHeight(tip, 0)

	tx := fakeParsedTx{originAddress: "alice", originNonce: 0, sponsorAddress: "alice", sponsorNonce: 0, fee: 1}
	err = mp.Submit(tip, encodeFake(t, tx), true)
	if err == nil {
		t.Fatalf("expected the oracle's rejection to propagate")
	}
	if _, ok := err.(*AdmissionRejectedError); !ok {
		t.Fatalf("expected an *AdmissionRejectedError, got %T: %v", err, err)
	}
}
