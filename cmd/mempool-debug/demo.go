package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/blockstack-inc/stacks-mempool/mempool"
)

// demoChainstate is a minimal, in-memory Chainstate stand-in: every tip is
// known at the height it was registered at, and account nonces are tracked
// in a flat map. It exists only to exercise the mempool package end to end
// from this CLI; a real node supplies its own chainstate.
type demoChainstate struct {
	heights map[mempool.Tip]uint64
	nonces  map[string]uint64
}

func newDemoChainstate() *demoChainstate {
	return &demoChainstate{
		heights: make(map[mempool.Tip]uint64),
		nonces:  make(map[string]uint64),
	}
}

func (c *demoChainstate) registerTip(tip mempool.Tip, height uint64) {
	c.heights[tip] = height
}

func (c *demoChainstate) BlockHeight(tip mempool.Tip) (uint64, bool) {
	h, ok := c.heights[tip]
	return h, ok
}

func (c *demoChainstate) AncestorHeight(tip, other mempool.Tip) (uint64, bool) {
	if tip == other {
		return c.heights[tip], true
	}
	return 0, false
}

func (c *demoChainstate) AccountNonce(tip mempool.Tip, address string) uint64 {
	return c.nonces[address]
}

// demoOracle admits everything; a real node wires in script validation and
// cost estimation here.
type demoOracle struct{}

func (demoOracle) WillAdmit(tip mempool.Tip, tx mempool.ParsedTx, size uint64) error {
	return nil
}

// demoTx is the toy transaction shape this CLI submits: enough fields to
// exercise admission, replacement, and the walker, nothing more.
type demoTx struct {
	originAddress  string
	originNonce    uint64
	sponsorAddress string
	sponsorNonce   uint64
	fee            uint64
}

func (t demoTx) Txid() [32]byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s:%d:%s:%d:%d", t.originAddress, t.originNonce, t.sponsorAddress, t.sponsorNonce, t.fee)
	return sha256.Sum256(buf.Bytes())
}

func (t demoTx) OriginAddress() string  { return t.originAddress }
func (t demoTx) OriginNonce() uint64    { return t.originNonce }
func (t demoTx) SponsorAddress() string { return t.sponsorAddress }
func (t demoTx) SponsorNonce() uint64   { return t.sponsorNonce }
func (t demoTx) Fee() uint64            { return t.fee }

// demoCodec encodes a demoTx as a fixed-width binary record. Round-trip
// only: origin address and sponsor address are padded/truncated to 32
// bytes, so Decode(Encode(tx)) recovers the same fields for addresses of
// at most 32 bytes with no NUL byte; longer addresses come back truncated.
type demoCodec struct{}

const demoAddressWidth = 32

func (demoCodec) Encode(tx mempool.ParsedTx) ([]byte, error) {
	var buf bytes.Buffer
	writeFixedString(&buf, tx.OriginAddress())
	binary.Write(&buf, binary.BigEndian, tx.OriginNonce())
	writeFixedString(&buf, tx.SponsorAddress())
	binary.Write(&buf, binary.BigEndian, tx.SponsorNonce())
	binary.Write(&buf, binary.BigEndian, tx.Fee())
	return buf.Bytes(), nil
}

func (demoCodec) Decode(raw []byte) (mempool.ParsedTx, error) {
	const recordSize = demoAddressWidth + 8 + demoAddressWidth + 8 + 8
	if len(raw) != recordSize {
		return nil, fmt.Errorf("demo tx record must be %d bytes, got %d", recordSize, len(raw))
	}
	r := bytes.NewReader(raw)

	origin := readFixedString(r)
	var originNonce uint64
	binary.Read(r, binary.BigEndian, &originNonce)

	sponsor := readFixedString(r)
	var sponsorNonce uint64
	binary.Read(r, binary.BigEndian, &sponsorNonce)

	var fee uint64
	binary.Read(r, binary.BigEndian, &fee)

	return demoTx{
		originAddress:  origin,
		originNonce:    originNonce,
		sponsorAddress: sponsor,
		sponsorNonce:   sponsorNonce,
		fee:            fee,
	}, nil
}

func writeFixedString(buf *bytes.Buffer, s string) {
	var field [demoAddressWidth]byte
	copy(field[:], s)
	buf.Write(field[:])
}

func readFixedString(r *bytes.Reader) string {
	var field [demoAddressWidth]byte
	r.Read(field[:])
	n := bytes.IndexByte(field[:], 0)
	if n < 0 {
		n = len(field)
	}
	return string(field[:n])
}
