package mempool

import "encoding/binary"

// SipHash-2-4 (2 compression rounds, 4 finalization rounds), the one
// hand-implemented primitive in this module: nothing in the reachable
// dependency surface provides it. The key is fixed at zero, matching the
// upstream behavior this module's wire format must interoperate with
// (SipHasher::new() leaves both 64-bit key halves zeroed before the seed
// and txid bytes are written into it).

const (
	sipC0 uint64 = 0x736f6d6570736575
	sipC1 uint64 = 0x646f72616e646f6d
	sipC2 uint64 = 0x6c7967656e657261
	sipC3 uint64 = 0x7465646279746573
)

func sipRound(v0, v1, v2, v3 *uint64) {
	*v0 += *v1
	*v1 = rotl64(*v1, 13)
	*v1 ^= *v0
	*v0 = rotl64(*v0, 32)

	*v2 += *v3
	*v3 = rotl64(*v3, 16)
	*v3 ^= *v2

	*v0 += *v3
	*v3 = rotl64(*v3, 21)
	*v3 ^= *v0

	*v2 += *v1
	*v1 = rotl64(*v1, 17)
	*v1 ^= *v2
	*v2 = rotl64(*v2, 32)
}

func rotl64(x uint64, b uint) uint64 {
	return (x << b) | (x >> (64 - b))
}

// sipHash24 computes SipHash-2-4 of data with a zero 128-bit key.
func sipHash24(data []byte) uint64 {
	v0 := sipC0
	v1 := sipC1
	v2 := sipC2
	v3 := sipC3

	length := len(data)
	end := length - (length % 8)

	for i := 0; i < end; i += 8 {
		m := binary.LittleEndian.Uint64(data[i : i+8])
		v3 ^= m
		sipRound(&v0, &v1, &v2, &v3)
		sipRound(&v0, &v1, &v2, &v3)
		v0 ^= m
	}

	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(length)
	m := binary.LittleEndian.Uint64(last[:])
	v3 ^= m
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	v0 ^= m

	v2 ^= 0xff
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)

	return v0 ^ v1 ^ v2 ^ v3
}

// txTag is an 8-byte SipHash-2-4 tag over (seed || txid), used as a
// compact probabilistic identifier for a transaction in gossip digests.
type txTag [8]byte

// tagFromSeedAndTxid computes tag = SipHash24(seed || txid), matching the
// upstream wire representation: the 64-bit digest encoded big-endian.
func tagFromSeedAndTxid(seed [seedSize]byte, txid [32]byte) txTag {
	msg := make([]byte, 0, seedSize+32)
	msg = append(msg, seed[:]...)
	msg = append(msg, txid[:]...)

	digest := sipHash24(msg)
	var tag txTag
	binary.BigEndian.PutUint64(tag[:], digest)
	return tag
}
