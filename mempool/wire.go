package mempool

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire tags for the MemPoolSyncData tagged union.
const (
	syncDataTagTags        byte = 0x01
	syncDataTagBloomFilter byte = 0x02
)

// SyncDigest is the tagged union a peer receives in response to a digest
// request: either a list of SipHash-2-4 tags or a plain Bloom filter
// snapshot, chosen by MakeSyncDigest based on how many recent
// non-tombstoned rows exist.
type SyncDigest struct {
	isTags bool

	seed [seedSize]byte
	tags []txTag

	filter plainBloomFilter
}

// EncodeSyncDigest serializes a SyncDigest to the wire tagged-union format.
func EncodeSyncDigest(d SyncDigest) []byte {
	var buf bytes.Buffer
	if d.isTags {
		buf.WriteByte(syncDataTagTags)
		buf.Write(d.seed[:])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(d.tags)))
		buf.Write(lenBuf[:])
		for _, t := range d.tags {
			buf.Write(t[:])
		}
		return buf.Bytes()
	}

	buf.WriteByte(syncDataTagBloomFilter)
	var mBuf, kBuf [4]byte
	binary.BigEndian.PutUint32(mBuf[:], d.filter.m)
	binary.BigEndian.PutUint32(kBuf[:], d.filter.k)
	buf.Write(mBuf[:])
	buf.Write(kBuf[:])
	buf.Write(d.filter.seed[:])
	buf.Write(d.filter.bits)
	return buf.Bytes()
}

// DecodeSyncDigest parses the wire tagged-union format produced by a peer.
func DecodeSyncDigest(b []byte) (SyncDigest, error) {
	if len(b) < 1 {
		return SyncDigest{}, errors.Wrap(ErrDeserializationFailure, "empty sync digest")
	}

	switch b[0] {
	case syncDataTagTags:
		rest := b[1:]
		if len(rest) < seedSize+4 {
			return SyncDigest{}, errors.Wrap(ErrDeserializationFailure, "truncated tags digest header")
		}
		var d SyncDigest
		d.isTags = true
		copy(d.seed[:], rest[:seedSize])
		rest = rest[seedSize:]
		count := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) != uint64(count)*8 {
			return SyncDigest{}, errors.Wrap(ErrDeserializationFailure, "tags digest length mismatch")
		}
		d.tags = make([]txTag, count)
		for i := uint32(0); i < count; i++ {
			copy(d.tags[i][:], rest[i*8:i*8+8])
		}
		return d, nil

	case syncDataTagBloomFilter:
		rest := b[1:]
		if len(rest) < 8+seedSize {
			return SyncDigest{}, errors.Wrap(ErrDeserializationFailure, "truncated bloom filter digest header")
		}
		m := binary.BigEndian.Uint32(rest[:4])
		k := binary.BigEndian.Uint32(rest[4:8])
		rest = rest[8:]
		var seed [seedSize]byte
		copy(seed[:], rest[:seedSize])
		bits := rest[seedSize:]

		return SyncDigest{
			isTags: false,
			filter: plainBloomFilter{m: m, k: k, seed: seed, bits: bits},
		}, nil

	default:
		return SyncDigest{}, errors.Wrapf(ErrDeserializationFailure, "unknown sync digest tag 0x%02x", b[0])
	}
}

// contains tests a txid against whichever variant the digest carries:
// exact SipHash tag membership for Tags, approximate bit-array membership
// for BloomFilter.
func (d SyncDigest) contains(txid [32]byte) bool {
	if d.isTags {
		tag := tagFromSeedAndTxid(d.seed, txid)
		for _, t := range d.tags {
			if t == tag {
				return true
			}
		}
		return false
	}
	return d.filter.contains(txid)
}

// encodeStreamedTx length-prefixes a serialized transaction for the
// streamed sync reply: a big-endian u32 length followed by the bytes.
func encodeStreamedTx(buf *bytes.Buffer, txBytes []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(txBytes)))
	buf.Write(lenBuf[:])
	buf.Write(txBytes)
}
