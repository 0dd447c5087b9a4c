package mempool

import (
	"database/sql"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/pkg/errors"
)

// bloomDimensions computes the number of cells (m) and hash functions (k)
// for a counting Bloom filter sized for n items at false-positive rate p,
// using the standard formulas m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2).
func bloomDimensions(n uint32, p float64) (m uint32, k uint32) {
	nf := float64(n)
	mf := -nf * math.Log(p) / (math.Ln2 * math.Ln2)
	kf := (mf / nf) * math.Ln2
	m = uint32(math.Ceil(mf))
	k = uint32(math.Ceil(kf))
	if k < 1 {
		k = 1
	}
	return m, k
}

// bloomCounter is the SQL-backed counting Bloom filter. Its cells live in
// mempool_bloom_cells; every mutation runs as ordinary parameterized SQL
// statements inside the caller's write transaction, so the filter is
// mutated exactly once, atomically with the row change that motivated it,
// with no separate handle to move in and out of the transaction.
type bloomCounter struct {
	m, k uint32
	seed [seedSize]byte
}

func newBloomCounter(policy Policy, seed [seedSize]byte) *bloomCounter {
	m, k := bloomDimensions(policy.BloomTxs, policy.BloomErrorRate)
	return &bloomCounter{m: m, k: k, seed: seed}
}

// hashIndexes derives the k cell indexes for txid using Kirsch-Mitzenmacher
// double hashing over two independent blake2b digests of (seed || txid):
// h_i(x) = (h1(x) + i*h2(x)) mod m.
func (b *bloomCounter) hashIndexes(txid [32]byte) []uint32 {
	h1 := blake2bSum(b.seed[:], txid[:], []byte{0x01})
	h2 := blake2bSum(b.seed[:], txid[:], []byte{0x02})
	v1 := binary.BigEndian.Uint64(h1[:8])
	v2 := binary.BigEndian.Uint64(h2[:8])

	idxs := make([]uint32, b.k)
	for i := uint32(0); i < b.k; i++ {
		combined := v1 + uint64(i)*v2
		idxs[i] = uint32(combined % uint64(b.m))
	}
	return idxs
}

func blake2bSum(parts ...[]byte) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// insert increments every cell txid hashes to. Cells are created lazily at
// zero and upserted, so a freshly-migrated database needs no seeding pass.
func (b *bloomCounter) insert(w *writeTx, txid [32]byte) error {
	for _, idx := range b.hashIndexes(txid) {
		_, err := w.exec(`
			INSERT INTO mempool_bloom_cells (cell_index, counter) VALUES (?, 1)
			ON CONFLICT (cell_index) DO UPDATE SET counter = counter + 1
		`, idx)
		if err != nil {
			return errors.Wrap(err, "failed to increment bloom cell")
		}
	}
	return nil
}

// remove decrements every cell txid hashes to. remove must only ever be
// called with a txid known (via index state) to be currently inserted;
// a decrement that would underflow a cell is an invariant violation, not a
// recoverable outcome, and aborts the transaction.
func (b *bloomCounter) remove(w *writeTx, txid [32]byte) error {
	for _, idx := range b.hashIndexes(txid) {
		var counter int64
		err := w.get(&counter, `SELECT counter FROM mempool_bloom_cells WHERE cell_index = ?`, idx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "failed to read bloom cell")
		}
		if counter <= 0 {
			return errBloomUnderflow
		}
		_, err = w.exec(`UPDATE mempool_bloom_cells SET counter = counter - 1 WHERE cell_index = ?`, idx)
		if err != nil {
			return errors.Wrap(err, "failed to decrement bloom cell")
		}
	}
	return nil
}

// contains is an approximate membership test: every cell txid hashes to
// must have a nonzero counter.
func (b *bloomCounter) contains(w *writeTx, txid [32]byte) (bool, error) {
	for _, idx := range b.hashIndexes(txid) {
		var counter int64
		err := w.get(&counter, `SELECT counter FROM mempool_bloom_cells WHERE cell_index = ?`, idx)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "failed to read bloom cell")
		}
		if counter == 0 {
			return false, nil
		}
	}
	return true, nil
}

// containsRead is contains for read-only callers (digest emission, sync
// reconciliation) that are not holding a write transaction.
func (b *bloomCounter) containsRead(s *Store, txid [32]byte) (bool, error) {
	for _, idx := range b.hashIndexes(txid) {
		var counter int64
		err := s.db.Get(&counter, `SELECT counter FROM mempool_bloom_cells WHERE cell_index = ?`, idx)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "failed to read bloom cell")
		}
		if counter == 0 {
			return false, nil
		}
	}
	return true, nil
}

// toPlainFilter exports a snapshot suitable for the wire: parameters (m, k,
// seed) plus a plain bit array where bit i is set iff cell i is nonzero.
func (b *bloomCounter) toPlainFilter(s *Store) (plainBloomFilter, error) {
	bits := make([]byte, (b.m+7)/8)

	rows, err := s.db.Query(`SELECT cell_index, counter FROM mempool_bloom_cells WHERE counter > 0`)
	if err != nil {
		return plainBloomFilter{}, errors.Wrap(err, "failed to export bloom filter")
	}
	defer rows.Close()

	for rows.Next() {
		var idx uint32
		var counter int64
		if err := rows.Scan(&idx, &counter); err != nil {
			return plainBloomFilter{}, errors.Wrap(err, "failed to scan bloom cell")
		}
		bits[idx/8] |= 1 << (idx % 8)
	}
	if err := rows.Err(); err != nil {
		return plainBloomFilter{}, errors.Wrap(err, "failed to iterate bloom cells")
	}

	return plainBloomFilter{
		m:    b.m,
		k:    b.k,
		seed: b.seed,
		bits: bits,
	}, nil
}

// plainBloomFilter is a non-counting snapshot of a bloomCounter: enough to
// test membership and to round-trip over the wire, without per-cell
// counters.
type plainBloomFilter struct {
	m, k uint32
	seed [seedSize]byte
	bits []byte
}

func (f plainBloomFilter) contains(txid [32]byte) bool {
	bc := &bloomCounter{m: f.m, k: f.k, seed: f.seed}
	for _, idx := range bc.hashIndexes(txid) {
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}
