package mempool

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/blockstack-inc/stacks-mempool/logger"
)

var syncLog, _ = logger.Get(logger.SubsystemTags.SYNC)

// MakeSyncDigest produces a compact summary of the recent non-tombstoned
// rows for a peer: a Tags digest when the recent set is small enough that
// a SipHash tag per txid is cheaper to compute and transmit than exporting
// the Bloom filter, a BloomFilter digest otherwise.
func (m *Mempool) MakeSyncDigest(tipHeight uint64) (SyncDigest, error) {
	recent, err := m.recentNonTombstoned(tipHeight)
	if err != nil {
		return SyncDigest{}, err
	}

	seed := m.store.Seed()
	if uint32(len(recent)) < m.policy.MaxTxTags {
		tags := make([]txTag, len(recent))
		for i, r := range recent {
			tags[i] = tagFromSeedAndTxid(seed, txidOf(r.Txid))
		}
		syncLog.Debugf("emitting tags digest with %d entries", len(tags))
		return SyncDigest{isTags: true, seed: seed, tags: tags}, nil
	}

	filter, err := m.bloom.toPlainFilter(m.store)
	if err != nil {
		return SyncDigest{}, err
	}
	syncLog.Debugf("emitting bloom filter digest for %d recent rows", len(recent))
	return SyncDigest{isTags: false, filter: filter}, nil
}

func (m *Mempool) recentNonTombstoned(tipHeight uint64) ([]recentNonTombstonedTxid, error) {
	minHeight := int64(tipHeight) - int64(m.policy.WindowDepth)
	var rows []recentNonTombstonedTxid
	err := m.store.db.Select(&rows, `
		SELECT t.txid, t.height, t.tx_fee FROM mempool_txs t
		LEFT JOIN mempool_tombstones ts ON ts.txid = t.txid
		WHERE t.height > ? AND t.height <= ? AND ts.txid IS NULL
	`, minHeight, tipHeight)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent non-tombstoned rows")
	}
	return rows, nil
}

// FindNextMissing returns up to maxTxs serialized transactions the
// requester is missing: recent (relative to requesterHeight), non-
// tombstoned rows whose hashed_txid sorts after cursor, excluding anything
// the supplied digest already reports as present. At most maxScan rows are
// examined, bounding work regardless of how sparse the "missing" set is.
func (m *Mempool) FindNextMissing(digest SyncDigest, requesterHeight uint64, cursor [32]byte, maxTxs, maxScan int) ([][]byte, [32]byte, error) {
	minHeight := int64(requesterHeight) - int64(m.policy.WindowDepth)

	type candidateRow struct {
		Txid       []byte `db:"txid"`
		TxBytes    []byte `db:"tx_bytes"`
		HashedTxid []byte `db:"hashed_txid"`
	}
	var rows []candidateRow
	err := m.store.db.Select(&rows, `
		SELECT t.txid, t.tx_bytes, p.hashed_txid FROM mempool_txs t
		JOIN mempool_pager p ON p.txid = t.txid
		LEFT JOIN mempool_tombstones ts ON ts.txid = t.txid
		WHERE t.height > ? AND p.hashed_txid > ? AND ts.txid IS NULL
		ORDER BY p.hashed_txid ASC
		LIMIT ?
	`, minHeight, cursor[:], maxScan)
	if err != nil {
		return nil, cursor, errors.Wrap(err, "failed to scan for missing transactions")
	}

	out := make([][]byte, 0, maxTxs)
	newCursor := cursor
	for _, r := range rows {
		copy(newCursor[:], r.HashedTxid)
		if digest.contains(txidOf(r.Txid)) {
			continue
		}
		out = append(out, r.TxBytes)
		if len(out) >= maxTxs {
			break
		}
	}
	return out, newCursor, nil
}

// StreamState carries everything stream needs across calls: it is opaque
// to the caller and resumable across partial writes (e.g. a writer that
// blocks mid-stream can be resumed later with the same state).
type StreamState struct {
	digest     SyncDigest
	height     uint64
	cursor     [32]byte
	served     uint64
	maxToServe uint64
	buf        bytes.Buffer
}

// NewStreamState begins a streaming session against digest for a peer
// claiming requesterHeight, willing to serve at most maxToServe
// transactions in total.
func NewStreamState(digest SyncDigest, requesterHeight uint64, maxToServe uint64) *StreamState {
	return &StreamState{digest: digest, height: requesterHeight, maxToServe: maxToServe}
}

// Stream repeatedly finds the next missing transaction, serializes it into
// an internal buffer, and copies buffered bytes to writer until byteBudget
// is exhausted or no more transactions remain.
func (m *Mempool) Stream(state *StreamState, writer io.Writer, byteBudget int) error {
	written := 0
	for written < byteBudget {
		if state.buf.Len() == 0 {
			if state.maxToServe > 0 && state.served >= state.maxToServe {
				return nil
			}

			txs, newCursor, err := m.FindNextMissing(state.digest, state.height, state.cursor, 1, maxScanDefault)
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				return nil
			}

			state.cursor = newCursor
			state.served++
			encodeStreamedTx(&state.buf, txs[0])
		}

		// Only the bytes the writer accepted leave the buffer; the rest are
		// written first on the next call with the same state.
		n, err := writer.Write(state.buf.Bytes())
		state.buf.Next(n)
		written += n
		if err != nil {
			return errors.Wrap(err, "failed to write streamed transaction")
		}
	}
	return nil
}

const maxScanDefault = 10000
