package mempool

import "github.com/pkg/errors"

// tombstone marks txid as no longer part of the advertised recent set. The
// row itself is untouched; tombstoning only ever happens alongside a Bloom
// filter removal (window prune or saturation eviction) so that I1 holds:
// every live txid is in the Bloom filter or the tombstone set, never both.
func tombstoneInsert(w *writeTx, txid [32]byte) error {
	_, err := w.exec(`INSERT OR IGNORE INTO mempool_tombstones (txid) VALUES (?)`, txid[:])
	if err != nil {
		return errors.Wrap(err, "failed to insert tombstone")
	}
	return nil
}

func isTombstoned(w *writeTx, txid [32]byte) (bool, error) {
	var count int
	err := w.get(&count, `SELECT COUNT(1) FROM mempool_tombstones WHERE txid = ?`, txid[:])
	if err != nil {
		return false, errors.Wrap(err, "failed to check tombstone state")
	}
	return count > 0, nil
}
