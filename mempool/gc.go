package mempool

import "github.com/pkg/errors"

// GarbageCollect deletes every row with height < minHeight. Cascading
// foreign keys clear their tombstones and pager entries; the Bloom filter
// itself is left untouched. Rows at heights the window advanced through one
// height at a time were already removed from the filter by pruning; a row
// whose height was skipped by a jump of more than one height was never
// pruned, and its cells stay set after it is collected here.
func (m *Mempool) GarbageCollect(minHeight uint64) (int64, error) {
	w, err := m.store.beginWrite()
	if err != nil {
		return 0, err
	}
	defer w.rollbackUnlessClosed()

	result, err := w.exec(`DELETE FROM mempool_txs WHERE height < ?`, minHeight)
	if err != nil {
		return 0, errors.Wrap(err, "failed to garbage collect rows")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to determine rows collected")
	}

	if err := w.commit(); err != nil {
		return 0, err
	}

	log.Debugf("garbage collected %d rows below height %d", deleted, minHeight)
	return deleted, nil
}
