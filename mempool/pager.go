package mempool

import "github.com/pkg/errors"

// pager assigns every live txid a node-local pseudo-random key,
// hashed_txid = H256(seed || txid), so that ordered scans over it return a
// deterministic-but-peer-specific permutation: stable across calls on one
// node, resumable via the last-seen hashed_txid, and resistant to an
// adversary picking which transactions sort first.
type pager struct {
	seed [seedSize]byte
}

func newPager(seed [seedSize]byte) *pager {
	return &pager{seed: seed}
}

func (p *pager) hash(txid [32]byte) [32]byte {
	return blake2bSum(p.seed[:], txid[:])
}

// upsert records (txid, hashed_txid) for a newly-inserted row.
func (p *pager) upsert(w *writeTx, txid [32]byte) error {
	hashed := p.hash(txid)
	_, err := w.exec(`
		INSERT INTO mempool_pager (txid, hashed_txid) VALUES (?, ?)
		ON CONFLICT (txid) DO UPDATE SET hashed_txid = excluded.hashed_txid
	`, txid[:], hashed[:])
	if err != nil {
		return errors.Wrap(err, "failed to upsert pager row")
	}
	return nil
}
