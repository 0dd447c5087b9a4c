// Package mempool implements a persistent, relational transaction mempool:
// a durable admission-and-replacement index, a windowed counting Bloom
// filter for compact gossip digests, a randomized pager for resumable
// streaming, and a fee-descending candidate walker for block assembly.
package mempool

import "time"

// Mempool ties the persistent index, the Bloom filter, and the pager to the
// external collaborators (chainstate, admission oracle, transaction codec,
// event observer) that the store itself never implements.
type Mempool struct {
	store    *Store
	bloom    *bloomCounter
	pager    *pager
	policy   Policy
	chain    Chainstate
	oracle   AdmissionOracle
	codec    TransactionCodec
	observer EventObserver
}

// Open opens (or creates) the mempool database at path and wires it to the
// given collaborators. chain and oracle and codec are required; observer
// may be nil if the caller doesn't need dropped-tx notifications.
func Open(path string, policy Policy, chain Chainstate, oracle AdmissionOracle, codec TransactionCodec, observer EventObserver) (*Mempool, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	seed := store.Seed()
	return &Mempool{
		store:    store,
		bloom:    newBloomCounter(policy, seed),
		pager:    newPager(seed),
		policy:   policy,
		chain:    chain,
		oracle:   oracle,
		codec:    codec,
		observer: observer,
	}, nil
}

// Close releases the underlying database handle.
func (m *Mempool) Close() error {
	return m.store.Close()
}

// HasTx reports whether txid is present in the index, regardless of
// whether it is tombstoned.
func (m *Mempool) HasTx(txid [32]byte) (bool, error) {
	r, err := m.store.getByTxid(txid)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// GetTx retrieves the raw serialized bytes of a stored transaction.
func (m *Mempool) GetTx(txid [32]byte) ([]byte, bool, error) {
	r, err := m.store.getByTxid(txid)
	if err != nil {
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r.TxBytes, true, nil
}

// GetNumTxAtBlock returns the number of rows accepted under the given tip.
func (m *Mempool) GetNumTxAtBlock(tip Tip) (int, error) {
	var count int
	err := m.store.db.Get(&count, `
		SELECT COUNT(1) FROM mempool_txs WHERE consensus_hash = ? AND block_header_hash = ?
	`, tip.ConsensusHash[:], tip.BlockHeaderHash[:])
	if err != nil {
		return 0, err
	}
	return count, nil
}

func nowUnix() int64 {
	return time.Now().Unix()
}
