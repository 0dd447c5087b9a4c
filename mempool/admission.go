package mempool

import (
	"github.com/pkg/errors"

	"github.com/blockstack-inc/stacks-mempool/logger"
)

var admissionLog, _ = logger.Get(logger.SubsystemTags.MPOL)

// Submit is the one entry point for new transactions. It runs entirely
// inside a single write transaction: resolve the tip's height, optionally
// run the admission oracle, detect a same-(address,nonce) conflict, decide
// accept / replace-by-fee / replace-across-fork / reject, and atomically
// update the Bloom filter, the pager, and the main row. A dropped-tx event
// fires only after the transaction has committed successfully.
func (m *Mempool) Submit(tip Tip, txBytes []byte, runChecks bool) error {
	parsed, err := m.codec.Decode(txBytes)
	if err != nil {
		return errors.Wrap(ErrDeserializationFailure, err.Error())
	}

	w, err := m.store.beginWrite()
	if err != nil {
		return err
	}
	defer w.rollbackUnlessClosed()

	height, err := m.resolveHeight(tip)
	if err != nil {
		return err
	}

	if runChecks {
		if err := m.oracle.WillAdmit(tip, parsed, uint64(len(txBytes))); err != nil {
			var reason RejectionReason
			if asReason, ok := err.(RejectionReason); ok {
				reason = asReason
			} else {
				reason = RejectionReason{Code: "oracle_rejected", Message: err.Error()}
			}
			return newAdmissionRejectedError(reason)
		}
	}

	priorRow, priorReason, err := m.resolveConflict(w, parsed, tip)
	if err != nil {
		if errors.Is(err, ErrConflictingNonceInMempool) {
			admissionLog.Debugf("rejected tx %x: conflicting nonce in mempool", parsed.Txid())
		}
		return err
	}

	if err := windowAdvanceIfNeeded(w, m.bloom, height, m.policy.WindowDepth); err != nil {
		return err
	}

	if priorRow != nil {
		tombstoned, err := isTombstoned(w, txidOf(priorRow.Txid))
		if err != nil {
			return err
		}
		if !tombstoned {
			if err := m.bloom.remove(w, txidOf(priorRow.Txid)); err != nil {
				return err
			}
		}
		if err := m.store.deleteRow(w, priorRow.Txid); err != nil {
			return err
		}
	}

	evictedTxid, err := saturationEvictIfNeeded(w, m.bloom, height, m.policy.WindowDepth, m.policy.BloomTxs)
	if err != nil {
		return err
	}

	newTxid := parsed.Txid()

	newRow := &row{
		Txid:            newTxid[:],
		OriginAddress:   parsed.OriginAddress(),
		OriginNonce:     parsed.OriginNonce(),
		SponsorAddress:  parsed.SponsorAddress(),
		SponsorNonce:    parsed.SponsorNonce(),
		TxFee:           parsed.Fee(),
		Length:          uint64(len(txBytes)),
		ConsensusHash:   tip.ConsensusHash[:],
		BlockHeaderHash: tip.BlockHeaderHash[:],
		Height:          height,
		AcceptTime:      nowUnix(),
		TxBytes:         txBytes,
	}
	// The pager and bloom rows are only inserted once the main row exists,
	// since mempool_pager carries a foreign key back to mempool_txs.
	if err := m.store.insertRow(w, newRow); err != nil {
		return err
	}
	if err := m.bloom.insert(w, newTxid); err != nil {
		return err
	}
	if err := m.pager.upsert(w, newTxid); err != nil {
		return err
	}

	if err := w.commit(); err != nil {
		return err
	}

	if priorRow != nil && m.observer != nil {
		m.observer.OnDropped([][32]byte{txidOf(priorRow.Txid)}, priorReason)
	}
	if evictedTxid != nil && m.observer != nil {
		m.observer.OnDropped([][32]byte{*evictedTxid}, DropReasonTooExpensive)
	}

	if priorRow != nil {
		admissionLog.Infof("accepted tx %x at height %d, displaced %x (%s)", newTxid, height, priorRow.Txid, priorReason)
	} else {
		admissionLog.Debugf("accepted tx %x at height %d", newTxid, height)
	}
	return nil
}

// resolveHeight implements the "sentinel first burnchain consensus hash
// resolves to height 0" rule from the submission contract.
func (m *Mempool) resolveHeight(tip Tip) (uint64, error) {
	if height, ok := m.chain.BlockHeight(tip); ok {
		return height, nil
	}
	if tip.ConsensusHash == FirstBurnchainConsensusHash {
		return 0, nil
	}
	return 0, ErrNoSuchChainTip
}

// resolveConflict looks up an existing row conflicting on (origin_address,
// origin_nonce), falling back to (sponsor_address, sponsor_nonce), and
// decides whether the new submission may proceed as a replacement.
func (m *Mempool) resolveConflict(w *writeTx, parsed ParsedTx, newTip Tip) (*row, DropReason, error) {
	prior, err := m.store.getConflict(w, parsed.OriginAddress(), parsed.OriginNonce(), roleOrigin)
	if err != nil {
		return nil, 0, err
	}
	if prior == nil {
		prior, err = m.store.getConflict(w, parsed.SponsorAddress(), parsed.SponsorNonce(), roleSponsor)
		if err != nil {
			return nil, 0, err
		}
	}
	if prior == nil {
		return nil, 0, nil
	}

	if parsed.Fee() > prior.TxFee {
		return prior, DropReasonReplaceByFee, nil
	}

	priorTip := Tip{}
	copy(priorTip.ConsensusHash[:], prior.ConsensusHash)
	copy(priorTip.BlockHeaderHash[:], prior.BlockHeaderHash)

	if sameForkTest(m.chain, priorTip, newTip) == differentFork {
		return prior, DropReasonAcrossFork, nil
	}

	return nil, 0, ErrConflictingNonceInMempool
}

func txidOf(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}
