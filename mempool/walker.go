package mempool

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/blockstack-inc/stacks-mempool/logger"
)

var walkLog, _ = logger.Get(logger.SubsystemTags.WALK)

// candidateOrderBySponsorNonceAsc names the tie-break the walker uses when
// picking the row for a given origin: "ORDER BY sponsor_nonce ASC LIMIT 1",
// implemented exactly as specified even though "highest fee among valid
// nonces" would be an equally plausible reading. Kept as a named constant
// so a fee-rate-ordered variant is a one-line change later.
const candidateOrderBySponsorNonceAsc = "sponsor_nonce ASC"

// WalkCallback is invoked once per origin address with the single
// candidate row chosen for it. Returning stop=true ends the walk early.
type WalkCallback func(txBytes []byte, txid [32]byte) (stop bool)

// IterateCandidates yields at most one transaction per origin address per
// pass, never a transaction whose origin_nonce doesn't match the origin
// account's current nonce as reported by the chainstate at tip. It
// returns the number of origins considered.
func (m *Mempool) IterateCandidates(tip Tip, tipHeight uint64, settings WalkSettings, callback WalkCallback) (uint64, error) {
	minHeight := int64(-1)
	if tipHeight > MaxAge {
		minHeight = int64(tipHeight - MaxAge - 1)
	}

	deadline := time.Time{}
	if settings.MaxWalkTime > 0 {
		deadline = time.Now().Add(settings.MaxWalkTime)
	}

	var considered uint64
	var lastFee uint64
	haveLastFee := false
	lastAddress := ""

	for {
		if pastDeadline(deadline) {
			walkLog.Debugf("walk deadline exceeded after considering %d origins", considered)
			return considered, nil
		}

		origins, err := m.nextOriginPage(minHeight, int64(tipHeight), settings.MinTxFee, haveLastFee, lastFee, lastAddress)
		if err != nil {
			return considered, err
		}
		if len(origins) == 0 {
			return considered, nil
		}

		for _, o := range origins {
			if pastDeadline(deadline) {
				return considered, nil
			}

			considered++
			lastFee = o.fee
			lastAddress = o.address
			haveLastFee = true

			accountNonce := m.chain.AccountNonce(tip, o.address)
			r, err := m.candidateForOrigin(o.address, minHeight, int64(tipHeight), settings.MinTxFee, accountNonce)
			if err != nil {
				return considered, err
			}
			if r == nil {
				continue
			}

			if callback(r.TxBytes, txidOf(r.Txid)) {
				return considered, nil
			}
		}

		if len(origins) < candidateWalkerPageSize {
			return considered, nil
		}
	}
}

func pastDeadline(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

type originCandidate struct {
	address string
	fee     uint64
}

// nextOriginPage paginates distinct origin addresses by descending tx_fee,
// resuming after the last (fee, address) pair seen on the previous page.
func (m *Mempool) nextOriginPage(minHeight, tipHeight int64, minTxFee uint64, haveCursor bool, lastFee uint64, lastAddress string) ([]originCandidate, error) {
	type candidateRow struct {
		OriginAddress string `db:"origin_address"`
		TxFee         uint64 `db:"tx_fee"`
	}
	var rows []candidateRow

	query := `
		SELECT DISTINCT origin_address, MAX(tx_fee) as tx_fee FROM mempool_txs
		WHERE height > ? AND height <= ? AND tx_fee >= ?
	`
	args := []interface{}{minHeight, tipHeight, minTxFee}
	query += ` GROUP BY origin_address`
	if haveCursor {
		query += ` HAVING (MAX(tx_fee) < ? OR (MAX(tx_fee) = ? AND origin_address > ?))`
		args = append(args, lastFee, lastFee, lastAddress)
	}
	query += ` ORDER BY tx_fee DESC, origin_address ASC LIMIT ?`
	args = append(args, candidateWalkerPageSize)

	if err := m.store.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to paginate origin addresses")
	}

	out := make([]originCandidate, len(rows))
	for i, r := range rows {
		out[i] = originCandidate{address: r.OriginAddress, fee: r.TxFee}
	}
	return out, nil
}

// candidateForOrigin fetches the single eligible row for an origin address,
// matched against the account's current nonce, tie-broken by
// candidateOrderBySponsorNonceAsc.
func (m *Mempool) candidateForOrigin(address string, minHeight, tipHeight int64, minTxFee uint64, accountNonce uint64) (*row, error) {
	var r row
	query := `
		SELECT * FROM mempool_txs
		WHERE origin_address = ? AND height > ? AND height <= ?
		  AND origin_nonce = ? AND tx_fee >= ?
		ORDER BY ` + candidateOrderBySponsorNonceAsc + `
		LIMIT 1
	`
	err := m.store.db.Get(&r, query, address, minHeight, tipHeight, accountNonce, minTxFee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch candidate for origin")
	}
	return &r, nil
}
