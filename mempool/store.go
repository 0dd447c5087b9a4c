package mempool

import (
	"crypto/rand"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/blockstack-inc/stacks-mempool/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.STOR)

const (
	busyTimeoutMillis = 5000
	seedSize          = 32
)

// row is the primary-row shape stored in mempool_txs, mirroring the column
// layout in migrations/0001_init.up.sql exactly.
type row struct {
	Txid            []byte `db:"txid"`
	OriginAddress   string `db:"origin_address"`
	OriginNonce     uint64 `db:"origin_nonce"`
	SponsorAddress  string `db:"sponsor_address"`
	SponsorNonce    uint64 `db:"sponsor_nonce"`
	TxFee           uint64 `db:"tx_fee"`
	Length          uint64 `db:"length"`
	ConsensusHash   []byte `db:"consensus_hash"`
	BlockHeaderHash []byte `db:"block_header_hash"`
	Height          uint64 `db:"height"`
	AcceptTime      int64  `db:"accept_time"`
	TxBytes         []byte `db:"tx_bytes"`
}

// role distinguishes which side of a transaction a given (address, nonce)
// conflict lookup is checking.
type role int

const (
	roleOrigin role = iota
	roleSponsor
)

// Store owns the relational persistent index, its migrations, and the
// per-instance seed shared by the Bloom filter and the pager.
type Store struct {
	db   *sqlx.DB
	path string
	seed [seedSize]byte
}

// OpenStore opens (creating if necessary) the mempool database at path,
// applies pending migrations, and loads or generates the instance seed.
func OpenStore(path string) (*Store, error) {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	dsn := path + separator + "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=" + strconv.Itoa(busyTimeoutMillis)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mempool database")
	}
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.loadOrInitSeed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Seed returns the per-instance random seed used by the Bloom filter and
// the pager.
func (s *Store) Seed() [seedSize]byte {
	return s.seed
}

func (s *Store) loadOrInitSeed() error {
	var seed []byte
	err := s.db.Get(&seed, `SELECT seed FROM mempool_meta WHERE id = 0`)
	if err == nil {
		copy(s.seed[:], seed)
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "failed to load mempool seed")
	}

	newSeed := make([]byte, seedSize)
	if _, err := rand.Read(newSeed); err != nil {
		return errors.Wrap(err, "failed to generate mempool seed")
	}
	_, err = s.db.Exec(`INSERT INTO mempool_meta (id, seed) VALUES (0, ?)`, newSeed)
	if err != nil {
		return errors.Wrap(err, "failed to persist mempool seed")
	}
	copy(s.seed[:], newSeed)
	return nil
}

// writeTx wraps a single write transaction across the main index, the
// Bloom filter cells, the tombstone set, and the pager. It follows the
// store's begin-immediate-and-retry contract: at most one writer is ever
// in flight, enforced by SQLite's own locking, not an in-process mutex.
//
// The connection pool is pinned to a single connection (see OpenStore), so
// issuing a raw BEGIN IMMEDIATE/COMMIT/ROLLBACK against the shared *sqlx.DB
// and running every statement of the transaction through that same handle
// is equivalent to a database/sql-level transaction, without depending on
// driver-specific TxOptions plumbing for SQLite's three BEGIN modes.
type writeTx struct {
	store  *Store
	closed bool
}

// beginWrite starts an immediate-lock write transaction. SQLite's
// busy_timeout PRAGMA (set at connection time) makes BEGIN IMMEDIATE retry
// internally on SQLITE_BUSY rather than failing immediately.
func (s *Store) beginWrite() (*writeTx, error) {
	if _, err := s.db.Exec(`BEGIN IMMEDIATE`); err != nil {
		return nil, errors.Wrap(err, "failed to begin write transaction")
	}
	return &writeTx{store: s}, nil
}

// rollbackUnlessClosed is deferred immediately after a successful
// beginWrite so that any early return rolls back; it is a no-op once
// commit or an explicit rollback already ran.
func (w *writeTx) rollbackUnlessClosed() {
	if w.closed {
		return
	}
	w.store.db.Exec(`ROLLBACK`)
	w.closed = true
}

func (w *writeTx) commit() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.store.db.Exec(`COMMIT`)
	if err != nil {
		return errors.Wrap(err, "failed to commit write transaction")
	}
	return nil
}

func (w *writeTx) exec(query string, args ...interface{}) (sql.Result, error) {
	return w.store.db.Exec(query, args...)
}

func (w *writeTx) namedExec(query string, arg interface{}) (sql.Result, error) {
	return w.store.db.NamedExec(query, arg)
}

func (w *writeTx) get(dest interface{}, query string, args ...interface{}) error {
	return w.store.db.Get(dest, query, args...)
}

func (w *writeTx) selectRows(dest interface{}, query string, args ...interface{}) error {
	return w.store.db.Select(dest, query, args...)
}

func (s *Store) getByTxid(txid [32]byte) (*row, error) {
	var r row
	err := s.db.Get(&r, `SELECT * FROM mempool_txs WHERE txid = ?`, txid[:])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transaction by txid")
	}
	return &r, nil
}

func (s *Store) getConflict(w *writeTx, address string, nonce uint64, r role) (*row, error) {
	var column string
	if r == roleOrigin {
		column = "origin_address"
	} else {
		column = "sponsor_address"
	}
	nonceColumn := "origin_nonce"
	if r == roleSponsor {
		nonceColumn = "sponsor_nonce"
	}

	query := `SELECT * FROM mempool_txs WHERE ` + column + ` = ? AND ` + nonceColumn + ` = ?`
	var out row
	err := w.get(&out, query, address, nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up conflicting row")
	}
	return &out, nil
}

func (s *Store) deleteRow(w *writeTx, txid []byte) error {
	_, err := w.exec(`DELETE FROM mempool_txs WHERE txid = ?`, txid)
	if err != nil {
		return errors.Wrap(err, "failed to delete transaction row")
	}
	return nil
}

func (s *Store) insertRow(w *writeTx, r *row) error {
	_, err := w.namedExec(`
		INSERT INTO mempool_txs
			(txid, origin_address, origin_nonce, sponsor_address, sponsor_nonce,
			 tx_fee, length, consensus_hash, block_header_hash, height,
			 accept_time, tx_bytes)
		VALUES
			(:txid, :origin_address, :origin_nonce, :sponsor_address, :sponsor_nonce,
			 :tx_fee, :length, :consensus_hash, :block_header_hash, :height,
			 :accept_time, :tx_bytes)
	`, r)
	if err != nil {
		return errors.Wrap(err, "failed to insert transaction row")
	}
	return nil
}

