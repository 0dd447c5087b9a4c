package mempool

// Tip identifies a specific block on some fork by its consensus hash and
// block header hash pair.
type Tip struct {
	ConsensusHash   [20]byte
	BlockHeaderHash [32]byte
}

// FirstBurnchainConsensusHash is the sentinel tip consensus hash that
// resolves to height 0 even when the chainstate collaborator has no record
// of it (there is, by construction, no block before it).
var FirstBurnchainConsensusHash [20]byte

// Chainstate is the external collaborator that answers height and ancestry
// questions. The mempool never inspects chain state directly; it only calls
// through this interface.
type Chainstate interface {
	// BlockHeight resolves a tip to its Stacks block height. The second
	// return value is false if the tip is unknown to the chainstate.
	BlockHeight(tip Tip) (height uint64, ok bool)

	// AncestorHeight reports the height at which tip is known to be an
	// ancestor of other, or ok=false if no such ancestry relation is known.
	AncestorHeight(tip, other Tip) (height uint64, ok bool)

	// AccountNonce returns the current nonce of address as observed under
	// tip.
	AccountNonce(tip Tip, address string) uint64
}

// AdmissionOracle is the external collaborator consulted before a
// transaction is admitted. It owns script validation, cost estimation, and
// any other policy the mempool itself does not implement.
type AdmissionOracle interface {
	WillAdmit(tip Tip, tx ParsedTx, size uint64) error
}

// EventObserver is notified after a write transaction that displaced a
// previously live row commits successfully.
type EventObserver interface {
	OnDropped(txids [][32]byte, reason DropReason)
}

// TransactionCodec recovers a ParsedTx from opaque bytes and serializes one
// back. The mempool is agnostic to the wire format beyond requiring this
// round trip and a recoverable Txid.
type TransactionCodec interface {
	Decode(raw []byte) (ParsedTx, error)
	Encode(tx ParsedTx) ([]byte, error)
}

// ParsedTx is the minimal view of a transaction the store needs: its
// identity plus the origin/sponsor (address, nonce) pairs and fee used for
// admission and replacement decisions.
type ParsedTx interface {
	Txid() [32]byte
	OriginAddress() string
	OriginNonce() uint64
	SponsorAddress() string
	SponsorNonce() uint64
	Fee() uint64
}
