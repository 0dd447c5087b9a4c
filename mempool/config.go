package mempool

import "time"

// Tunable constants. These match the fixed defaults the store was designed
// around; callers that need different values construct their own Policy.
const (
	// MaxAge is the maximum number of confirmations a transaction can have
	// before it becomes eligible for garbage collection.
	MaxAge uint64 = 256

	// MaxChaining is a policy ceiling on the number of pending transactions
	// per account. The walker itself only yields one transaction per origin
	// per pass; enforcing a chain of up to MaxChaining is the assembler's
	// responsibility, done by calling back into iterate repeatedly.
	MaxChaining uint64 = 25

	// BloomTxs is the expected number of transactions the counting Bloom
	// filter is sized for.
	BloomTxs uint32 = 8192

	// BloomErrorRate is the target false-positive rate of the Bloom filter.
	BloomErrorRate float64 = 0.001

	// WindowDepth is how many recent block heights the Bloom filter tracks
	// before a row is tombstoned. The pager keeps a row for every live
	// txid, tombstoned or not.
	WindowDepth uint64 = 2

	// MaxTxTags is the cutover point between a Tags digest and a
	// BloomFilter digest: below this many recent rows, tags are emitted.
	MaxTxTags uint32 = 2048

	// candidateWalkerPageSize is the default page size used when the
	// walker paginates distinct origin addresses.
	candidateWalkerPageSize = 1000
)

// Policy carries the tunables a single embedding node chose for its mempool.
// The zero value is not usable; construct with DefaultPolicy or override
// individual fields from it.
type Policy struct {
	MaxAge         uint64
	MaxChaining    uint64
	BloomTxs       uint32
	BloomErrorRate float64
	WindowDepth    uint64
	MaxTxTags      uint32
}

// DefaultPolicy returns the fixed defaults named in the store's constants.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:         MaxAge,
		MaxChaining:    MaxChaining,
		BloomTxs:       BloomTxs,
		BloomErrorRate: BloomErrorRate,
		WindowDepth:    WindowDepth,
		MaxTxTags:      MaxTxTags,
	}
}

// WalkSettings controls a single Candidate Walker pass.
type WalkSettings struct {
	// MinTxFee filters out rows with a lower fee than this floor.
	MinTxFee uint64

	// MaxWalkTime bounds the wall-clock duration of one iterate call.
	MaxWalkTime time.Duration
}
