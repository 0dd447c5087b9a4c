package mempool

import "github.com/pkg/errors"

// DropReason is the reason a previously-live transaction was displaced,
// reported to an EventObserver after commit.
type DropReason int

// Drop reasons reported to an EventObserver.
const (
	DropReasonReplaceByFee DropReason = iota
	DropReasonAcrossFork
	DropReasonStaleCollect
	DropReasonTooExpensive
)

func (r DropReason) String() string {
	switch r {
	case DropReasonReplaceByFee:
		return "ReplaceByFee"
	case DropReasonAcrossFork:
		return "AcrossFork"
	case DropReasonStaleCollect:
		return "StaleCollect"
	case DropReasonTooExpensive:
		return "TooExpensive"
	default:
		return "Unknown"
	}
}

// RejectionReason is the typed reason an admission oracle (or the store
// itself) refused a submitted transaction.
type RejectionReason struct {
	// Code is a stable, machine-comparable identifier for the reason.
	Code string
	// Message is a human-readable detail, verbatim from the oracle when the
	// rejection originated there.
	Message string
}

func (r RejectionReason) Error() string {
	if r.Message == "" {
		return r.Code
	}
	return r.Code + ": " + r.Message
}

// Sentinel error kinds surfaced to callers of Submit and friends. Use
// errors.Is / errors.As against these where the caller needs to branch on
// the kind rather than match the message.
var (
	// ErrNoSuchChainTip is returned when submit targets a tip the
	// chainstate collaborator does not recognize, and the tip is not the
	// sentinel first-burnchain-consensus-hash either.
	ErrNoSuchChainTip = errors.New("no such chain tip")

	// ErrConflictingNonceInMempool is returned when a live row already
	// occupies the (address, nonce) pair on the same fork and the new
	// submission does not qualify as a replacement.
	ErrConflictingNonceInMempool = errors.New("conflicting nonce in mempool")

	// ErrSerializationFailure covers failures turning a parsed transaction
	// back into bytes.
	ErrSerializationFailure = errors.New("transaction serialization failure")

	// ErrDeserializationFailure covers malformed transaction bytes supplied
	// to Submit or encountered while streaming sync replies.
	ErrDeserializationFailure = errors.New("transaction deserialization failure")

	// errBloomUnderflow and errMissingSeed are invariant violations: they
	// indicate a bug in the caller or the store, never a legitimate
	// business outcome, and must abort the enclosing transaction.
	errBloomUnderflow = errors.New("bloom counter underflow")
	errMissingSeed    = errors.New("mempool instance seed is not initialized")
)

// AdmissionRejectedError wraps a RejectionReason returned verbatim by the
// external admission oracle.
type AdmissionRejectedError struct {
	Reason RejectionReason
}

func (e *AdmissionRejectedError) Error() string {
	return "admission rejected: " + e.Reason.Error()
}

func (e *AdmissionRejectedError) Unwrap() error {
	return e.Reason
}

// newAdmissionRejectedError wraps an oracle's rejection reason for
// propagation to Submit's caller.
func newAdmissionRejectedError(reason RejectionReason) error {
	return &AdmissionRejectedError{Reason: reason}
}
