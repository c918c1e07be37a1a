package validation

// Reason describes why a block or transaction failed validation. The
// values are much more granular than the reject codes, which exist for
// wire-level compatibility; callers deciding whether to penalize the
// sending peer should branch on the reason.
type Reason uint8

const (
	// ReasonNone means the object is not actually invalid.
	ReasonNone Reason = iota

	// ReasonConsensus marks a violation of consensus rules not covered
	// by any of the more specific reasons below.
	ReasonConsensus

	// ReasonCachedInvalid marks an object previously cached as invalid,
	// without a record of why.
	ReasonCachedInvalid

	// ReasonBlockMutated marks a block whose contents didn't match the
	// data committed to by its proof of work.
	ReasonBlockMutated

	// ReasonBlockMissingPrev marks a block whose predecessor is unknown.
	ReasonBlockMissingPrev

	// ReasonBlockInvalidPrev marks a block built on an invalid block.
	ReasonBlockInvalidPrev

	// ReasonBlockBadTime marks a block with a timestamp too far in the
	// future.
	ReasonBlockBadTime

	// ReasonTxNotStandard marks a transaction that violates local policy
	// rules only.
	ReasonTxNotStandard

	// ReasonTxMissingInputs marks a transaction spending outputs that
	// are unknown or already spent.
	ReasonTxMissingInputs

	// ReasonTxWitnessMutated marks a transaction whose witness is
	// missing or may have been malleated.
	ReasonTxWitnessMutated

	// ReasonTxConflict marks a transaction that conflicts with one
	// already known.
	ReasonTxConflict

	// ReasonTxMempoolPolicy marks a transaction that violated mempool
	// limits.
	ReasonTxMempoolPolicy
)

// String returns a human-readable name for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonConsensus:
		return "consensus"
	case ReasonCachedInvalid:
		return "cached-invalid"
	case ReasonBlockMutated:
		return "block-mutated"
	case ReasonBlockMissingPrev:
		return "block-missing-prev"
	case ReasonBlockInvalidPrev:
		return "block-invalid-prev"
	case ReasonBlockBadTime:
		return "block-bad-time"
	case ReasonTxNotStandard:
		return "tx-not-standard"
	case ReasonTxMissingInputs:
		return "tx-missing-inputs"
	case ReasonTxWitnessMutated:
		return "tx-witness-mutated"
	case ReasonTxConflict:
		return "tx-conflict"
	case ReasonTxMempoolPolicy:
		return "tx-mempool-policy"
	default:
		return "unknown"
	}
}

// Reject codes reported alongside a rejection, kept for wire-level
// compatibility with the legacy reject message.
const (
	RejectMalformed       byte = 0x01
	RejectInvalid         byte = 0x10
	RejectObsolete        byte = 0x11
	RejectDuplicate       byte = 0x12
	RejectNonstandard     byte = 0x40
	RejectInsufficientFee byte = 0x42
	RejectCheckpoint      byte = 0x43
)

// mode is the tagged state of a Result. Keeping it a single enum makes
// illegal combinations (e.g. simultaneously invalid and errored)
// unrepresentable.
type mode uint8

const (
	// modeValid is the initial state, everything checked out so far.
	modeValid mode = iota

	// modeInvalid records a network rule violation. A ban score may be
	// accumulated against the sender.
	modeInvalid

	// modeError records a local runtime fault, e.g. a storage failure.
	// It dominates modeInvalid and is never left once entered.
	modeError
)

// Result accumulates the outcome of one validation pass. It is a state
// machine rather than a plain return value because a single pass may
// record diagnostic detail beyond pass/fail.
//
// The transition table is:
//
//	Valid   --DoS/Invalid--> Invalid
//	Valid   --Error-------> Error
//	Invalid --DoS/Invalid--> Invalid (score accumulates)
//	Invalid --Error-------> Error
//	Error   --------------> Error   (terminal; score frozen)
//
// Invalid means the sender misbehaved and may be penalized per the
// accumulated ban score. Error means our own state may be broken, so
// further penalty accounting is suppressed. The zero value is a valid,
// ready-to-use Result.
type Result struct {
	mode         mode
	reason       Reason
	banScore     int
	rejectCode   byte
	rejectReason string
	debugMessage string
	corruption   bool
}

// DoS records a network rule violation carrying the given ban score
// penalty. If the Result is already in the error state, the mode and
// score are left untouched but the reason and messages are still
// recorded for diagnostics. The passed ret value is returned unchanged
// so callers can write "return state.DoS(...)".
func (r *Result) DoS(penalty int, reason Reason, ret bool, rejectCode byte,
	rejectReason string, corruptionPossible bool, debugMessage string) bool {

	r.reason = reason
	r.rejectCode = rejectCode
	r.rejectReason = rejectReason
	r.debugMessage = debugMessage
	if corruptionPossible {
		r.corruption = true
	}

	if r.mode == modeError {
		return ret
	}

	r.banScore += penalty
	r.mode = modeInvalid

	return ret
}

// Invalid records a network rule violation that carries no ban score,
// e.g. a benign duplicate.
func (r *Result) Invalid(reason Reason, ret bool, rejectCode byte,
	rejectReason, debugMessage string) bool {

	return r.DoS(0, reason, ret, rejectCode, rejectReason, false,
		debugMessage)
}

// Error records a local runtime fault. The first message recorded wins;
// later calls keep the mode at error but don't overwrite an existing
// reject reason. Always returns false.
func (r *Result) Error(msg string) bool {
	if r.mode == modeValid {
		r.rejectReason = msg
	}
	r.mode = modeError

	return false
}

// IsValid returns true while no violation or fault has been recorded.
func (r *Result) IsValid() bool {
	return r.mode == modeValid
}

// IsInvalid returns true if a network rule violation has been recorded
// and no local fault has superseded it.
func (r *Result) IsInvalid() bool {
	return r.mode == modeInvalid
}

// IsError returns true once a local runtime fault has been recorded.
func (r *Result) IsError() bool {
	return r.mode == modeError
}

// InvalidBanScore returns the accumulated ban score, but only while the
// Result is in the invalid state.
func (r *Result) InvalidBanScore() (int, bool) {
	if !r.IsInvalid() {
		return 0, false
	}

	return r.banScore, true
}

// BanScore returns the accumulated ban score regardless of state.
func (r *Result) BanScore() int {
	return r.banScore
}

// Reason returns the recorded invalidity reason.
func (r *Result) Reason() Reason {
	return r.reason
}

// RejectCode returns the recorded reject code.
func (r *Result) RejectCode() byte {
	return r.rejectCode
}

// RejectReason returns the recorded reject message.
func (r *Result) RejectReason() string {
	return r.rejectReason
}

// DebugMessage returns the recorded debug detail.
func (r *Result) DebugMessage() string {
	return r.debugMessage
}

// CorruptionPossible reports whether local data, not necessarily the
// sender, may be at fault. Once set it is never cleared.
func (r *Result) CorruptionPossible() bool {
	return r.corruption
}

// SetCorruptionPossible marks that local data may be at fault.
func (r *Result) SetCorruptionPossible() {
	r.corruption = true
}
