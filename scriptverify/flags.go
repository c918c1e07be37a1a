package scriptverify

import (
	"github.com/btcsuite/btcd/txscript"
)

// Flags is the bitmask of policy and consensus rules requested for a
// single script verification.
type Flags uint32

const (
	// FlagP2SH evaluates pay-to-script-hash scripts (BIP16).
	FlagP2SH Flags = 1 << iota

	// FlagDERSig requires strict DER signature encoding (BIP66).
	FlagDERSig

	// FlagNullDummy requires the dummy multisig stack element to be
	// empty (BIP147).
	FlagNullDummy

	// FlagCheckLockTimeVerify enforces OP_CHECKLOCKTIMEVERIFY (BIP65).
	FlagCheckLockTimeVerify

	// FlagCheckSequenceVerify enforces OP_CHECKSEQUENCEVERIFY (BIP112).
	FlagCheckSequenceVerify

	// FlagWitness enables segregated witness evaluation (BIP141).
	FlagWitness

	// FlagTaproot enables taproot evaluation (BIP341/342). Taproot
	// signatures commit to every output the transaction spends, so
	// verification under this flag requires the full spent-outputs set.
	FlagTaproot

	// FlagCleanStack requires exactly one stack element to remain after
	// evaluation.
	FlagCleanStack
)

// AllFlags is the set of all recognized verification flags.
const AllFlags = FlagP2SH | FlagDERSig | FlagNullDummy |
	FlagCheckLockTimeVerify | FlagCheckSequenceVerify | FlagWitness |
	FlagTaproot | FlagCleanStack

// StandardFlags is the flag set applied to blocks under current
// consensus plus standardness rules.
const StandardFlags = AllFlags

// valid reports whether the mask only contains recognized flags.
func (f Flags) valid() bool {
	return f&^AllFlags == 0
}

// validCombination enforces the dependencies between flags: a clean
// stack check is only meaningful when both P2SH and witness evaluation
// are active, and witness evaluation presupposes P2SH.
func (f Flags) validCombination() bool {
	if f&FlagCleanStack != 0 &&
		f&(FlagP2SH|FlagWitness) != FlagP2SH|FlagWitness {

		return false
	}
	if f&FlagWitness != 0 && f&FlagP2SH == 0 {
		return false
	}

	return true
}

// scriptFlags maps the mask onto the interpreter's flag set.
func (f Flags) scriptFlags() txscript.ScriptFlags {
	var sf txscript.ScriptFlags

	if f&FlagP2SH != 0 {
		sf |= txscript.ScriptBip16
	}
	if f&FlagDERSig != 0 {
		sf |= txscript.ScriptVerifyDERSignatures
	}
	if f&FlagNullDummy != 0 {
		sf |= txscript.ScriptStrictMultiSig
	}
	if f&FlagCheckLockTimeVerify != 0 {
		sf |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if f&FlagCheckSequenceVerify != 0 {
		sf |= txscript.ScriptVerifyCheckSequenceVerify
	}
	if f&FlagWitness != 0 {
		sf |= txscript.ScriptVerifyWitness
	}
	if f&FlagTaproot != 0 {
		sf |= txscript.ScriptVerifyTaproot
	}
	if f&FlagCleanStack != 0 {
		sf |= txscript.ScriptVerifyCleanStack
	}

	return sf
}

// Status is the closed set of pre-check outcomes a verification call
// can report without invoking the interpreter. A failed script under a
// well-formed call is not a status: it is StatusOK with a false
// verdict.
type Status uint8

const (
	// StatusOK means all pre-checks passed and the verdict came from
	// the interpreter.
	StatusOK Status = iota

	// StatusInvalidFlags means the flag mask contains unrecognized
	// bits.
	StatusInvalidFlags

	// StatusInvalidFlagsCombination means the flag mask violates a
	// dependency between flags.
	StatusInvalidFlagsCombination

	// StatusSpentOutputsRequired means taproot verification was
	// requested without the spent-outputs set.
	StatusSpentOutputsRequired

	// StatusSpentOutputsMismatch means the spent-outputs set doesn't
	// pair up with the transaction's inputs.
	StatusSpentOutputsMismatch

	// StatusInvalidInputIndex means the input under test doesn't exist.
	StatusInvalidInputIndex
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidFlags:
		return "invalid-flags"
	case StatusInvalidFlagsCombination:
		return "invalid-flags-combination"
	case StatusSpentOutputsRequired:
		return "spent-outputs-required"
	case StatusSpentOutputsMismatch:
		return "spent-outputs-mismatch"
	case StatusInvalidInputIndex:
		return "invalid-input-index"
	default:
		return "unknown"
	}
}
