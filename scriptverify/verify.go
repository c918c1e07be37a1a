// Package scriptverify decides whether a transaction input's unlocking
// script satisfies the locking script of the coin it claims to spend,
// under an explicit set of policy/consensus flags. The script
// interpreter itself is txscript; this package owns the call surface
// around it: flag validation, spent-outputs plumbing, and the
// per-transaction signature-hash precomputation.
package scriptverify

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// TxContext carries the per-transaction state shared by the
// verification of all of its inputs: the previous-output fetcher and
// the precomputed signature hashes. Computing these once per
// transaction instead of once per input is the point of this type;
// create one context per transaction and verify every input through
// it.
//
// A TxContext performs no I/O and is not safe for concurrent use.
type TxContext struct {
	tx *wire.MsgTx

	// spentOutputs pairs up with tx.TxIn when non-nil.
	spentOutputs []*wire.TxOut

	prevOuts *txscript.MultiPrevOutFetcher
	hashes   *txscript.TxSigHashes

	sigCache *txscript.SigCache
}

// TxContextOption customizes a TxContext.
type TxContextOption func(*TxContext)

// WithSigCache attaches a shared signature verification cache, letting
// repeated verifications of the same signatures short-circuit.
func WithSigCache(sigCache *txscript.SigCache) TxContextOption {
	return func(c *TxContext) {
		c.sigCache = sigCache
	}
}

// NewTxContext builds the reusable verification context for one
// transaction. spentOutputs may be nil when no rule requiring it will
// be requested; when non-nil it must hold one output per transaction
// input, in input order. The signature-hash precomputation is seeded
// with the spent outputs only when they are supplied, mirroring what
// the taproot sighash commits to.
func NewTxContext(tx *wire.MsgTx, spentOutputs []*wire.TxOut,
	opts ...TxContextOption) *TxContext {

	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	if spentOutputs != nil && len(spentOutputs) == len(tx.TxIn) {
		for i, txIn := range tx.TxIn {
			prevOuts.AddPrevOut(
				txIn.PreviousOutPoint, spentOutputs[i],
			)
		}
	}

	ctx := &TxContext{
		tx:           tx,
		spentOutputs: spentOutputs,
		prevOuts:     prevOuts,
		hashes:       txscript.NewTxSigHashes(tx, prevOuts),
	}
	for _, opt := range opts {
		opt(ctx)
	}

	return ctx
}

// VerifyInput checks whether the input at inputIndex satisfies the
// given locking script for the given amount under the requested flags.
// The returned status reports pre-check failures; a false verdict with
// StatusOK means the call was well formed and the script genuinely
// failed. The interpreter is only invoked once every pre-check passed.
func (c *TxContext) VerifyInput(pkScript []byte, amount int64,
	inputIndex int, flags Flags) (bool, Status) {

	if !flags.valid() {
		return false, StatusInvalidFlags
	}
	if !flags.validCombination() {
		return false, StatusInvalidFlagsCombination
	}
	if flags&FlagTaproot != 0 && c.spentOutputs == nil {
		return false, StatusSpentOutputsRequired
	}
	if c.spentOutputs != nil &&
		len(c.spentOutputs) != len(c.tx.TxIn) {

		return false, StatusSpentOutputsMismatch
	}
	if inputIndex < 0 || inputIndex >= len(c.tx.TxIn) {
		return false, StatusInvalidInputIndex
	}

	vm, err := txscript.NewEngine(
		pkScript, c.tx, inputIndex, flags.scriptFlags(), c.sigCache,
		c.hashes, amount, c.prevOuts,
	)
	if err != nil {
		return false, StatusOK
	}

	return vm.Execute() == nil, StatusOK
}

// VerifyInputScript is the one-shot form of TxContext.VerifyInput: it
// builds a call-local context, so the per-transaction precomputation is
// redone on every call. Callers checking more than one input of the
// same transaction should create a TxContext instead.
func VerifyInputScript(pkScript []byte, amount int64, tx *wire.MsgTx,
	spentOutputs []*wire.TxOut, inputIndex int, flags Flags,
	opts ...TxContextOption) (bool, Status) {

	// Run the cheap pre-checks before paying for the sighash
	// precomputation; a malformed call must not reach the interpreter.
	if !flags.valid() {
		return false, StatusInvalidFlags
	}
	if !flags.validCombination() {
		return false, StatusInvalidFlagsCombination
	}
	if flags&FlagTaproot != 0 && spentOutputs == nil {
		return false, StatusSpentOutputsRequired
	}
	if spentOutputs != nil && len(spentOutputs) != len(tx.TxIn) {
		return false, StatusSpentOutputsMismatch
	}
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return false, StatusInvalidInputIndex
	}

	ctx := NewTxContext(tx, spentOutputs, opts...)

	return ctx.VerifyInput(pkScript, amount, inputIndex, flags)
}
