package chainkit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/chainkit/chainkit/coinview"
	"github.com/chainkit/chainkit/inputfetcher"
	"github.com/chainkit/chainkit/scriptverify"
	"github.com/chainkit/chainkit/validation"
)

// badInputsRejectReason is reported when a transaction spends outputs
// that are unknown or already spent.
const badInputsRejectReason = "bad-txns-inputs-missingorspent"

// badScriptRejectReason is reported when an input's script fails
// verification under the mandatory flag set.
const badScriptRejectReason = "mandatory-script-verify-flag-failed"

// ConnectorConfig bundles the collaborators a Connector drives.
type ConnectorConfig struct {
	// Source is the persistent UTXO store coins are fetched from.
	Source coinview.CoinSource

	// Fetcher is the concurrent engine used to populate the working
	// set ahead of verification. The connector does not own it; the
	// caller remains responsible for stopping it.
	Fetcher *inputfetcher.Fetcher

	// Flags is the policy/consensus flag set scripts are verified
	// under.
	Flags scriptverify.Flags

	// SigCache, when set, is shared across all verifications to elide
	// repeated checks of the same signatures.
	SigCache *txscript.SigCache
}

// Connector validates the inputs of a block against the chain's coin
// set: it populates a working set with every coin the block spends,
// verifies each input's script against its coin, and folds the
// outcomes into a validation.Result.
type Connector struct {
	cfg ConnectorConfig
}

// NewConnector creates a connector from the given config.
func NewConnector(cfg ConnectorConfig) *Connector {
	return &Connector{cfg: cfg}
}

// CheckBlockScripts runs the block-connection hot path over the given
// block: fetch every referenced coin into the view, then verify each
// non-coinbase input and update the view's spend/create bookkeeping so
// later transactions of the block can spend earlier outputs.
//
// Failures are folded into state with the three-way split downstream
// peer logic depends on: a missing coin or failed script marks the
// state invalid with a ban score (the sender is at fault), while store
// faults and malformed verifier calls mark it errored (our own state
// may be broken, so no penalty is recorded). The return value mirrors
// state.IsValid().
func (c *Connector) CheckBlockScripts(block *btcutil.Block, height int32,
	view *coinview.ViewCache, state *validation.Result) bool {

	err := c.cfg.Fetcher.FetchInputs(view, c.cfg.Source, block)
	if err != nil {
		return state.Error(fmt.Sprintf("failed to fetch inputs of "+
			"block %v: %v", block.Hash(), err))
	}

	for _, tx := range block.Transactions() {
		if blockchain.IsCoinBase(tx) {
			view.AddTxOuts(tx, height, true)
			continue
		}

		if !c.checkTxScripts(tx, view, state) {
			return false
		}

		// The transaction checked out: consume its inputs and expose
		// its outputs to the rest of the block.
		for _, txIn := range tx.MsgTx().TxIn {
			view.SpendCoin(txIn.PreviousOutPoint)
		}
		view.AddTxOuts(tx, height, false)
	}

	log.Debugf("Verified scripts of %d transactions in block %v",
		len(block.Transactions()), block.Hash())

	return true
}

// checkTxScripts gathers the coins one transaction spends and verifies
// every input through a shared per-transaction context.
func (c *Connector) checkTxScripts(tx *btcutil.Tx,
	view *coinview.ViewCache, state *validation.Result) bool {

	msgTx := tx.MsgTx()

	spentOutputs := make([]*wire.TxOut, 0, len(msgTx.TxIn))
	for i, txIn := range msgTx.TxIn {
		coin, err := view.FetchCoin(txIn.PreviousOutPoint)
		if err != nil {
			return state.Error(fmt.Sprintf("failed to fetch coin "+
				"%v: %v", txIn.PreviousOutPoint, err))
		}
		if coin == nil {
			// The fetch engine leaves a silent gap for coins absent
			// from the store; this is where the gap is discovered
			// and classified.
			return state.DoS(
				100, validation.ReasonTxMissingInputs, false,
				validation.RejectInvalid, badInputsRejectReason,
				false, fmt.Sprintf("input %d of %v spends "+
					"missing output %v", i, tx.Hash(),
					txIn.PreviousOutPoint),
			)
		}

		spentOutputs = append(spentOutputs, coin.TxOut())
	}

	txCtx := scriptverify.NewTxContext(
		msgTx, spentOutputs,
		scriptverify.WithSigCache(c.cfg.SigCache),
	)
	for i, txOut := range spentOutputs {
		ok, status := txCtx.VerifyInput(
			txOut.PkScript, txOut.Value, i, c.cfg.Flags,
		)
		if status != scriptverify.StatusOK {
			// A pre-check failure means we built a malformed call,
			// which is a local fault rather than peer misbehavior.
			return state.Error(fmt.Sprintf("script verification "+
				"of input %d of %v rejected: %v", i, tx.Hash(),
				status))
		}
		if !ok {
			return state.DoS(
				100, validation.ReasonConsensus, false,
				validation.RejectInvalid, badScriptRejectReason,
				false, fmt.Sprintf("input %d of %v failed "+
					"script verification", i, tx.Hash()),
			)
		}
	}

	return true
}
