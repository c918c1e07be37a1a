package scriptverify

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// testSpendTx returns a transaction with numInputs inputs spending
// distinct outpoints and a single output.
func testSpendTx(numInputs int) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < numInputs; i++ {
		var hash chainhash.Hash
		hash[0] = byte(i + 1)
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  hash,
				Index: uint32(i),
			},
			Sequence: wire.MaxTxInSequenceNum,
		})
	}
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))

	return tx
}

// TestVerifyPreChecks walks the pre-check ladder. Every case must
// short-circuit with its specific status and a false verdict; the
// trivially-true locking script proves the interpreter was never
// consulted.
func TestVerifyPreChecks(t *testing.T) {
	t.Parallel()

	trueScript := []byte{txscript.OP_TRUE}
	oneOut := []*wire.TxOut{wire.NewTxOut(1000, trueScript)}

	testCases := []struct {
		name         string
		flags        Flags
		spentOutputs []*wire.TxOut
		inputIndex   int
		status       Status
	}{
		{
			name:   "unknown flag bits",
			flags:  Flags(1 << 16),
			status: StatusInvalidFlags,
		},
		{
			name:   "clean stack alone",
			flags:  FlagCleanStack,
			status: StatusInvalidFlagsCombination,
		},
		{
			name:   "clean stack without witness",
			flags:  FlagCleanStack | FlagP2SH,
			status: StatusInvalidFlagsCombination,
		},
		{
			name:   "witness without p2sh",
			flags:  FlagWitness,
			status: StatusInvalidFlagsCombination,
		},
		{
			name:   "taproot without spent outputs",
			flags:  FlagP2SH | FlagWitness | FlagTaproot,
			status: StatusSpentOutputsRequired,
		},
		{
			name: "spent outputs length mismatch",
			spentOutputs: []*wire.TxOut{
				wire.NewTxOut(1, trueScript),
				wire.NewTxOut(2, trueScript),
			},
			status: StatusSpentOutputsMismatch,
		},
		{
			name:         "input index out of range",
			spentOutputs: oneOut,
			inputIndex:   1,
			status:       StatusInvalidInputIndex,
		},
		{
			name:       "negative input index",
			inputIndex: -1,
			status:     StatusInvalidInputIndex,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tx := testSpendTx(1)
			ok, status := VerifyInputScript(
				trueScript, 1000, tx, tc.spentOutputs,
				tc.inputIndex, tc.flags,
			)
			require.False(t, ok)
			require.Equal(t, tc.status, status)
		})
	}
}

// TestVerifyTrivialScripts asserts that a well-formed call reports the
// interpreter's verdict with StatusOK in both directions.
func TestVerifyTrivialScripts(t *testing.T) {
	t.Parallel()

	tx := testSpendTx(1)

	ok, status := VerifyInputScript(
		[]byte{txscript.OP_TRUE}, 1000, tx, nil, 0, 0,
	)
	require.True(t, ok)
	require.Equal(t, StatusOK, status)

	// An unspendable locking script fails with StatusOK: the call was
	// well formed, the script genuinely failed.
	ok, status = VerifyInputScript(
		[]byte{txscript.OP_RETURN}, 1000, tx, nil, 0, 0,
	)
	require.False(t, ok)
	require.Equal(t, StatusOK, status)
}

// TestVerifyP2PKH signs a standard pay-to-pubkey-hash input and runs it
// through the verifier, then tampers with the transaction to flip the
// verdict.
func TestVerifyP2PKH(t *testing.T) {
	t.Parallel()

	var keyBytes [32]byte
	keyBytes[31] = 0x2a
	privKey, pubKey := btcec.PrivKeyFromBytes(keyBytes[:])

	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey.SerializeCompressed())).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	const amount = 50_000

	tx := testSpendTx(1)
	sigScript, err := txscript.SignatureScript(
		tx, 0, pkScript, txscript.SigHashAll, privKey, true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	spentOutputs := []*wire.TxOut{wire.NewTxOut(amount, pkScript)}

	ok, status := VerifyInputScript(
		pkScript, amount, tx, spentOutputs, 0, StandardFlags,
	)
	require.True(t, ok)
	require.Equal(t, StatusOK, status)

	// Changing the output after signing invalidates the signature.
	tx.TxOut[0].Value++
	ok, status = VerifyInputScript(
		pkScript, amount, tx, spentOutputs, 0, StandardFlags,
	)
	require.False(t, ok)
	require.Equal(t, StatusOK, status)
}

// TestTxContextReuse verifies multiple inputs of one transaction
// through a single shared precomputation context.
func TestTxContextReuse(t *testing.T) {
	t.Parallel()

	trueScript := []byte{txscript.OP_TRUE}

	tx := testSpendTx(3)
	spentOutputs := []*wire.TxOut{
		wire.NewTxOut(100, trueScript),
		wire.NewTxOut(200, trueScript),
		wire.NewTxOut(300, trueScript),
	}

	sigCache := txscript.NewSigCache(100)
	ctx := NewTxContext(tx, spentOutputs, WithSigCache(sigCache))

	for i, txOut := range spentOutputs {
		ok, status := ctx.VerifyInput(
			txOut.PkScript, txOut.Value, i, StandardFlags,
		)
		require.True(t, ok, "input %d", i)
		require.Equal(t, StatusOK, status)
	}

	// The context still enforces the pre-checks.
	ok, status := ctx.VerifyInput(trueScript, 100, 3, StandardFlags)
	require.False(t, ok)
	require.Equal(t, StatusInvalidInputIndex, status)
}
