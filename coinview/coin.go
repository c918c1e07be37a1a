package coinview

import (
	"github.com/btcsuite/btcd/wire"
)

// Coin describes a spendable transaction output together with metadata
// about where it was created. Once a coin is inserted into a ViewCache
// the cache owns it; callers must not mutate it afterwards.
type Coin struct {
	// Value is the amount of the output in satoshis.
	Value int64

	// PkScript is the locking script of the output.
	PkScript []byte

	// Height is the height of the block the output was created in.
	Height int32

	// IsCoinBase indicates whether the output was created by a coinbase
	// transaction, which matters for maturity rules.
	IsCoinBase bool
}

// NewCoin creates a coin from a transaction output and its creation
// context.
func NewCoin(txOut *wire.TxOut, height int32, isCoinBase bool) *Coin {
	return &Coin{
		Value:      txOut.Value,
		PkScript:   txOut.PkScript,
		Height:     height,
		IsCoinBase: isCoinBase,
	}
}

// TxOut returns the coin as a wire transaction output, which is the
// shape the script verifier consumes.
func (c *Coin) TxOut() *wire.TxOut {
	return &wire.TxOut{
		Value:    c.Value,
		PkScript: c.PkScript,
	}
}

// CoinSource is the read-only point-lookup contract of a persistent
// UTXO store. FetchCoin returns (nil, nil) when no coin exists for the
// outpoint; a non-nil error indicates a store fault, not absence. A
// CoinSource must be safe for concurrent readers.
type CoinSource interface {
	FetchCoin(op wire.OutPoint) (*Coin, error)
}

// CoinWriter is the write side of a persistent UTXO store, used when a
// ViewCache flushes its modifications.
type CoinWriter interface {
	// PutCoin stores or replaces the coin for the outpoint.
	PutCoin(op wire.OutPoint, coin *Coin) error

	// DeleteCoin removes the coin for the outpoint. Deleting an absent
	// outpoint is not an error.
	DeleteCoin(op wire.OutPoint) error
}
