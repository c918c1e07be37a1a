// Package coindb provides a persistent coin store backed by a kvdb
// database. It implements the read side consumed by the fetch engine
// (coinview.CoinSource) and the write side targeted by working-set
// flushes (coinview.CoinWriter).
package coindb

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/chainkit/chainkit/coinview"
	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// coinBucket is the top level bucket holding one entry per unspent
	// coin, keyed by serialized outpoint.
	coinBucket = []byte("coins")

	// ErrCorruptedStore indicates that the on-disk bucket structure has
	// altered since the store was initialized.
	ErrCorruptedStore = errors.New("coin store has been corrupted")
)

// maxScriptSize is the largest locking script the codec will accept.
const maxScriptSize = 10000

// outPointKey returns the fixed-width key for an outpoint: the 32-byte
// transaction hash followed by the big-endian output index.
func outPointKey(op wire.OutPoint) []byte {
	var key [36]byte
	copy(key[:32], op.Hash[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)

	return key[:]
}

// serializeCoin encodes a coin as the varint amount, the creation
// height shifted left one bit with the coinbase flag in the low bit,
// and the locking script with a leading length.
func serializeCoin(coin *coinview.Coin) ([]byte, error) {
	var buf bytes.Buffer

	err := wire.WriteVarInt(&buf, 0, uint64(coin.Value))
	if err != nil {
		return nil, err
	}

	heightCode := uint64(uint32(coin.Height)) << 1
	if coin.IsCoinBase {
		heightCode |= 1
	}
	if err := wire.WriteVarInt(&buf, 0, heightCode); err != nil {
		return nil, err
	}

	err = wire.WriteVarBytes(&buf, 0, coin.PkScript)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// deserializeCoin decodes a coin produced by serializeCoin.
func deserializeCoin(b []byte) (*coinview.Coin, error) {
	r := bytes.NewReader(b)

	value, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	heightCode, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	pkScript, err := wire.ReadVarBytes(r, 0, maxScriptSize, "pkscript")
	if err != nil {
		return nil, err
	}

	return &coinview.Coin{
		Value:      int64(value),
		PkScript:   pkScript,
		Height:     int32(uint32(heightCode >> 1)),
		IsCoinBase: heightCode&1 == 1,
	}, nil
}

// CoinStore is a kvdb-backed persistent UTXO store offering read-only
// point lookups plus the batch write target used on flush. Reads are
// safe for concurrent use.
type CoinStore struct {
	db kvdb.Backend
}

// Compile-time checks that CoinStore satisfies the store contracts.
var _ coinview.CoinSource = (*CoinStore)(nil)
var _ coinview.CoinWriter = (*CoinStore)(nil)

// New creates a coin store on top of the given database backend,
// initializing its bucket if needed.
func New(db kvdb.Backend) (*CoinStore, error) {
	store := &CoinStore{db: db}
	if err := store.initBuckets(); err != nil {
		return nil, err
	}

	return store, nil
}

// initBuckets ensures the coin bucket exists so reads can assume it
// after startup.
func (s *CoinStore) initBuckets() error {
	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(coinBucket)
		return err
	})
}

// FetchCoin returns the coin for the given outpoint, or (nil, nil) if
// the store holds no coin for it.
func (s *CoinStore) FetchCoin(op wire.OutPoint) (*coinview.Coin, error) {
	var coin *coinview.Coin
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		coins := tx.ReadBucket(coinBucket)
		if coins == nil {
			return ErrCorruptedStore
		}

		rawCoin := coins.Get(outPointKey(op))
		if rawCoin == nil {
			return nil
		}

		var err error
		coin, err = deserializeCoin(rawCoin)

		return err
	}, func() {
		coin = nil
	})
	if err != nil {
		return nil, err
	}

	return coin, nil
}

// PutCoin stores or replaces the coin for the outpoint.
func (s *CoinStore) PutCoin(op wire.OutPoint, coin *coinview.Coin) error {
	rawCoin, err := serializeCoin(coin)
	if err != nil {
		return err
	}

	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		coins := tx.ReadWriteBucket(coinBucket)
		if coins == nil {
			return ErrCorruptedStore
		}

		return coins.Put(outPointKey(op), rawCoin)
	})
}

// DeleteCoin removes the coin for the outpoint. Deleting an absent
// outpoint is not an error.
func (s *CoinStore) DeleteCoin(op wire.OutPoint) error {
	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		coins := tx.ReadWriteBucket(coinBucket)
		if coins == nil {
			return ErrCorruptedStore
		}

		return coins.Delete(outPointKey(op))
	})
}
