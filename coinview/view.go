package coinview

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// cacheEntry pairs a cached coin with its dirty flag. A clean entry is
// an unmodified mirror of the backing store; a dirty entry must be
// written back on flush. A nil coin is a spent marker: the entry stays
// resident so the outpoint reads as absent, masking whatever the
// backing store still holds until the spend is flushed.
type cacheEntry struct {
	coin  *Coin
	dirty bool
}

// spent reports whether the entry is a spent marker.
func (e *cacheEntry) spent() bool {
	return e.coin == nil
}

// ViewCache is an in-memory overlay over a persistent coin source, used
// as the working set while connecting a block. Spends recorded in the
// overlay shadow the backing store: once a coin is spent here, reads
// report it absent even though the store keeps it until the next
// flush. It is not safe for concurrent use: during validation it is
// mutated only by the orchestrating goroutine, never by fetch workers.
type ViewCache struct {
	source CoinSource

	entries map[wire.OutPoint]*cacheEntry
}

// A ViewCache can itself serve as the coin source of another view.
var _ CoinSource = (*ViewCache)(nil)

// NewViewCache creates a working set over the given backing source. The
// source may be nil, in which case the cache serves only explicitly
// inserted coins.
func NewViewCache(source CoinSource) *ViewCache {
	return &ViewCache{
		source:  source,
		entries: make(map[wire.OutPoint]*cacheEntry),
	}
}

// HaveCoinInCache reports whether a live coin for the outpoint is
// resident in the cache, without consulting the backing source. Spent
// markers report false.
func (v *ViewCache) HaveCoinInCache(op wire.OutPoint) bool {
	entry, ok := v.entries[op]
	return ok && !entry.spent()
}

// InsertCoin adds a coin to the cache. Coins mirrored unmodified from
// the backing store are inserted clean (dirty=false); coins created or
// modified during validation are inserted dirty so a flush writes them
// back. A clean insert never overwrites resident knowledge: in
// particular a spent marker survives a re-fetch of the same outpoint,
// so a spent coin can't be resurrected from the store. The cache takes
// ownership of the coin.
func (v *ViewCache) InsertCoin(op wire.OutPoint, coin *Coin, dirty bool) {
	if dirty {
		v.entries[op] = &cacheEntry{coin: coin, dirty: true}
		return
	}

	if _, ok := v.entries[op]; ok {
		return
	}

	v.entries[op] = &cacheEntry{coin: coin}
}

// FetchCoin returns the coin for the outpoint, consulting the backing
// source on a cache miss and caching the result as clean. It returns
// (nil, nil) if the coin doesn't exist anywhere, or if it was spent
// out of this view: a resident spent marker masks the backing store.
func (v *ViewCache) FetchCoin(op wire.OutPoint) (*Coin, error) {
	if entry, ok := v.entries[op]; ok {
		return entry.coin, nil
	}

	if v.source == nil {
		return nil, nil
	}

	coin, err := v.source.FetchCoin(op)
	if err != nil || coin == nil {
		return nil, err
	}

	v.entries[op] = &cacheEntry{coin: coin}

	return coin, nil
}

// SpendCoin removes the coin for the outpoint from the view and
// returns it. Spending a clean coin leaves a dirty spent marker behind
// so the outpoint reads as absent from now on and the flush deletes it
// from the backing store. Spending a coin created within this view
// drops the entry outright: it never existed downstream. Returns nil
// if no live coin is resident for the outpoint.
func (v *ViewCache) SpendCoin(op wire.OutPoint) *Coin {
	entry, ok := v.entries[op]
	if !ok || entry.spent() {
		return nil
	}

	coin := entry.coin

	if entry.dirty {
		delete(v.entries, op)
		return coin
	}

	entry.coin = nil
	entry.dirty = true

	return coin
}

// AddTxOuts adds all spendable outputs of the transaction to the cache
// as dirty coins, making them available to later transactions in the
// same block.
func (v *ViewCache) AddTxOuts(tx *btcutil.Tx, height int32, isCoinBase bool) {
	txHash := tx.Hash()
	for i, txOut := range tx.MsgTx().TxOut {
		op := wire.OutPoint{Hash: *txHash, Index: uint32(i)}
		v.InsertCoin(op, NewCoin(txOut, height, isCoinBase), true)
	}
}

// Flush writes all dirty entries to the writer: spent markers become
// deletions, live dirty coins are stored. Afterwards the markers are
// dropped (the store no longer holds those coins) and the surviving
// entries are marked clean. On error the cache is left untouched so
// the flush can be retried.
func (v *ViewCache) Flush(w CoinWriter) error {
	for op, entry := range v.entries {
		if !entry.dirty {
			continue
		}

		if entry.spent() {
			if err := w.DeleteCoin(op); err != nil {
				return err
			}
			continue
		}

		if err := w.PutCoin(op, entry.coin); err != nil {
			return err
		}
	}

	for op, entry := range v.entries {
		if entry.spent() {
			delete(v.entries, op)
			continue
		}
		entry.dirty = false
	}

	return nil
}

// Len returns the number of resident cache entries, spent markers
// included.
func (v *ViewCache) Len() int {
	return len(v.entries)
}
