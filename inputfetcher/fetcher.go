// Package inputfetcher implements the concurrent engine that populates
// a block's working set with the coins its inputs reference, reading
// them from the persistent store with a fixed pool of workers.
package inputfetcher

import (
	"errors"
	"runtime"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/chainkit/chainkit/coinview"
)

const (
	// DefaultBatchSize is the number of outpoints handed to the shared
	// queue at a time when no explicit batch size is configured.
	DefaultBatchSize = 128
)

// ErrFetcherStopped is returned from FetchInputs when the fetcher was
// shut down before the call could complete.
var ErrFetcherStopped = errors.New("input fetcher stopped")

// fetchResult pairs an outpoint with the coin read for it.
type fetchResult struct {
	outPoint wire.OutPoint
	coin     *coinview.Coin
}

// Fetcher reads the coins referenced by a block's inputs from a
// persistent store in parallel and hands them to the caller's working
// set.
//
// One goroutine (the main side, the single caller of FetchInputs)
// pushes batches of outpoints onto a shared queue, where they are
// claimed by a fixed pool of worker goroutines. Workers retain the
// coins they read until their next pass through the critical section,
// where a single lock acquisition both publishes the previous batch's
// results and claims the next batch. This merge-then-claim pattern is
// deliberate: it halves the number of critical-section entries per
// batch and is relied on by the in-flight accounting below.
//
// A Fetcher owns live goroutines and must not be copied. It is reused
// across many blocks over its lifetime; each FetchInputs call is
// independent.
type Fetcher struct {
	stopped sync.Once

	batchSize  int
	numWorkers int

	wg sync.WaitGroup

	// mtx guards every field below and nothing else. Disk lookups
	// always happen with the lock released.
	mtx sync.Mutex

	// workerCond is waited on by workers while the outpoint queue is
	// empty and no shutdown was requested.
	workerCond *sync.Cond

	// mainCond is waited on by the main side while no results are
	// queued, work remains in flight, and no shutdown was requested.
	mainCond *sync.Cond

	// outPoints is the queue of outpoints to be fetched. Order is
	// irrelevant to correctness, so it is used as a LIFO stack: the
	// main side appends at the tail and workers also claim from the
	// tail, keeping claims from competing with concurrent pushes for
	// slots at the front.
	outPoints []wire.OutPoint

	// results is the queue of fetched coins awaiting insertion into
	// the working set by the main side.
	results []fetchResult

	// inFlight counts outpoints that are queued but unclaimed plus
	// outpoints claimed by a worker whose results are not yet merged.
	// It is always >= 0, and the decrement for a batch happens in the
	// same critical section that merges the batch's results, so the
	// main side can never observe zero in-flight work while unmerged
	// results exist.
	inFlight int

	// source is the persistent store for the current FetchInputs call.
	source coinview.CoinSource

	// fetchErr records the first store fault any worker observed during
	// the current FetchInputs call. Absence of a coin is not a fault.
	fetchErr error

	requestStop bool
}

// New creates a fetcher and immediately spins up its worker pool.
// Non-positive batchSize or numWorkers fall back to DefaultBatchSize
// and the number of CPUs. The caller must call Stop when done with the
// fetcher.
func New(batchSize, numWorkers int) *Fetcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	f := &Fetcher{
		batchSize:  batchSize,
		numWorkers: numWorkers,
	}
	f.workerCond = sync.NewCond(&f.mtx)
	f.mainCond = sync.NewCond(&f.mtx)

	f.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go f.workerLoop()
	}

	log.Debugf("Input fetcher started with %d workers, batch size %d",
		numWorkers, batchSize)

	return f
}

// workerLoop repeatedly claims a batch of outpoints, reads their coins
// from the store, and publishes the results. The publish for one batch
// and the claim of the next share a single critical section.
func (f *Fetcher) workerLoop() {
	defer f.wg.Done()

	var (
		claimed  int
		results  []fetchResult
		batchErr error
	)
	for {
		f.mtx.Lock()

		// First do the clean-up of the previous pass, allowing it to
		// share this critical section with the claim below. claimed is
		// only non-zero after the first pass.
		if claimed > 0 {
			f.results = append(f.results, results...)
			f.inFlight -= claimed
			if batchErr != nil && f.fetchErr == nil {
				f.fetchErr = batchErr
			}
			f.mainCond.Signal()
		}

		// Logically, the loop starts here.
		for len(f.outPoints) == 0 && !f.requestStop {
			f.workerCond.Wait()
		}
		if f.requestStop {
			f.mtx.Unlock()
			return
		}

		// Cap the claim at an even per-worker share of all outstanding
		// work so that one idle-then-woken worker can't drain the whole
		// queue when load is skewed.
		evenShare := f.inFlight / f.numWorkers
		claimed = min(f.batchSize, len(f.outPoints), evenShare)
		if claimed < 1 {
			claimed = 1
		}

		cut := len(f.outPoints) - claimed
		batch := make([]wire.OutPoint, claimed)
		copy(batch, f.outPoints[cut:])
		f.outPoints = f.outPoints[:cut]

		source := f.source

		f.mtx.Unlock()

		results = make([]fetchResult, 0, len(batch))
		batchErr = nil
		for _, outPoint := range batch {
			coin, err := source.FetchCoin(outPoint)
			if err != nil {
				batchErr = err
				break
			}
			if coin == nil {
				// Missing an input. The block will fail validation
				// anyway, so finishing the rest of this batch is
				// wasted work.
				break
			}

			results = append(results, fetchResult{
				outPoint: outPoint,
				coin:     coin,
			})
		}
	}
}

// add hands a batch of outpoints to the shared queue and wakes worker
// goroutines: one worker for a single-element batch, all of them
// otherwise.
func (f *Fetcher) add(outPoints []wire.OutPoint) {
	if len(outPoints) == 0 {
		return
	}

	f.mtx.Lock()
	f.inFlight += len(outPoints)
	f.outPoints = append(f.outPoints, outPoints...)
	f.mtx.Unlock()

	if len(outPoints) == 1 {
		f.workerCond.Signal()
	} else {
		f.workerCond.Broadcast()
	}
}

// FetchInputs populates the cache with every coin the block's inputs
// reference that is neither already resident nor produced by an
// earlier transaction of the same block, reading from the given store
// in parallel. Coins are inserted clean: they are unmodified mirrors of
// what is already persisted.
//
// A coin absent from the store is not an error; it is simply never
// inserted, and the gap is discovered later when script verification
// finds an input with no coin. A store fault is returned after the
// call has fully drained, so the caller can distinguish local failure
// from peer misbehavior.
//
// FetchInputs must only be called from one goroutine at a time.
func (f *Fetcher) FetchInputs(cache *coinview.ViewCache,
	source coinview.CoinSource, block *btcutil.Block) error {

	f.mtx.Lock()
	f.source = source
	f.fetchErr = nil
	f.mtx.Unlock()

	// Scan the block, buffering the outpoints that actually need a disk
	// read. Outpoints created by an earlier transaction in this same
	// block can't be in the store yet, so they are excluded via the
	// txids set.
	buffer := make([]wire.OutPoint, 0, f.batchSize)
	txids := make(map[chainhash.Hash]struct{}, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		if blockchain.IsCoinBase(tx) {
			continue
		}

		for _, txIn := range tx.MsgTx().TxIn {
			outPoint := txIn.PreviousOutPoint
			if _, ok := txids[outPoint.Hash]; ok {
				continue
			}
			if cache.HaveCoinInCache(outPoint) {
				continue
			}

			buffer = append(buffer, outPoint)
			if len(buffer) == f.batchSize {
				f.add(buffer)
				buffer = make([]wire.OutPoint, 0, f.batchSize)
			}
		}

		txids[*tx.Hash()] = struct{}{}
	}

	f.add(buffer)

	// Drain results into the cache until all in-flight work has
	// completed or shutdown was requested.
	var inserted int
	for {
		var results []fetchResult

		f.mtx.Lock()
		for len(f.results) == 0 && !f.requestStop {
			if f.inFlight == 0 {
				err := f.fetchErr
				f.source = nil
				f.mtx.Unlock()

				log.Tracef("Fetched %d coins for block %v",
					inserted, block.Hash())

				return err
			}
			f.mainCond.Wait()
		}
		if f.requestStop {
			f.mtx.Unlock()
			return ErrFetcherStopped
		}

		results = f.results
		f.results = nil
		f.mtx.Unlock()

		for _, result := range results {
			cache.InsertCoin(result.outPoint, result.coin, false)
		}
		inserted += len(results)
	}
}

// Stop shuts the worker pool down and waits for all workers to exit.
// Any in-flight results that were never merged are discarded: the
// validation attempt is being abandoned by the caller regardless. Stop
// is idempotent.
func (f *Fetcher) Stop() {
	f.stopped.Do(func() {
		f.mtx.Lock()
		f.requestStop = true
		f.mtx.Unlock()

		f.workerCond.Broadcast()
		f.mainCond.Broadcast()

		f.wg.Wait()

		log.Debugf("Input fetcher stopped")
	})
}

// NumWorkers returns the size of the worker pool.
func (f *Fetcher) NumWorkers() int {
	return f.numWorkers
}
