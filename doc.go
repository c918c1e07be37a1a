// Package chainkit implements the block-connection hot path for a
// Bitcoin-family UTXO chain: a concurrent engine that fetches the coins
// a block's transactions spend into a working set, per-input script
// verification under an explicit policy/consensus flag set, and the
// tri-state outcome model (valid, invalid with ban score, local error)
// that peer-management logic downstream depends on.
//
// Every honest participant given the same block and prior chain state
// must reach the same accept/reject decision, so all failure paths are
// classified deterministically: absent coins and failing scripts are
// network rule violations attributable to the block's relayer, while
// storage faults and malformed verifier calls are local errors that
// suppress penalty accounting.
package chainkit
