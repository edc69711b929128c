// Package seen tracks which advisories have already been announced.
//
// The store guarantees at-most-once announcement: an advisory ID registers
// under exactly one asset (first-assigned wins) and stays known until the
// per-asset history cap evicts it. The file driver persists the whole map
// atomically; a corrupt or missing state file loads as an empty store
// instead of failing startup.
package seen
