// Package contrib contains the types shared by the state structures
// that track key contribution ownership:
// the error taxonomy returned by every structure,
// and helpers for the fixed-length '0'/'1' bitstring form
// that contribution sets take in serialized snapshots.
//
// Contribution sets themselves are plain [*bitset.BitSet] values,
// whose length is always the participant count.
package contrib
