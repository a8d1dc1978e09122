// Package rbitset contains stream codecs for bitsets
// whose length both sides already agree on.
//
// The length is never transmitted:
// decoders write into a caller-provided bitset of the expected length.
//
// The [AdaptiveEncoder] picks between a raw word dump,
// a snappy-compressed word dump,
// and a combination index (the rank of the set bits
// among all bitsets of the same length and cardinality),
// prefixing a one-byte header so the [AdaptiveDecoder] can follow.
package rbitset
