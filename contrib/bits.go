package contrib

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Parse converts a '0'/'1' string into a bitset of the same length.
// Any other character results in [ErrInvalidArgument].
func Parse(s string) (*bitset.BitSet, error) {
	bs := bitset.MustNew(uint(len(s)))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			// Already clear.
		case '1':
			bs.Set(uint(i))
		default:
			return nil, fmt.Errorf(
				"%w: invalid character %q at offset %d", ErrInvalidArgument, s[i], i,
			)
		}
	}
	return bs, nil
}

// ParseN is like [Parse] but also requires the string to have length n.
func ParseN(s string, n uint) (*bitset.BitSet, error) {
	if uint(len(s)) != n {
		return nil, fmt.Errorf(
			"%w: bitstring length %d, expected %d", ErrInvalidArgument, len(s), n,
		)
	}
	return Parse(s)
}

// Format returns the '0'/'1' form of bs,
// with one character for each bit in [0, bs.Len()).
func Format(bs *bitset.BitSet) string {
	out := make([]byte, bs.Len())
	for i := range out {
		out[i] = '0'
	}
	for u, ok := bs.NextSet(0); ok && u < uint(len(out)); u, ok = bs.NextSet(u + 1) {
		out[u] = '1'
	}
	return string(out)
}

// Full returns a bitset of length n with every bit set.
func Full(n uint) *bitset.BitSet {
	bs := bitset.MustNew(n)
	// Flipping a fresh range sets it,
	// and avoids growing the bitset past n.
	bs.FlipRange(0, n)
	return bs
}

// CheckLen returns an error wrapping [ErrInvalidArgument]
// if bs is nil or its length is not n.
func CheckLen(bs *bitset.BitSet, n uint) error {
	if bs == nil {
		return fmt.Errorf("%w: nil bitset", ErrInvalidArgument)
	}
	if bs.Len() != n {
		return fmt.Errorf(
			"%w: bitset length %d, expected %d", ErrInvalidArgument, bs.Len(), n,
		)
	}
	return nil
}

// CheckID returns an error wrapping [ErrOutOfRange] if id >= n.
func CheckID(id, n uint32) error {
	if id >= n {
		return fmt.Errorf("%w: %d (participant count %d)", ErrOutOfRange, id, n)
	}
	return nil
}
