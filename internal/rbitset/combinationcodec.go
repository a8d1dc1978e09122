package rbitset

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/rquic"
)

// MaxCombinationBits is the longest bitset the combination codec handles.
// Ranking and unranking cost grows with the bitset length
// times the number of set bits, in big integer arithmetic,
// and decoding cannot be interrupted by a read deadline.
const MaxCombinationBits = 512

// CombinationEncoder writes the cardinality k of the bitset
// and the lexicographic rank of its set bits
// among all k-element subsets of [0, Len).
// Sparse and nearly-full bitsets both produce short ranks.
//
// Wire format: big endian uint16 k, big endian uint16 rank byte count,
// then the big endian rank bytes.
//
// The zero value is ready to use.
// CombinationEncoder is not safe for concurrent use.
type CombinationEncoder struct {
	outBuf []byte

	// Temporary variables for the binomial coefficient.
	combIdx, scratch big.Int
}

func (e *CombinationEncoder) encode(bs *bitset.BitSet, adaptive bool) {
	if bs.Len() > MaxCombinationBits {
		panic(fmt.Errorf(
			"BUG: bitset length %d exceeds combination codec maximum %d",
			bs.Len(), MaxCombinationBits,
		))
	}

	k := e.calculateCombIdx(bs)

	hdr := 0
	if adaptive {
		hdr = 1
	}

	ciByteCount := (e.combIdx.BitLen() + 7) / 8
	sz := hdr + 4 + ciByteCount
	if cap(e.outBuf) < sz {
		e.outBuf = make([]byte, sz)
	} else {
		e.outBuf = e.outBuf[:sz]
	}

	if adaptive {
		e.outBuf[0] = combinationEncoding
	}
	binary.BigEndian.PutUint16(e.outBuf[hdr:], k)
	binary.BigEndian.PutUint16(e.outBuf[hdr+2:], uint16(ciByteCount))
	_ = e.combIdx.FillBytes(e.outBuf[hdr+4:])
}

func (e *CombinationEncoder) SendBitset(
	s rquic.SendStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	e.encode(bs, false)
	return e.send(s, timeout)
}

func (e *CombinationEncoder) send(s rquic.SendStream, timeout time.Duration) error {
	if err := setWriteDeadline(s, timeout); err != nil {
		return err
	}
	if _, err := s.Write(e.outBuf); err != nil {
		return fmt.Errorf("failed to write combination bitset: %w", err)
	}
	return nil
}

func (e *CombinationEncoder) calculateCombIdx(bs *bitset.BitSet) uint16 {
	n := int(bs.Len())
	kk := int(bs.Count())
	k := uint16(kk)

	e.combIdx.SetUint64(0)

	prev := -1
	for u, ok := bs.NextSet(0); ok && int(u) < n; u, ok = bs.NextSet(u + 1) {
		i := int(u)
		remainingPositions := kk - 1

		// Every subset that places this element at an earlier unset position
		// ranks before ours.
		for j := prev + 1; j < i; j++ {
			binomialCoefficient(n-j-1, remainingPositions, &e.scratch)
			e.combIdx.Add(&e.combIdx, &e.scratch)
		}

		prev = i
		kk--
	}

	return k
}

// CombinationDecoder reads the output of [CombinationEncoder].
//
// The zero value is ready to use.
// CombinationDecoder is not safe for concurrent use.
type CombinationDecoder struct {
	inBuf []byte

	combIdx, scratch big.Int
}

func (d *CombinationDecoder) ReceiveBitset(
	s rquic.ReceiveStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	if err := setReadDeadline(s, timeout); err != nil {
		return err
	}
	return d.receive(s, bs)
}

func (d *CombinationDecoder) receive(s rquic.ReceiveStream, bs *bitset.BitSet) error {
	if bs.Len() > MaxCombinationBits {
		return fmt.Errorf(
			"%w: combination encoding of %d-bit bitset exceeds maximum %d",
			ErrMalformed, bs.Len(), MaxCombinationBits,
		)
	}

	if cap(d.inBuf) < 4 {
		d.inBuf = make([]byte, 4, 64)
	}
	meta := d.inBuf[:4]
	if _, err := io.ReadFull(s, meta); err != nil {
		return fmt.Errorf("failed to read combination bitset metadata: %w", err)
	}

	n := int(bs.Len())
	k := int(binary.BigEndian.Uint16(meta[:2]))
	combIdxSize := int(binary.BigEndian.Uint16(meta[2:]))

	if k > n {
		return fmt.Errorf(
			"%w: %d set bits in %d-bit bitset", ErrMalformed, k, n,
		)
	}
	// The rank is below 2^n, so it never needs more than n bits.
	if combIdxSize > (n+7)/8 {
		return fmt.Errorf(
			"%w: %d-byte rank for %d-bit bitset", ErrMalformed, combIdxSize, n,
		)
	}

	if cap(d.inBuf) < combIdxSize {
		d.inBuf = make([]byte, combIdxSize)
	}
	combBytes := d.inBuf[:combIdxSize]
	if _, err := io.ReadFull(s, combBytes); err != nil {
		return fmt.Errorf("failed to read combination bitset rank: %w", err)
	}
	d.combIdx.SetBytes(combBytes)

	// A rank at or past n choose k would walk off the end.
	binomialCoefficient(n, k, &d.scratch)
	if d.combIdx.Cmp(&d.scratch) >= 0 {
		return fmt.Errorf(
			"%w: rank out of range for %d of %d bits", ErrMalformed, k, n,
		)
	}

	d.decodeCombIdx(n, k, bs)
	return nil
}

// decodeCombIdx requires d.combIdx < n choose k.
func (d *CombinationDecoder) decodeCombIdx(n, k int, bs *bitset.BitSet) {
	bs.ClearAll()

	remaining := &d.combIdx
	scratch := &d.scratch

	curr := 0
	for remainingPositions := k; remainingPositions > 0; curr++ {
		// Subsets that choose curr rank before those that skip it.
		binomialCoefficient(n-curr-1, remainingPositions-1, scratch)
		if remaining.Cmp(scratch) >= 0 {
			remaining.Sub(remaining, scratch)
			continue
		}

		bs.Set(uint(curr))
		remainingPositions--
	}
}

// binomialCoefficient sets out to n choose k.
func binomialCoefficient(n, k int, out *big.Int) {
	if k > n {
		// The standard library returns zero here,
		// but this is a caller bug in our case.
		panic(fmt.Errorf("BUG: k(%d) > n(%d): caller needs to prevent this case", k, n))
	}

	if k == 0 || k == n {
		out.SetUint64(1)
		return
	}

	out.Binomial(int64(n), int64(k))
}
