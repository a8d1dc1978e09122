package rbitset

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/snappy"
	"github.com/gordian-engine/regka/rquic"
)

// MaxSnappyBits is the largest bitset length
// whose worst-case snappy encoding fits the uint16 length prefix.
const MaxSnappyBits = 48 * 1024 * 8

// SnappyEncoder writes a big endian uint16 length,
// followed by the snappy block encoding of the bitset's words.
//
// The zero value is ready to use.
// SnappyEncoder is not safe for concurrent use.
type SnappyEncoder struct {
	// The byte form of the bitset's words.
	// Through the AdaptiveEncoder,
	// it has a 1-byte [rawEncoding] prefix,
	// so that it can be sent as-is when compression does not help.
	wordBuf []byte

	// The snappy-encoded wordBuf, prefixed with the uint16 length.
	// Through the AdaptiveEncoder,
	// it has a 1-byte [snappyEncoding] prefix before the length.
	encBuf []byte
}

func (e *SnappyEncoder) encode(bs *bitset.BitSet, adaptive bool) {
	if bs.Len() > MaxSnappyBits {
		panic(fmt.Errorf(
			"BUG: bitset length %d exceeds snappy codec maximum %d",
			bs.Len(), MaxSnappyBits,
		))
	}

	words := bs.Words()
	nBytes := 8 * len(words)
	hdr := 0
	if adaptive {
		hdr = 1
	}

	if cap(e.wordBuf) < hdr+nBytes {
		e.wordBuf = make([]byte, hdr+nBytes)
	} else {
		e.wordBuf = e.wordBuf[:hdr+nBytes]
	}

	// +2 for the size uint16.
	maxEnc := hdr + 2 + snappy.MaxEncodedLen(nBytes)
	if cap(e.encBuf) < maxEnc {
		e.encBuf = make([]byte, maxEnc)
	} else {
		e.encBuf = e.encBuf[:maxEnc]
	}

	if adaptive {
		e.wordBuf[0] = rawEncoding
		e.encBuf[0] = snappyEncoding
	}
	putWords(e.wordBuf[hdr:], words)

	// Encode after the length, then backfill the length.
	res := snappy.Encode(e.encBuf[hdr+2:], e.wordBuf[hdr:])
	binary.BigEndian.PutUint16(e.encBuf[hdr:], uint16(len(res)))
	e.encBuf = e.encBuf[:hdr+2+len(res)]
}

func (e *SnappyEncoder) SendBitset(
	s rquic.SendStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	e.encode(bs, false)
	return e.send(s, timeout)
}

func (e *SnappyEncoder) send(s rquic.SendStream, timeout time.Duration) error {
	if err := setWriteDeadline(s, timeout); err != nil {
		return err
	}
	if _, err := s.Write(e.encBuf); err != nil {
		return fmt.Errorf("failed to write snappy bitset: %w", err)
	}
	return nil
}

// SnappyDecoder reads the output of [SnappyEncoder].
//
// The zero value is ready to use.
// SnappyDecoder is not safe for concurrent use.
type SnappyDecoder struct {
	// Holds the snappy-encoded bytes.
	encBuf []byte

	// The decoded bytes, backing the bitset's words.
	wordBuf []byte
}

func (d *SnappyDecoder) ReceiveBitset(
	s rquic.ReceiveStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	if err := setReadDeadline(s, timeout); err != nil {
		return err
	}
	return d.receive(s, bs)
}

func (d *SnappyDecoder) receive(s rquic.ReceiveStream, bs *bitset.BitSet) error {
	if cap(d.encBuf) < 2 {
		// Allocate a bit larger here,
		// since we have to parse the length
		// before we can right-size encBuf.
		d.encBuf = make([]byte, 2, 128)
	} else {
		d.encBuf = d.encBuf[:2]
	}

	if _, err := io.ReadFull(s, d.encBuf); err != nil {
		return fmt.Errorf("failed to read snappy length for bitset: %w", err)
	}

	words := bs.Words()
	wantDec := len(words) * 8

	encSz := int(binary.BigEndian.Uint16(d.encBuf))
	if maxEnc := min(snappy.MaxEncodedLen(wantDec), math.MaxUint16); encSz > maxEnc {
		return fmt.Errorf(
			"%w: snappy length %d exceeds bound %d for %d-bit bitset",
			ErrMalformed, encSz, maxEnc, bs.Len(),
		)
	}

	if cap(d.encBuf) < encSz {
		d.encBuf = make([]byte, encSz)
	} else {
		d.encBuf = d.encBuf[:encSz]
	}
	if _, err := io.ReadFull(s, d.encBuf); err != nil {
		return fmt.Errorf("failed to read snappy-encoded bitset: %w", err)
	}

	decSz, err := snappy.DecodedLen(d.encBuf)
	if err != nil {
		return fmt.Errorf("%w: snappy header: %w", ErrMalformed, err)
	}
	if decSz != wantDec {
		return fmt.Errorf(
			"%w: decoded size of %d bytes but expected %d",
			ErrMalformed, decSz, wantDec,
		)
	}

	wb, err := snappy.Decode(d.wordBuf, d.encBuf)
	if err != nil {
		return fmt.Errorf("%w: snappy body: %w", ErrMalformed, err)
	}

	// wb could have been nil on error;
	// that's why we used the temporary variable.
	d.wordBuf = wb

	for i := range words {
		words[i] = binary.LittleEndian.Uint64(d.wordBuf[i*8:])
	}

	return checkTail(bs)
}
