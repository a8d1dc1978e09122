package rbitset

import (
	"fmt"
	"io"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/rquic"
)

// Adaptive header bytes.
const (
	rawEncoding         byte = 0
	snappyEncoding      byte = 1
	combinationEncoding byte = 2
)

// AdaptiveEncoder writes a one-byte header
// followed by whichever of the raw, snappy, or combination encodings
// is expected to be smallest for the bitset.
//
// The zero value is ready to use.
// AdaptiveEncoder is not safe for concurrent use.
type AdaptiveEncoder struct {
	se SnappyEncoder
	ce CombinationEncoder
}

func (e *AdaptiveEncoder) SendBitset(
	s rquic.SendStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	if useCombination(bs) {
		e.ce.encode(bs, true)
		return e.ce.send(s, timeout)
	}

	if bs.Len() > MaxSnappyBits {
		var re RawEncoder
		re.encode(bs, true)
		return re.send(s, timeout)
	}

	// Otherwise attempt snappy encoding
	// and see if we save any bytes.
	e.se.encode(bs, true)

	// The remote knows the raw size up front,
	// but snappy carries a two-byte length.
	if len(e.se.wordBuf) < len(e.se.encBuf)+2 {
		// The word buffer already has the raw header byte.
		re := RawEncoder{buf: e.se.wordBuf}
		return re.send(s, timeout)
	}

	return e.se.send(s, timeout)
}

// useCombination picks the combination encoding
// for short bitsets, where the rank is cheap to compute.
// Longer sparse bitsets compress well enough with snappy.
func useCombination(bs *bitset.BitSet) bool {
	return bs.Len() <= MaxCombinationBits
}

// AdaptiveDecoder reads the output of [AdaptiveEncoder].
//
// The zero value is ready to use.
// AdaptiveDecoder is not safe for concurrent use.
type AdaptiveDecoder struct {
	sd SnappyDecoder
	cd CombinationDecoder
	rd RawDecoder
}

// ReceiveBitset applies a single read deadline
// to the header and the encoded body together.
func (d *AdaptiveDecoder) ReceiveBitset(
	s rquic.ReceiveStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	if err := setReadDeadline(s, timeout); err != nil {
		return err
	}

	var h [1]byte
	if _, err := io.ReadFull(s, h[:]); err != nil {
		return fmt.Errorf("failed to read type header for adaptive bitset: %w", err)
	}

	switch h[0] {
	case rawEncoding:
		// Borrow the snappy decoder's word buffer.
		d.rd.buf = d.sd.wordBuf
		err := d.rd.receive(s, bs)
		d.sd.wordBuf = d.rd.buf
		return err
	case snappyEncoding:
		return d.sd.receive(s, bs)
	case combinationEncoding:
		return d.cd.receive(s, bs)
	default:
		return fmt.Errorf("%w: unknown adaptive header byte 0x%x", ErrMalformed, h[0])
	}
}
