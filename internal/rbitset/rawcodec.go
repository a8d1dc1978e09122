package rbitset

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/rquic"
)

// RawEncoder writes the bitset's backing words directly,
// as little endian uint64 values.
//
// The zero value is ready to use.
// RawEncoder is not safe for concurrent use.
type RawEncoder struct {
	buf []byte
}

func (e *RawEncoder) encode(bs *bitset.BitSet, adaptive bool) {
	words := bs.Words()
	nBytes := 8 * len(words)
	if adaptive {
		nBytes++
	}

	if cap(e.buf) < nBytes {
		e.buf = make([]byte, nBytes)
	} else {
		e.buf = e.buf[:nBytes]
	}

	buf := e.buf
	if adaptive {
		buf[0] = rawEncoding
		buf = buf[1:]
	}
	putWords(buf, words)
}

// putWords uses little endian
// since it is more likely to match a modern machine's endianness.
func putWords(dst []byte, words []uint64) {
	for i, w := range words {
		binary.LittleEndian.PutUint64(dst[i*8:], w)
	}
}

func (e *RawEncoder) SendBitset(
	s rquic.SendStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	e.encode(bs, false)
	return e.send(s, timeout)
}

func (e *RawEncoder) send(s rquic.SendStream, timeout time.Duration) error {
	if err := setWriteDeadline(s, timeout); err != nil {
		return err
	}
	if _, err := s.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write raw bitset: %w", err)
	}
	return nil
}

// RawDecoder reads the output of [RawEncoder].
//
// The zero value is ready to use.
// RawDecoder is not safe for concurrent use.
type RawDecoder struct {
	buf []byte
}

func (d *RawDecoder) ReceiveBitset(
	s rquic.ReceiveStream,
	timeout time.Duration,
	bs *bitset.BitSet,
) error {
	if err := setReadDeadline(s, timeout); err != nil {
		return err
	}
	return d.receive(s, bs)
}

func (d *RawDecoder) receive(s rquic.ReceiveStream, bs *bitset.BitSet) error {
	words := bs.Words()
	nBytes := len(words) * 8
	if cap(d.buf) < nBytes {
		d.buf = make([]byte, nBytes)
	} else {
		d.buf = d.buf[:nBytes]
	}

	if _, err := io.ReadFull(s, d.buf); err != nil {
		return fmt.Errorf("failed to read raw bitset data: %w", err)
	}
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(d.buf[i*8:])
	}

	return checkTail(bs)
}
