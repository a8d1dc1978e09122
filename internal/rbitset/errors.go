package rbitset

import (
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/rquic"
)

// ErrMalformed is wrapped by every decoding error caused by the remote's bytes,
// as opposed to a stream failure.
var ErrMalformed = errors.New("malformed bitset")

// Encoder is implemented by every encoder in this package.
type Encoder interface {
	SendBitset(s rquic.SendStream, timeout time.Duration, bs *bitset.BitSet) error
}

// Decoder is implemented by every decoder in this package.
type Decoder interface {
	ReceiveBitset(s rquic.ReceiveStream, timeout time.Duration, bs *bitset.BitSet) error
}

var (
	_ Encoder = (*RawEncoder)(nil)
	_ Encoder = (*SnappyEncoder)(nil)
	_ Encoder = (*CombinationEncoder)(nil)
	_ Encoder = (*AdaptiveEncoder)(nil)

	_ Decoder = (*RawDecoder)(nil)
	_ Decoder = (*SnappyDecoder)(nil)
	_ Decoder = (*CombinationDecoder)(nil)
	_ Decoder = (*AdaptiveDecoder)(nil)
)

func setReadDeadline(s rquic.ReceiveStream, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set read deadline for bitset: %w", err)
	}
	return nil
}

func setWriteDeadline(s rquic.SendStream, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline for bitset: %w", err)
	}
	return nil
}

// checkTail rejects decoded words that set bits at or beyond bs.Len().
// Those bits would otherwise be counted by Count and similar methods.
func checkTail(bs *bitset.BitSet) error {
	rem := bs.Len() % 64
	if rem == 0 {
		return nil
	}
	words := bs.Words()
	if len(words) == 0 {
		return nil
	}
	if words[len(words)-1]>>rem != 0 {
		return fmt.Errorf("%w: bits set past length %d", ErrMalformed, bs.Len())
	}
	return nil
}
