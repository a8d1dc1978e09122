package rbitset_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/internal/rbitset"
	"github.com/gordian-engine/regka/internal/rktest"
	"github.com/gordian-engine/regka/rquic/rquictest"
	"github.com/stretchr/testify/require"
)

func TestRawCodec_roundTrip(t *testing.T) {
	t.Parallel()

	var enc rbitset.RawEncoder
	var dec rbitset.RawDecoder
	testCodec(t, &enc, &dec, 1<<16)
}

func TestSnappyCodec_roundTrip(t *testing.T) {
	t.Parallel()

	var enc rbitset.SnappyEncoder
	var dec rbitset.SnappyDecoder
	testCodec(t, &enc, &dec, 1<<16)
}

func TestCombinationCodec_roundTrip(t *testing.T) {
	t.Parallel()

	var enc rbitset.CombinationEncoder
	var dec rbitset.CombinationDecoder
	testCodec(t, &enc, &dec, rbitset.MaxCombinationBits+1)
}

func TestAdaptiveCodec_roundTrip(t *testing.T) {
	t.Parallel()

	var enc rbitset.AdaptiveEncoder
	var dec rbitset.AdaptiveDecoder
	testCodec(t, &enc, &dec, 8*1024)
}

// testCodec provides a unified approach to testing codec implementations.
// The same encoder and decoder values are reused across iterations,
// so buffer reuse is exercised too.
func testCodec(
	t *testing.T,
	enc rbitset.Encoder,
	dec rbitset.Decoder,
	maxSize uint,
) {
	t.Helper()

	ss, rs := rquictest.Pipe()
	t.Cleanup(func() { _ = ss.Close() })

	// Arbitrary seed values,
	// but we want them to be the same across all codec implementations.
	rng := rand.New(rand.NewPCG(400, 500))

	var idxs []int
	for range 200 {
		sz := 2 + rng.UintN(maxSize-2)
		if cap(idxs) < int(sz) {
			idxs = make([]int, sz)
		} else {
			idxs = idxs[:sz]
		}
		for i := range idxs {
			idxs[i] = i
		}
		rng.Shuffle(int(sz), func(i, j int) {
			idxs[i], idxs[j] = idxs[j], idxs[i]
		})

		// Bias toward the sparse and the dense ends,
		// which are the cases the compressed encodings target.
		var setCount int
		switch rng.IntN(3) {
		case 0:
			setCount = rng.IntN(min(int(sz), 40))
		case 1:
			setCount = int(sz) - rng.IntN(min(int(sz), 40))
		default:
			setCount = rng.IntN(int(sz) + 1)
		}

		bs := bitset.MustNew(sz)
		for _, v := range idxs[:setCount] {
			bs.Set(uint(v))
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- enc.SendBitset(ss, time.Second, bs)
		}()

		got := bitset.MustNew(sz)
		// Dirty the destination to ensure the decoder overwrites it.
		got.Set(0)

		require.NoError(t, dec.ReceiveBitset(rs, time.Second, got))
		require.NoError(t, rktest.ReceiveSoon(t, errCh))

		require.Truef(
			t,
			bs.Equal(got),
			"sent: %s\nrcvd: %s", bs, got,
		)
	}
}

// sendRaw writes p to a fresh pipe from a background goroutine
// and returns the receiving end.
func sendRaw(t *testing.T, p []byte) *rquictest.PipeReceiveStream {
	t.Helper()

	ss, rs := rquictest.Pipe()
	go func() {
		_, _ = ss.Write(p)
		_ = ss.Close()
	}()
	t.Cleanup(func() { rs.CancelRead(0) })
	return rs
}

func TestAdaptiveDecoder_unknownHeader(t *testing.T) {
	t.Parallel()

	var dec rbitset.AdaptiveDecoder
	err := dec.ReceiveBitset(sendRaw(t, []byte{7}), time.Second, bitset.MustNew(8))
	require.ErrorIs(t, err, rbitset.ErrMalformed)
}

func TestCombinationDecoder_rejects(t *testing.T) {
	t.Parallel()

	for name, p := range map[string][]byte{
		// k=9 for an 8-bit set.
		"too many bits": {0, 9, 0, 0},
		// 8 choose 1 is 8, so rank 8 is one past the end.
		"rank out of range": {0, 1, 0, 1, 8},
		// The rank of an 8-bit set always fits in one byte.
		"rank too long": {0, 1, 0, 2, 0, 1},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var dec rbitset.CombinationDecoder
			err := dec.ReceiveBitset(sendRaw(t, p), time.Second, bitset.MustNew(8))
			require.ErrorIs(t, err, rbitset.ErrMalformed)
		})
	}
}

func TestCombinationCodec_lengthLimit(t *testing.T) {
	t.Parallel()

	long := bitset.MustNew(rbitset.MaxCombinationBits + 1)

	var enc rbitset.CombinationEncoder
	ss, _ := rquictest.Pipe()
	defer ss.Close()
	require.Panics(t, func() {
		_ = enc.SendBitset(ss, time.Second, long)
	})

	// 31 set bits with a one-byte rank would otherwise be accepted.
	var dec rbitset.CombinationDecoder
	err := dec.ReceiveBitset(sendRaw(t, []byte{0, 31, 0, 1, 0}), time.Second, long)
	require.ErrorIs(t, err, rbitset.ErrMalformed)
}

func TestAdaptiveEncoder_sparseLongBitsetSkipsCombination(t *testing.T) {
	t.Parallel()

	// Few bits set in a knowledge snapshot sized bitset.
	bs := bitset.MustNew(512 * 512)
	for i := range uint(31) {
		bs.Set(i * 8000)
	}

	ss, rs := rquictest.Pipe()
	errCh := make(chan error, 1)
	go func() {
		var enc rbitset.AdaptiveEncoder
		errCh <- enc.SendBitset(ss, time.Second, bs)
		_ = ss.Close()
	}()

	var dec rbitset.AdaptiveDecoder
	got := bitset.MustNew(bs.Len())
	require.NoError(t, dec.ReceiveBitset(rs, time.Second, got))
	require.NoError(t, rktest.ReceiveSoon(t, errCh))
	require.True(t, bs.Equal(got))

	// A combination header on the same length is refused.
	err := dec.ReceiveBitset(sendRaw(t, []byte{2, 0, 31, 0, 1, 0}), time.Second, got)
	require.ErrorIs(t, err, rbitset.ErrMalformed)
}

func TestRawDecoder_rejectsTailBits(t *testing.T) {
	t.Parallel()

	// Bit 9 set in a 9-bit bitset's only word.
	p := []byte{0, 2, 0, 0, 0, 0, 0, 0}

	var dec rbitset.RawDecoder
	err := dec.ReceiveBitset(sendRaw(t, p), time.Second, bitset.MustNew(9))
	require.ErrorIs(t, err, rbitset.ErrMalformed)
}

func TestSnappyDecoder_rejectsOversizeLength(t *testing.T) {
	t.Parallel()

	var dec rbitset.SnappyDecoder
	err := dec.ReceiveBitset(sendRaw(t, []byte{0xff, 0xff}), time.Second, bitset.MustNew(64))
	require.ErrorIs(t, err, rbitset.ErrMalformed)
}

func TestCombinationEncoder_compact(t *testing.T) {
	t.Parallel()

	// An all-set bitset has rank zero, so only the metadata is written.
	bs := bitset.MustNew(300)
	bs.FlipRange(0, 300)

	ss, rs := rquictest.Pipe()
	errCh := make(chan error, 1)
	go func() {
		var enc rbitset.CombinationEncoder
		errCh <- enc.SendBitset(ss, time.Second, bs)
		_ = ss.Close()
	}()

	buf := make([]byte, 16)
	n, err := rs.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x2c, 0, 0}, buf[:n])
	require.NoError(t, rktest.ReceiveSoon(t, errCh))
}
