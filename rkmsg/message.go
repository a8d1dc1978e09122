package rkmsg

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/contrib"
	"github.com/zeebo/blake3"
)

// Message is a single gossip contact from one participant to another.
type Message struct {
	Sender uint32

	// One bit per participant:
	// the contributions the sender chose to forward.
	Contributions *bitset.BitSet

	// Row-major snapshot of the sender's knowledge matrix,
	// with N*N bits.
	Knowledge *bitset.BitSet
}

// ParticipantCount returns the N implied by the contributions length.
func (m Message) ParticipantCount() uint32 {
	if m.Contributions == nil {
		return 0
	}
	return uint32(m.Contributions.Len())
}

// Validate reports whether m is well formed for n participants.
// Length problems wrap [contrib.ErrInvalidArgument]
// and a sender outside [0, n) wraps [contrib.ErrOutOfRange].
func (m Message) Validate(n uint32) error {
	if err := contrib.CheckLen(m.Contributions, uint(n)); err != nil {
		return fmt.Errorf("contributions: %w", err)
	}
	if err := contrib.CheckLen(m.Knowledge, uint(n)*uint(n)); err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}
	if err := contrib.CheckID(m.Sender, n); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	return nil
}

// Digest returns a blake3 hash over the sender and both bitsets.
// Equal messages have equal digests.
//
// The message must have passed [Message.Validate].
func (m Message) Digest() [32]byte {
	h := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], m.Sender)
	_, _ = h.Write(buf[:4])

	for _, bs := range []*bitset.BitSet{m.Contributions, m.Knowledge} {
		binary.BigEndian.PutUint64(buf[:], uint64(bs.Len()))
		_, _ = h.Write(buf[:])
		for _, w := range bs.Words() {
			binary.LittleEndian.PutUint64(buf[:], w)
			_, _ = h.Write(buf[:])
		}
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := Message{Sender: m.Sender}
	if m.Contributions != nil {
		out.Contributions = m.Contributions.Clone()
	}
	if m.Knowledge != nil {
		out.Knowledge = m.Knowledge.Clone()
	}
	return out
}

// MarshalText returns the space-separated form
// "<sender> <contribution bits> <knowledge bits>",
// where the bit fields are '0'/'1' strings.
func (m Message) MarshalText() ([]byte, error) {
	if err := m.Validate(m.ParticipantCount()); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.Grow(12 + int(m.Contributions.Len()+m.Knowledge.Len()))
	sb.WriteString(strconv.FormatUint(uint64(m.Sender), 10))
	sb.WriteByte(' ')
	sb.WriteString(contrib.Format(m.Contributions))
	sb.WriteByte(' ')
	sb.WriteString(contrib.Format(m.Knowledge))
	return []byte(sb.String()), nil
}

// UnmarshalText parses the output of [Message.MarshalText].
// The participant count is taken from the length of the middle field,
// and the knowledge field must be its square.
// On error, m is unchanged.
func (m *Message) UnmarshalText(text []byte) error {
	fields := strings.Split(string(text), " ")
	if len(fields) != 3 {
		return fmt.Errorf(
			"%w: message has %d space-separated fields, expected 3",
			contrib.ErrInvalidArgument, len(fields),
		)
	}

	sender, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: sender: %w", contrib.ErrInvalidArgument, err)
	}

	contributions, err := contrib.Parse(fields[1])
	if err != nil {
		return fmt.Errorf("contributions: %w", err)
	}

	n := contributions.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty contributions", contrib.ErrInvalidArgument)
	}
	knowledge, err := contrib.ParseN(fields[2], n*n)
	if err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}

	out := Message{
		Sender:        uint32(sender),
		Contributions: contributions,
		Knowledge:     knowledge,
	}
	if err := out.Validate(uint32(n)); err != nil {
		return err
	}

	*m = out
	return nil
}
