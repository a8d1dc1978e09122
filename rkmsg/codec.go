package rkmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/contrib"
	"github.com/gordian-engine/regka/internal/rbitset"
	"github.com/gordian-engine/regka/rquic"
)

// MessageType is a single byte header indicating the type of message.
type MessageType byte

const (
	// Keep zero reserved.
	// Not using iota here, to avoid possibility of values changing across the wire.

	// A gossip contact carrying contributions and a knowledge snapshot.
	GossipMessageType MessageType = 1
)

// MaxParticipants is the largest participant count the stream codec supports.
// The knowledge snapshot of N*N bits must fit
// the snappy codec's 16-bit length field.
const MaxParticipants = 512

// ErrUnknownMessageType is returned by [*Decoder.ReceiveMessage]
// when the header byte is not [GossipMessageType].
var ErrUnknownMessageType = errors.New("unknown message type")

// CodecConfig is the configuration shared by [Encoder] and [Decoder].
// Both ends of a stream must agree on it.
type CodecConfig struct {
	// Number of participants in the group, in [1, MaxParticipants].
	ParticipantCount uint32
}

func (c CodecConfig) validate() {
	if c.ParticipantCount == 0 || c.ParticipantCount > MaxParticipants {
		panic(fmt.Errorf(
			"BUG: CodecConfig.ParticipantCount must be in [1, %d] (got %d)",
			MaxParticipants, c.ParticipantCount,
		))
	}
}

// Encoder writes messages to streams.
// It is not safe for concurrent use.
type Encoder struct {
	cfg CodecConfig

	bs  rbitset.AdaptiveEncoder
	hdr [5]byte
}

// NewEncoder returns an encoder for the given configuration.
// It panics if the configuration is invalid.
func NewEncoder(cfg CodecConfig) *Encoder {
	cfg.validate()
	return &Encoder{cfg: cfg}
}

// SendMessage writes msg to s.
// The whole message must be written within timeout;
// a non-positive timeout clears the write deadline.
//
// The stream is not closed.
func (e *Encoder) SendMessage(
	s rquic.SendStream,
	timeout time.Duration,
	msg Message,
) error {
	if err := msg.Validate(e.cfg.ParticipantCount); err != nil {
		return fmt.Errorf("refusing to send invalid message: %w", err)
	}

	dl := newDeadline(timeout)

	e.hdr[0] = byte(GossipMessageType)
	binary.BigEndian.PutUint32(e.hdr[1:], msg.Sender)

	if err := s.SetWriteDeadline(dl.at); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := s.Write(e.hdr[:]); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}

	t, err := dl.remaining()
	if err != nil {
		return err
	}
	if err := e.bs.SendBitset(s, t, msg.Contributions); err != nil {
		return fmt.Errorf("failed to write contributions: %w", err)
	}

	if t, err = dl.remaining(); err != nil {
		return err
	}
	if err := e.bs.SendBitset(s, t, msg.Knowledge); err != nil {
		return fmt.Errorf("failed to write knowledge: %w", err)
	}

	return nil
}

// Decoder reads messages from streams.
// It is not safe for concurrent use.
type Decoder struct {
	cfg CodecConfig

	bs  rbitset.AdaptiveDecoder
	hdr [5]byte
}

// NewDecoder returns a decoder for the given configuration.
// It panics if the configuration is invalid.
func NewDecoder(cfg CodecConfig) *Decoder {
	cfg.validate()
	return &Decoder{cfg: cfg}
}

// ReceiveMessage reads one message from s.
// The whole message must arrive within timeout;
// a non-positive timeout clears the read deadline.
//
// If the peer sent a malformed message,
// the read side of s is canceled with [rquic.StreamCodeInvalidMessage]
// before the error is returned.
// Transport errors and timeouts leave s as is.
//
// The returned message owns freshly allocated bitsets.
func (d *Decoder) ReceiveMessage(
	s rquic.ReceiveStream,
	timeout time.Duration,
) (Message, error) {
	dl := newDeadline(timeout)

	if err := s.SetReadDeadline(dl.at); err != nil {
		return Message{}, fmt.Errorf("failed to set read deadline: %w", err)
	}
	if _, err := io.ReadFull(s, d.hdr[:]); err != nil {
		return Message{}, fmt.Errorf("failed to read message header: %w", err)
	}

	if t := MessageType(d.hdr[0]); t != GossipMessageType {
		return Message{}, rejectStream(s, fmt.Errorf("%w: 0x%x", ErrUnknownMessageType, byte(t)))
	}

	n := uint(d.cfg.ParticipantCount)
	msg := Message{
		Sender:        binary.BigEndian.Uint32(d.hdr[1:]),
		Contributions: bitset.MustNew(n),
		Knowledge:     bitset.MustNew(n * n),
	}
	if err := contrib.CheckID(msg.Sender, d.cfg.ParticipantCount); err != nil {
		return Message{}, rejectStream(s, fmt.Errorf("sender: %w", err))
	}

	t, err := dl.remaining()
	if err != nil {
		return Message{}, err
	}
	if err := d.bs.ReceiveBitset(s, t, msg.Contributions); err != nil {
		return Message{}, rejectMalformed(s, fmt.Errorf("failed to read contributions: %w", err))
	}

	if t, err = dl.remaining(); err != nil {
		return Message{}, err
	}
	if err := d.bs.ReceiveBitset(s, t, msg.Knowledge); err != nil {
		return Message{}, rejectMalformed(s, fmt.Errorf("failed to read knowledge: %w", err))
	}

	return msg, nil
}

// rejectStream cancels s as carrying an invalid message and returns err.
func rejectStream(s rquic.ReceiveStream, err error) error {
	s.CancelRead(rquic.StreamCodeInvalidMessage)
	return err
}

// rejectMalformed calls rejectStream only if err
// was caused by the remote's bytes.
func rejectMalformed(s rquic.ReceiveStream, err error) error {
	if errors.Is(err, rbitset.ErrMalformed) {
		return rejectStream(s, err)
	}
	return err
}

// deadline spreads one timeout across the several
// deadline-setting calls that make up a message.
type deadline struct {
	at time.Time
}

func newDeadline(timeout time.Duration) deadline {
	if timeout <= 0 {
		return deadline{}
	}
	return deadline{at: time.Now().Add(timeout)}
}

// remaining returns the timeout to pass to a bitset codec.
// Zero means no deadline.
func (d deadline) remaining() (time.Duration, error) {
	if d.at.IsZero() {
		return 0, nil
	}
	t := time.Until(d.at)
	if t <= 0 {
		return 0, fmt.Errorf("message timeout elapsed: %w", os.ErrDeadlineExceeded)
	}
	return t, nil
}
